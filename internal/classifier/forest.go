package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// #region forest
// RandomForest is a bagged ensemble of DecisionTrees. Probabilities are the
// mean of the trees' leaf distributions.
type RandomForest struct {
	cfg     ForestConfig
	rng     *rand.Rand
	classes []int
	trees   []*DecisionTree
}

// NewRandomForest returns an unfitted forest seeded by rng. The forest owns rng;
// tree seeds are drawn from it sequentially, so results do not depend on Cores.
func NewRandomForest(cfg ForestConfig, rng *rand.Rand) *RandomForest {
	return &RandomForest{cfg: cfg, rng: rng}
}

// NewCommittee builds size independent forests, each with its own seed drawn from rng.
func NewCommittee(size int, cfg ForestConfig, rng *rand.Rand) []Classifier {
	out := make([]Classifier, size)
	for i := range out {
		out[i] = NewRandomForest(cfg, rand.New(rand.NewSource(rng.Int63())))
	}
	return out
}

// #endregion forest

// #region fit
// Fit trains all trees, in parallel up to Cores at a time.
func (f *RandomForest) Fit(X [][]float64, y []int, weights []float64) error {
	if err := checkShape(X, y, weights); err != nil {
		return err
	}
	n := f.cfg.NEstimators
	if n < 1 {
		return fmt.Errorf("fit forest: n_estimators=%d", n)
	}
	w := orOnes(weights, len(y))
	classes := firstSeen(y)
	treeCfg := TreeConfig{
		MaxDepth:        f.cfg.MaxDepth,
		MinSamplesSplit: f.cfg.MinSamplesSplit,
		MinSamplesLeaf:  f.cfg.MinSamplesLeaf,
		MaxFeatures:     maxFeatures(f.cfg.MaxFeatures, len(X[0])),
		Criterion:       f.cfg.Criterion,
	}

	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = f.rng.Int63()
	}

	trees := make([]*DecisionTree, n)
	var g errgroup.Group
	g.SetLimit(cores(f.cfg.Cores))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := make([]int, len(y))
			for j := range idx {
				if f.cfg.Bootstrap {
					idx[j] = rng.Intn(len(y))
				} else {
					idx[j] = j
				}
			}
			tree := NewDecisionTree(treeCfg, rng)
			if err := tree.fit(X, y, w, idx, classes); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}

	f.classes = classes
	f.trees = trees
	return nil
}

// #endregion fit

// #region predict
// Classes returns the fitted classes in probability-column order.
func (f *RandomForest) Classes() []int {
	out := make([]int, len(f.classes))
	copy(out, f.classes)
	return out
}

// PredictProba averages the per-tree probabilities.
func (f *RandomForest) PredictProba(X [][]float64) [][]float64 {
	if f.trees == nil {
		panic(ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, len(f.classes))
		for _, t := range f.trees {
			for j, p := range t.leafProbas(x) {
				row[j] += p
			}
		}
		for j := range row {
			row[j] /= float64(len(f.trees))
		}
		out[i] = row
	}
	return out
}

// Predict returns the class with the highest mean probability.
func (f *RandomForest) Predict(X [][]float64) []int {
	proba := f.PredictProba(X)
	out := make([]int, len(X))
	for i, row := range proba {
		out[i] = f.classes[argmax(row)]
	}
	return out
}

// #endregion predict

// #region helpers
func maxFeatures(mode string, p int) int {
	switch mode {
	case "sqrt":
		return int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	case "log2":
		return int(math.Max(1, math.Floor(math.Log2(float64(p)))))
	default:
		return 0
	}
}

func cores(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// #endregion helpers
