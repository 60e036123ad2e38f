package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// #region tree-types
// DecisionTree is a weighted CART classifier.
type DecisionTree struct {
	cfg     TreeConfig
	rng     *rand.Rand
	classes []int
	root    *treeNode
}

type treeNode struct {
	leaf      bool
	feature   int
	threshold float64 // x <= threshold goes left
	left      *treeNode
	right     *treeNode
	probas    []float64 // aligned with DecisionTree.classes
}

// NewDecisionTree returns an unfitted tree. rng drives feature subsampling.
func NewDecisionTree(cfg TreeConfig, rng *rand.Rand) *DecisionTree {
	return &DecisionTree{cfg: cfg, rng: rng}
}

// #endregion tree-types

// #region fit
// Fit grows the tree on X, y with per-sample weights (nil = uniform).
func (t *DecisionTree) Fit(X [][]float64, y []int, weights []float64) error {
	if err := checkShape(X, y, weights); err != nil {
		return err
	}
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	return t.fit(X, y, orOnes(weights, len(y)), idx, firstSeen(y))
}

// fit grows the tree on the rows listed in idx (repeats allowed, as in a
// bootstrap sample) using a fixed class list so that forests can align columns.
func (t *DecisionTree) fit(X [][]float64, y []int, w []float64, idx []int, classes []int) error {
	col := make(map[int]int, len(classes))
	for j, c := range classes {
		col[c] = j
	}
	for _, i := range idx {
		if _, ok := col[y[i]]; !ok {
			return fmt.Errorf("fit tree: class %d not in class list", y[i])
		}
	}
	t.classes = classes
	g := &grower{
		cfg:    t.cfg,
		rng:    t.rng,
		X:      X,
		y:      y,
		w:      w,
		col:    col,
		k:      len(classes),
		nFeats: len(X[0]),
	}
	t.root = g.grow(idx, 0)
	return nil
}

// #endregion fit

// #region predict
// Classes returns the fitted classes in probability-column order.
func (t *DecisionTree) Classes() []int {
	out := make([]int, len(t.classes))
	copy(out, t.classes)
	return out
}

// PredictProba returns one probability row per sample.
func (t *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		p := t.leafProbas(x)
		row := make([]float64, len(p))
		copy(row, p)
		out[i] = row
	}
	return out
}

// Predict returns the most probable class per sample.
func (t *DecisionTree) Predict(X [][]float64) []int {
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = t.classes[argmax(t.leafProbas(x))]
	}
	return out
}

func (t *DecisionTree) leafProbas(x []float64) []float64 {
	if t.root == nil {
		panic(ErrNotFitted)
	}
	n := t.root
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.probas
}

// #endregion predict

// #region grower
type grower struct {
	cfg    TreeConfig
	rng    *rand.Rand
	X      [][]float64
	y      []int
	w      []float64
	col    map[int]int
	k      int
	nFeats int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

func (g *grower) grow(idx []int, depth int) *treeNode {
	counts := make([]float64, g.k)
	total := 0.0
	for _, i := range idx {
		counts[g.col[g.y[i]]] += g.w[i]
		total += g.w[i]
	}

	leaf := func() *treeNode {
		p := make([]float64, g.k)
		if total > 0 {
			for j := range counts {
				p[j] = counts[j] / total
			}
		}
		return &treeNode{leaf: true, probas: p}
	}

	if pure(counts) || len(idx) < g.cfg.MinSamplesSplit || (g.cfg.MaxDepth > 0 && depth >= g.cfg.MaxDepth) {
		return leaf()
	}

	best, ok := g.bestSplit(idx, counts, total)
	if !ok {
		return leaf()
	}
	return &treeNode{
		feature:   best.feature,
		threshold: best.threshold,
		left:      g.grow(best.left, depth+1),
		right:     g.grow(best.right, depth+1),
	}
}

func (g *grower) features() []int {
	feats := make([]int, g.nFeats)
	for i := range feats {
		feats[i] = i
	}
	m := g.cfg.MaxFeatures
	if m <= 0 || m >= g.nFeats {
		return feats
	}
	g.rng.Shuffle(len(feats), func(i, j int) { feats[i], feats[j] = feats[j], feats[i] })
	return feats[:m]
}

// bestSplit scans every candidate threshold of the sampled features, keeping
// the one with the largest weighted impurity decrease.
func (g *grower) bestSplit(idx []int, parent []float64, total float64) (split, bool) {
	parentImp := g.impurity(parent, total)
	minLeaf := g.cfg.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	best := split{gain: 1e-12}
	found := false
	order := make([]int, len(idx))
	left := make([]float64, g.k)
	right := make([]float64, g.k)

	for _, f := range g.features() {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return g.X[order[a]][f] < g.X[order[b]][f] })

		for j := range left {
			left[j] = 0
		}
		leftW := 0.0
		for s := 0; s < len(order)-1; s++ {
			i := order[s]
			left[g.col[g.y[i]]] += g.w[i]
			leftW += g.w[i]

			lo, hi := g.X[i][f], g.X[order[s+1]][f]
			if lo == hi {
				continue
			}
			nLeft := s + 1
			if nLeft < minLeaf || len(order)-nLeft < minLeaf {
				continue
			}
			rightW := total - leftW
			for j := range right {
				right[j] = parent[j] - left[j]
			}
			child := (leftW*g.impurity(left, leftW) + rightW*g.impurity(right, rightW)) / total
			gain := parentImp - child
			if gain > best.gain {
				best = split{feature: f, threshold: (lo + hi) / 2, gain: gain}
				best.left = append([]int(nil), order[:nLeft]...)
				best.right = append([]int(nil), order[nLeft:]...)
				found = true
			}
		}
	}
	return best, found
}

func (g *grower) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	res := 0.0
	if g.cfg.Criterion == Entropy {
		for _, c := range counts {
			if c <= 0 {
				continue
			}
			p := c / total
			res -= p * math.Log2(p)
		}
		return res
	}
	for _, c := range counts {
		p := c / total
		res += p * (1 - p)
	}
	return res
}

// #endregion grower

// #region helpers
func checkShape(X [][]float64, y []int, weights []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("fit: %w: empty X", ErrShape)
	}
	if len(y) != len(X) {
		return fmt.Errorf("fit: %w: X=%d y=%d", ErrShape, len(X), len(y))
	}
	if weights != nil && len(weights) != len(y) {
		return fmt.Errorf("fit: %w: y=%d weights=%d", ErrShape, len(y), len(weights))
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return fmt.Errorf("fit: %w: row %d has %d features, want %d", ErrShape, i, len(X[i]), p)
		}
	}
	return nil
}

func orOnes(w []float64, n int) []float64 {
	if w != nil {
		return w
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// firstSeen lists the distinct values of y in order of first appearance.
func firstSeen(y []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, c := range y {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func pure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmax(p []float64) int {
	best := 0
	for j := 1; j < len(p); j++ {
		if p[j] > p[best] {
			best = j
		}
	}
	return best
}

// #endregion helpers
