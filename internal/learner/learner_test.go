package learner

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
	"github.com/danielpatrickdp/active-learning/internal/metrics"
	"github.com/danielpatrickdp/active-learning/internal/strategy"
)

// #region helpers

// blobs returns n rows split evenly between two well separated clusters.
func blobs(n int, seed int64) ([][]float64, []string) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]string, n)
	for i := range X {
		center, label := 0.0, "neg"
		if i%2 == 1 {
			center, label = 10.0, "pos"
		}
		X[i] = []float64{center + rng.Float64(), center + rng.Float64()}
		y[i] = label
	}
	return X, y
}

// overlapping returns n rows from two classes whose feature ranges overlap
// by half, so no model separates them perfectly.
func overlapping(n int, seed int64) ([][]float64, []string) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]string, n)
	for i := range X {
		center, label := 0.0, "neg"
		if i%2 == 1 {
			center, label = 1.0, "pos"
		}
		X[i] = []float64{center + 2*rng.Float64(), center + 2*rng.Float64()}
		y[i] = label
	}
	return X, y
}

// poolMinimum recomputes the certainty signal: the lowest probability the
// model gives its own prediction over pool.
func poolMinimum(t *testing.T, model classifier.Classifier, pool [][]float64) float64 {
	t.Helper()
	pred := model.Predict(pool)
	proba := model.PredictProba(pool)
	lowest := math.Inf(1)
	for i, c := range pred {
		col, ok := classifier.ColumnOf(model.Classes(), c)
		require.True(t, ok)
		lowest = math.Min(lowest, proba[i][col])
	}
	return lowest
}

func populationStdDev(v []float64) float64 {
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	var ss float64
	for _, x := range v {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(v)))
}

func distinct(v []float64) int {
	seen := make(map[float64]struct{})
	for _, x := range v {
		seen[x] = struct{}{}
	}
	return len(seen)
}

func divided(t *testing.T, n int, cfg dataset.DivideConfig) *dataset.Dataset {
	t.Helper()
	X, y := blobs(n, 7)
	data, err := dataset.Divide(X, y, cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	return data
}

// partition builds n rows with ids starting at offset; classes alternate 0,1.
func partition(n, offset int) dataset.Partition {
	p := dataset.Partition{}
	for i := 0; i < n; i++ {
		c := i % 2
		p.X = append(p.X, []float64{float64(c*10) + float64(i)/100})
		p.Y = append(p.Y, c)
		p.RowIDs = append(p.RowIDs, offset+i)
	}
	return p
}

func handBuilt(t *testing.T, labeled, unlabeled, test int) *dataset.Dataset {
	t.Helper()
	enc := dataset.NewLabelEncoder([]string{"neg", "pos"})
	data, err := dataset.New(enc,
		partition(labeled, 0),
		partition(unlabeled, labeled),
		partition(test, labeled+unlabeled),
	)
	require.NoError(t, err)
	return data
}

func smallForest(seed int64) []classifier.Classifier {
	cfg := classifier.DefaultForestConfig()
	cfg.NEstimators = 5
	cfg.Cores = 1
	return []classifier.Classifier{classifier.NewRandomForest(cfg, rand.New(rand.NewSource(seed)))}
}

func randomStrategy(t *testing.T, seed int64) strategy.Strategy {
	t.Helper()
	s, err := strategy.New(strategy.Random, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return s
}

// fixedStrategy always returns the same indices.
type fixedStrategy struct{ idx []int }

func (f fixedStrategy) Name() string { return "fixed" }
func (f fixedStrategy) Select([]classifier.Classifier, dataset.Partition, int) ([]int, error) {
	return f.idx, nil
}

func rowCounts(parts ...dataset.Partition) map[int]int {
	seen := make(map[int]int)
	for _, p := range parts {
		for _, id := range p.RowIDs {
			seen[id]++
		}
	}
	return seen
}

func config(iterations, queries int) Config {
	cfg := DefaultConfig()
	cfg.Iterations = iterations
	cfg.QueriesPerIteration = queries
	return cfg
}

// #endregion helpers

// #region config-tests
func TestNew_RejectsBadConfig(t *testing.T) {
	data := handBuilt(t, 4, 10, 4)
	s := randomStrategy(t, 1)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative-budget", config(-1, 1)},
		{"zero-queries", config(1, 0)},
		{"zero-window", Config{Iterations: 1, QueriesPerIteration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, data, smallForest(1), s)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	_, err := New(config(1, 1), data, nil, s)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = New(config(1, 1), nil, smallForest(1), s)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = New(config(1, 1), data, smallForest(1), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

// #endregion config-tests

// #region run-tests
func TestRun_FixedBudget(t *testing.T) {
	data := divided(t, 100, dataset.DefaultDivideConfig())
	labeled0, unlabeled0, total := data.Labeled.Len(), data.Unlabeled.Len(), data.Total()

	lr, err := New(config(3, 10), data, smallForest(11), randomStrategy(t, 5))
	require.NoError(t, err)
	res, err := lr.Run()
	require.NoError(t, err)

	assert.Equal(t, labeled0+30, data.Labeled.Len())
	assert.Equal(t, unlabeled0-30, data.Unlabeled.Len())
	assert.Equal(t, total, data.Total())
	assert.Equal(t, 3, res.Ledger.Len())
	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, StopBudgetExhausted, res.StopReason)
	for _, rec := range res.Ledger.Records() {
		assert.Equal(t, 10, rec.QueryLength)
		sum := 0
		for _, c := range rec.QueryClassDistribution {
			sum += c
		}
		assert.Equal(t, 10, sum)
	}
}

func TestRun_PoolGuardStopsEarly(t *testing.T) {
	data := handBuilt(t, 4, 15, 6)

	lr, err := New(config(1000, 7), data, smallForest(2), randomStrategy(t, 9))
	require.NoError(t, err)
	res, err := lr.Run()
	require.NoError(t, err)

	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 2, res.Ledger.Len())
	assert.Equal(t, 1000, res.Requested)
	assert.Equal(t, StopPoolExhausted, res.StopReason)
	assert.Equal(t, 1, data.Unlabeled.Len())
	assert.Equal(t, 18, data.Labeled.Len())
}

func TestRun_ZeroBudget(t *testing.T) {
	data := handBuilt(t, 4, 10, 4)
	lr, err := New(config(0, 3), data, smallForest(1), randomStrategy(t, 1))
	require.NoError(t, err)
	res, err := lr.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cycles)
	assert.Equal(t, StopBudgetExhausted, res.StopReason)
	assert.Equal(t, 10, data.Unlabeled.Len())
}

func TestRun_PartitionInvariant(t *testing.T) {
	data := divided(t, 80, dataset.DivideConfig{TestFraction: 0.25, StartSetSize: 0.1})
	total := data.Total()

	var sizes []int
	obs := ObserverFunc(func(rec metrics.CycleRecord) {
		sizes = append(sizes, rec.UnlabeledSize)
		assert.Equal(t, total, rec.LabeledSize+rec.UnlabeledSize+data.Test.Len())
	})

	unlabeled0 := data.Unlabeled.Len()
	lr, err := New(config(6, 5), data, smallForest(4), randomStrategy(t, 4), WithObserver(obs))
	require.NoError(t, err)
	_, err = lr.Run()
	require.NoError(t, err)

	require.Len(t, sizes, 6)
	prev := unlabeled0
	for _, s := range sizes {
		assert.Equal(t, prev-5, s)
		prev = s
	}
	for id, n := range rowCounts(data.Labeled, data.Unlabeled, data.Test) {
		assert.Equal(t, 1, n, "row %d present %d times", id, n)
	}
	assert.Len(t, rowCounts(data.Labeled, data.Unlabeled, data.Test), total)
}

func TestRun_SignalsPerCycle(t *testing.T) {
	X, y := overlapping(120, 21)
	data, err := dataset.Divide(X, y, dataset.DivideConfig{TestFraction: 0.25, StartSetSize: 0.1}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	committee := smallForest(8)
	var certainty []float64
	obs := ObserverFunc(func(metrics.CycleRecord) {
		certainty = append(certainty, poolMinimum(t, committee[0], data.Unlabeled.X))
	})

	lr, err := New(config(10, 5), data, committee, randomStrategy(t, 8), WithObserver(obs))
	require.NoError(t, err)
	res, err := lr.Run()
	require.NoError(t, err)
	require.Equal(t, 10, res.Cycles)

	history := lr.History()
	require.Len(t, history, res.Cycles)
	assert.Equal(t, history, res.Ledger.History())
	assert.Greater(t, distinct(history), 1, "overlapping classes should vary query accuracy: %v", history)

	for i, rec := range res.Ledger.Records() {
		assert.Equal(t, i, rec.Cycle)
		assert.Equal(t, history[i], rec.StopAccuracy)
		if i < 4 {
			assert.True(t, math.IsNaN(rec.StopStdDev), "cycle %d stddev should be NaN", i)
		} else {
			assert.InDelta(t, populationStdDev(history[i-4:i+1]), rec.StopStdDev, 1e-12, "cycle %d", i)
		}
		assert.InDelta(t, certainty[i], rec.StopCertainty, 1e-12, "cycle %d", i)
	}
}

func TestRun_CommitteeRetrainedEachCycle(t *testing.T) {
	data := divided(t, 60, dataset.DivideConfig{TestFraction: 0.25, StartSetSize: 0.2})
	cfg := classifier.DefaultForestConfig()
	cfg.NEstimators = 3
	cfg.Cores = 1
	committee := classifier.NewCommittee(3, cfg, rand.New(rand.NewSource(1)))

	s, err := strategy.New(strategy.Committee, nil)
	require.NoError(t, err)
	lr, err := New(config(2, 4), data, committee, s)
	require.NoError(t, err)
	res, err := lr.Run()
	require.NoError(t, err)

	assert.Len(t, res.Committee, 3)
	for _, member := range res.Committee {
		assert.NotEmpty(t, member.Classes())
	}
}

// #endregion run-tests

// #region failure-tests
func TestRun_DuplicateIndicesAbort(t *testing.T) {
	data := handBuilt(t, 4, 10, 4)
	lr, err := New(config(3, 2), data, smallForest(1), fixedStrategy{idx: []int{1, 1}})
	require.NoError(t, err)

	res, err := lr.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrInvalidQuery)
	assert.Equal(t, 0, res.Cycles)
	assert.Equal(t, 10, data.Unlabeled.Len(), "no partial migration")
	assert.Equal(t, 4, data.Labeled.Len())
}

func TestRun_EmptiedPoolIsFatal(t *testing.T) {
	data := handBuilt(t, 4, 6, 4)
	lr, err := New(config(5, 3), data, smallForest(1), randomStrategy(t, 2))
	require.NoError(t, err)

	res, err := lr.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrEmptyPartition), "got %v", err)
	assert.Equal(t, 1, res.Cycles, "first cycle completed before the pool ran dry")
}

// #endregion failure-tests
