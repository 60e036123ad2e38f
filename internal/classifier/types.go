package classifier

import "errors"

// #region errors
var (
	// ErrNotFitted is returned when a model is used before Fit.
	ErrNotFitted = errors.New("classifier not fitted")
	// ErrShape is returned when X, y and weights are not co-indexed.
	ErrShape = errors.New("shape mismatch")
)

// #endregion errors

// #region interface
// Classifier is a trainable probabilistic classifier over encoded class indices.
//
// Class-index contract: column j of PredictProba is the probability of class
// Classes()[j]. Classes() lists the classes seen during Fit in first-seen
// order, which is generally NOT the label encoder's order. Callers that need
// the probability of a specific class must resolve its column with ColumnOf.
type Classifier interface {
	Fit(X [][]float64, y []int, weights []float64) error
	Predict(X [][]float64) []int
	PredictProba(X [][]float64) [][]float64
	Classes() []int
}

// ColumnOf returns the probability column holding class, or false when the
// classifier never saw that class.
func ColumnOf(classes []int, class int) (int, bool) {
	for j, c := range classes {
		if c == class {
			return j, true
		}
	}
	return 0, false
}

// #endregion interface

// #region config
// Criterion selects the impurity measure used to score splits.
type Criterion string

const (
	Gini    Criterion = "gini"
	Entropy Criterion = "entropy"
)

// TreeConfig holds decision tree hyperparameters.
type TreeConfig struct {
	MaxDepth        int // 0 = unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 = all features
	Criterion       Criterion
}

// DefaultTreeConfig mirrors the usual CART defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     0,
		Criterion:       Gini,
	}
}

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	NEstimators     int       `yaml:"n_estimators" validate:"gte=1"`
	MaxDepth        int       `yaml:"max_depth" validate:"gte=0"`
	MinSamplesSplit int       `yaml:"min_samples_split" validate:"gte=2"`
	MinSamplesLeaf  int       `yaml:"min_samples_leaf" validate:"gte=1"`
	MaxFeatures     string    `yaml:"max_features" validate:"oneof=sqrt log2 all"`
	Criterion       Criterion `yaml:"criterion" validate:"oneof=gini entropy"`
	Bootstrap       bool      `yaml:"bootstrap"`
	Cores           int       `yaml:"cores"` // <= 0 = all CPUs
}

// DefaultForestConfig returns a 100-tree bootstrap forest using sqrt(p) features per split.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		Criterion:       Gini,
		Bootstrap:       true,
		Cores:           -1,
	}
}

// #endregion config
