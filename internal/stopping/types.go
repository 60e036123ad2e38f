package stopping

import "errors"

// DefaultWindow is the number of most recent query accuracies the stddev
// criterion looks at.
const DefaultWindow = 5

// #region errors
var (
	// ErrEmptyPool is returned when certainty is requested over no samples.
	ErrEmptyPool = errors.New("certainty over empty pool")
	// ErrUnknownClass is returned when a predicted class has no probability column.
	ErrUnknownClass = errors.New("predicted class not in classifier classes")
)

// #endregion errors

// #region signals
// Signals are the three advisory stopping values recorded for one cycle.
// None of them halts the loop.
type Signals struct {
	Accuracy  float64 // accuracy on this cycle's queried samples
	StdDev    float64 // population stddev of the last Window accuracies, NaN until Window cycles
	Certainty float64 // minimum self-class probability over the unlabeled pool
}

// #endregion signals

// #region rule
// Criterion names one of the recorded stopping signals.
type Criterion string

const (
	CriterionAccuracy  Criterion = "accuracy"
	CriterionStdDev    Criterion = "stddev"
	CriterionCertainty Criterion = "certainty"
)

// Rule is a threshold stopping rule applied retroactively to a recorded run.
// Accuracy and certainty rules fire when the value reaches Threshold; the
// stddev rule fires when the value drops to Threshold or below.
type Rule struct {
	Criterion Criterion
	Threshold float64
}

// #endregion rule
