package stopping

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
)

// #region accuracy
// Accuracy echoes the most recent query accuracy. NaN on an empty history.
func Accuracy(history []float64) float64 {
	if len(history) == 0 {
		return math.NaN()
	}
	return history[len(history)-1]
}

// #endregion accuracy

// #region stddev
// StdDev returns the population standard deviation of the last k history
// entries, or NaN while fewer than k entries exist.
func StdDev(history []float64, k int) float64 {
	if k <= 0 || len(history) < k {
		return math.NaN()
	}
	sd, err := stats.StandardDeviationPopulation(history[len(history)-k:])
	if err != nil {
		return math.NaN()
	}
	return sd
}

// #endregion stddev

// #region certainty
// Certainty returns the minimum over samples of the probability assigned to
// the sample's own predicted class. Column positions in proba follow classes,
// so each prediction is looked up explicitly rather than used as an index.
func Certainty(pred []int, proba [][]float64, classes []int) (float64, error) {
	if len(pred) == 0 {
		return 0, ErrEmptyPool
	}
	if len(proba) != len(pred) {
		return 0, fmt.Errorf("certainty: %d predictions, %d probability rows", len(pred), len(proba))
	}

	self := make([]float64, len(pred))
	for i, c := range pred {
		j, ok := classifier.ColumnOf(classes, c)
		if !ok {
			return 0, fmt.Errorf("certainty: sample %d: %w: %d not in %v", i, ErrUnknownClass, c, classes)
		}
		self[i] = proba[i][j]
	}
	return stats.Min(self)
}

// #endregion certainty

// #region evaluate
// Evaluate computes all three signals for a cycle. history must already hold
// this cycle's query accuracy. Each estimator reads only its own inputs.
func Evaluate(history []float64, window int, clf classifier.Classifier, pool [][]float64) (Signals, error) {
	if len(pool) == 0 {
		return Signals{}, ErrEmptyPool
	}
	certainty, err := Certainty(clf.Predict(pool), clf.PredictProba(pool), clf.Classes())
	if err != nil {
		return Signals{}, err
	}
	return Signals{
		Accuracy:  Accuracy(history),
		StdDev:    StdDev(history, window),
		Certainty: certainty,
	}, nil
}

// #endregion evaluate

// #region rules
// FirstCycle returns the index of the first value at which the rule fires,
// or -1. NaN values never fire.
func (r Rule) FirstCycle(values []float64) (int, error) {
	switch r.Criterion {
	case CriterionAccuracy, CriterionCertainty, CriterionStdDev:
	default:
		return -1, fmt.Errorf("unknown stopping criterion %q", r.Criterion)
	}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		switch r.Criterion {
		case CriterionAccuracy, CriterionCertainty:
			if v >= r.Threshold {
				return i, nil
			}
		case CriterionStdDev:
			if v <= r.Threshold {
				return i, nil
			}
		}
	}
	return -1, nil
}

// #endregion rules
