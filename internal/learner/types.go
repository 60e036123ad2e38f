package learner

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// ErrConfig is wrapped by every configuration error returned from New.
var ErrConfig = errors.New("invalid learner configuration")

// #region config
// Config bounds one run of the controller.
type Config struct {
	Iterations          int `yaml:"iterations" validate:"gte=0"`
	QueriesPerIteration int `yaml:"queries_per_iteration" validate:"gte=1"`
	// StdDevWindow is the rolling window of the stddev signal.
	StdDevWindow int `yaml:"stddev_window" validate:"gte=1"`
}

// DefaultConfig mirrors a typical pool experiment.
func DefaultConfig() Config {
	return Config{
		Iterations:          10,
		QueriesPerIteration: 10,
		StdDevWindow:        5,
	}
}

func (c Config) validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations %d < 0", ErrConfig, c.Iterations)
	}
	if c.QueriesPerIteration < 1 {
		return fmt.Errorf("%w: queries per iteration %d < 1", ErrConfig, c.QueriesPerIteration)
	}
	if c.StdDevWindow < 1 {
		return fmt.Errorf("%w: stddev window %d < 1", ErrConfig, c.StdDevWindow)
	}
	return nil
}

// #endregion config

// #region result
// StopReason explains why the loop ended.
type StopReason string

const (
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopPoolExhausted   StopReason = "pool_exhausted"
)

// Result is what a run hands back once the loop ends.
type Result struct {
	Committee  []classifier.Classifier
	Ledger     *metrics.Ledger
	Cycles     int // completed cycles, equal to Ledger.Len()
	Requested  int
	StopReason StopReason
}

// #endregion result

// #region observer
// Observer is notified after each cycle's record has been appended.
type Observer interface {
	ObserveCycle(rec metrics.CycleRecord)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(rec metrics.CycleRecord)

func (f ObserverFunc) ObserveCycle(rec metrics.CycleRecord) { f(rec) }

// #endregion observer
