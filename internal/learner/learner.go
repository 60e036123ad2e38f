package learner

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
	"github.com/danielpatrickdp/active-learning/internal/metrics"
	"github.com/danielpatrickdp/active-learning/internal/stopping"
	"github.com/danielpatrickdp/active-learning/internal/strategy"
)

// #region learner
// Learner owns the dataset partitions and the committee for a single run and
// drives retrain, select, migrate and measure once per cycle.
type Learner struct {
	cfg       Config
	data      *dataset.Dataset
	committee []classifier.Classifier
	strat     strategy.Strategy

	history   []float64
	ledger    *metrics.Ledger
	log       *zap.Logger
	observers []Observer
}

// Option customizes a Learner.
type Option func(*Learner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(lr *Learner) {
		if l != nil {
			lr.log = l
		}
	}
}

// WithObserver registers an observer called after every completed cycle.
func WithObserver(o Observer) Option {
	return func(lr *Learner) {
		if o != nil {
			lr.observers = append(lr.observers, o)
		}
	}
}

// New validates the configuration and takes ownership of data and committee.
func New(cfg Config, data *dataset.Dataset, committee []classifier.Classifier, strat strategy.Strategy, opts ...Option) (*Learner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: nil dataset", ErrConfig)
	}
	if len(committee) == 0 {
		return nil, fmt.Errorf("%w: empty committee", ErrConfig)
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrConfig)
	}
	lr := &Learner{
		cfg:       cfg,
		data:      data,
		committee: committee,
		strat:     strat,
		ledger:    metrics.NewLedger(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr, nil
}

// History returns a copy of the per-cycle query accuracies.
func (lr *Learner) History() []float64 {
	out := make([]float64, len(lr.history))
	copy(out, lr.history)
	return out
}

// #endregion learner

// #region run
// Run executes cycles until the iteration budget is spent or the unlabeled
// pool can no longer supply a full query. Any error aborts the run; the
// ledger then holds every cycle completed before the failure.
func (lr *Learner) Run() (Result, error) {
	res := Result{
		Committee:  lr.committee,
		Ledger:     lr.ledger,
		Requested:  lr.cfg.Iterations,
		StopReason: StopBudgetExhausted,
	}

	for cycle := 0; cycle < lr.cfg.Iterations; cycle++ {
		if remaining := lr.data.Unlabeled.Len(); remaining < lr.cfg.QueriesPerIteration {
			lr.log.Debug("unlabeled pool too small, stopping",
				zap.Int("cycle", cycle),
				zap.Int("unlabeled", remaining),
				zap.Int("queries_per_iteration", lr.cfg.QueriesPerIteration),
			)
			res.StopReason = StopPoolExhausted
			break
		}
		if err := lr.step(cycle); err != nil {
			res.Cycles = lr.ledger.Len()
			return res, fmt.Errorf("cycle %d: %w", cycle, err)
		}
	}

	res.Cycles = lr.ledger.Len()
	lr.log.Info("run finished",
		zap.Int("cycles", res.Cycles),
		zap.Int("requested", res.Requested),
		zap.String("stop_reason", string(res.StopReason)),
		zap.String("strategy", lr.strat.Name()),
	)
	return res, nil
}

// #endregion run

// #region step
func (lr *Learner) step(cycle int) error {
	start := time.Now()

	// retrain
	labeled := lr.data.Labeled
	weights := classifier.BalancedWeights(labeled.Y)
	for i, member := range lr.committee {
		if err := member.Fit(labeled.X, labeled.Y, weights); err != nil {
			return fmt.Errorf("fit member %d: %w", i, err)
		}
	}
	model := lr.committee[0]

	// select
	indices, err := lr.strat.Select(lr.committee, lr.data.Unlabeled, lr.cfg.QueriesPerIteration)
	if err != nil {
		return fmt.Errorf("select %s: %w", lr.strat.Name(), err)
	}

	// migrate
	query, err := lr.data.Migrate(indices)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// measure
	rec := metrics.CycleRecord{
		Cycle:         cycle,
		QueryLength:   query.Len(),
		LabeledSize:   lr.data.Labeled.Len(),
		UnlabeledSize: lr.data.Unlabeled.Len(),
	}
	if rec.Test, err = lr.report("test", lr.data.Test, model); err != nil {
		return err
	}
	if rec.Labeled, err = lr.report("labeled", lr.data.Labeled, model); err != nil {
		return err
	}
	if rec.Unlabeled, err = lr.report("unlabeled", lr.data.Unlabeled, model); err != nil {
		return err
	}
	if rec.QueryClassDistribution, err = lr.distribution(query.Y); err != nil {
		return err
	}

	rec.QueryAccuracy = classifier.Accuracy(query.Y, model.Predict(query.X))
	lr.history = append(lr.history, rec.QueryAccuracy)

	// stopping signals
	sig, err := stopping.Evaluate(lr.history, lr.cfg.StdDevWindow, model, lr.data.Unlabeled.X)
	if err != nil {
		return fmt.Errorf("stopping signals: %w", err)
	}
	rec.StopAccuracy = sig.Accuracy
	rec.StopStdDev = sig.StdDev
	rec.StopCertainty = sig.Certainty
	rec.Duration = time.Since(start)

	if err := lr.ledger.Append(rec); err != nil {
		return err
	}

	lr.log.Info("cycle complete",
		zap.Int("cycle", cycle),
		zap.Int("labeled", rec.LabeledSize),
		zap.Int("unlabeled", rec.UnlabeledSize),
		zap.Int("queried", rec.QueryLength),
		zap.Float64("query_accuracy", rec.QueryAccuracy),
		zap.Float64("test_accuracy", rec.Test.Accuracy),
		zap.Float64("stop_stddev", rec.StopStdDev),
		zap.Float64("stop_certainty", rec.StopCertainty),
		zap.Duration("took", rec.Duration),
	)
	for _, o := range lr.observers {
		o.ObserveCycle(rec.Clone())
	}
	return nil
}

func (lr *Learner) report(name string, p dataset.Partition, model classifier.Classifier) (metrics.ClassificationReport, error) {
	rep, err := metrics.Report(p.Y, model.Predict(p.X), lr.data.Encoder)
	if err != nil {
		return metrics.ClassificationReport{}, fmt.Errorf("%s report: %w", name, err)
	}
	return rep, nil
}

func (lr *Learner) distribution(y []int) (map[string]int, error) {
	out := make(map[string]int)
	for _, c := range y {
		label, err := lr.data.Encoder.Label(c)
		if err != nil {
			return nil, fmt.Errorf("query distribution: %w", err)
		}
		out[label]++
	}
	return out, nil
}

// #endregion step
