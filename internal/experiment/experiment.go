package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/config"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
	"github.com/danielpatrickdp/active-learning/internal/learner"
	"github.com/danielpatrickdp/active-learning/internal/metrics"
	"github.com/danielpatrickdp/active-learning/internal/strategy"
	"github.com/danielpatrickdp/active-learning/internal/telemetry"
	"github.com/danielpatrickdp/active-learning/internal/trace"
)

// ErrNoData is returned when the configuration names no input table.
var ErrNoData = errors.New("no data path configured")

// #region types
// Deps are the long-lived collaborators of a run. Store is required; the
// rest are optional.
type Deps struct {
	Store   *trace.Store
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID        string
	Key          string
	Cycles       int
	Requested    int
	StopReason   learner.StopReason
	TestAccuracy float64 // after the last cycle, NaN if none ran
	FitTime      time.Duration
	SnapshotPath string
	Ledger       *metrics.Ledger
}

// #endregion types

// #region load
// LoadTable reads the input table named by cfg.
func LoadTable(cfg config.DataConfig) (*dataset.Table, error) {
	if cfg.Path == "" {
		return nil, ErrNoData
	}
	switch cfg.Format {
	case "fixture":
		return dataset.LoadFixture(cfg.Path)
	case "csv", "":
		return dataset.LoadCSV(cfg.Path, cfg.LabelColumn)
	}
	return nil, fmt.Errorf("unknown data format %q", cfg.Format)
}

// #endregion load

// #region run
// Run loads the data, splits it, runs the controller and persists the trace.
// ctx is checked between setup steps only; once the loop starts it runs to
// completion.
func Run(ctx context.Context, cfg config.Config, deps Deps) (Summary, error) {
	if deps.Store == nil {
		return Summary{}, errors.New("experiment: nil trace store")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	table, err := LoadTable(cfg.Data)
	if err != nil {
		return Summary{}, fmt.Errorf("load data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	// one seeded source per run; components get child sources drawn in a fixed order
	src := rand.New(rand.NewSource(cfg.Seed))
	data, err := dataset.Divide(table.Features, table.Labels, cfg.Split, rand.New(rand.NewSource(src.Int63())))
	if err != nil {
		return Summary{}, fmt.Errorf("divide: %w", err)
	}

	id := strategy.ID(cfg.Strategy)
	strat, err := strategy.New(id, rand.New(rand.NewSource(src.Int63())))
	if err != nil {
		return Summary{}, err
	}
	committee := classifier.NewCommittee(strategy.CommitteeSize(id, cfg.CommitteeSize), cfg.Forest,
		rand.New(rand.NewSource(src.Int63())))

	log.Info("dataset divided",
		zap.Int("labeled", data.Labeled.Len()),
		zap.Int("unlabeled", data.Unlabeled.Len()),
		zap.Int("test", data.Test.Len()),
		zap.Strings("classes", data.Encoder.Classes()),
	)
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	key := trace.RunKey(cfg.Strategy, cfg.Split.StartSetSize, cfg.Learner.QueriesPerIteration)
	runID, err := deps.Store.BeginRun(trace.RunRecord{
		Key:                 key,
		Strategy:            cfg.Strategy,
		StartSize:           cfg.Split.StartSetSize,
		QueriesPerIteration: cfg.Learner.QueriesPerIteration,
		Seed:                cfg.Seed,
		Requested:           cfg.Learner.Iterations,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("begin run: %w", err)
	}
	log = log.With(zap.String("run_id", runID), zap.String("run_key", key))

	cycleLog := trace.NewCycleLogger(deps.Store.DB(), runID)
	opts := []learner.Option{learner.WithLogger(log), learner.WithObserver(cycleLog)}
	if deps.Metrics != nil {
		opts = append(opts, learner.WithObserver(deps.Metrics.Observer(cfg.Strategy)))
	}

	lr, err := learner.New(cfg.Learner, data, committee, strat, opts...)
	if err != nil {
		if ferr := deps.Store.FinishRun(runID, trace.Outcome{Err: err}); ferr != nil {
			log.Warn("record failed run", zap.Error(ferr))
		}
		return Summary{}, err
	}
	start := time.Now()
	res, runErr := lr.Run()
	fitTime := time.Since(start)

	if err := deps.Store.FinishRun(runID, trace.Outcome{
		Cycles:     res.Cycles,
		StopReason: string(res.StopReason),
		Ledger:     res.Ledger,
		FitTime:    fitTime,
		Err:        runErr,
	}); err != nil {
		return Summary{}, fmt.Errorf("finish run: %w", err)
	}

	var snapshot string
	if cfg.Store.SnapshotDir != "" {
		// failed runs keep their partial ledger on disk too
		if snapshot, err = trace.WriteSnapshot(cfg.Store.SnapshotDir, key, res.Ledger); err != nil {
			if runErr != nil {
				return Summary{}, errors.Join(fmt.Errorf("run %s: %w", runID, runErr), err)
			}
			return Summary{}, err
		}
	}
	if runErr != nil {
		failed := Summary{RunID: runID, Key: key, Cycles: res.Cycles, Requested: res.Requested, SnapshotPath: snapshot, Ledger: res.Ledger}
		return failed, fmt.Errorf("run %s: %w", runID, runErr)
	}
	if err := cycleLog.Err(); err != nil {
		log.Warn("cycle log incomplete", zap.Error(err))
	}
	if deps.Metrics != nil {
		deps.Metrics.RunFinished(cfg.Strategy, string(res.StopReason))
	}

	sum := Summary{
		RunID:        runID,
		Key:          key,
		Cycles:       res.Cycles,
		Requested:    res.Requested,
		StopReason:   res.StopReason,
		TestAccuracy: math.NaN(),
		FitTime:      fitTime,
		SnapshotPath: snapshot,
		Ledger:       res.Ledger,
	}
	if last, ok := res.Ledger.Last(); ok {
		sum.TestAccuracy = last.Test.Accuracy
	}
	return sum, nil
}

// #endregion run
