package trace

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// ErrNotFound is returned when no run matches the requested ID or key.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// #region run-record
// RunRecord is one persisted controller run. Ledger is nil until the run
// has been finished.
type RunRecord struct {
	RunID               string
	Key                 string
	Strategy            string
	StartSize           float64
	QueriesPerIteration int
	Seed                int64
	Requested           int
	Cycles              int
	StopReason          string
	Status              string
	Error               string
	Ledger              *metrics.Ledger
	CreatedAt           time.Time
	FinishedAt          time.Time

	// Final model quality, taken from the last ledger record. Accuracies are
	// NaN and reports nil when no cycle completed.
	FitTime           time.Duration
	TestAccuracy      float64
	UnlabeledAccuracy float64
	TestReport        *metrics.ClassificationReport
	UnlabeledReport   *metrics.ClassificationReport
}

// Outcome is what FinishRun records once the loop has ended.
type Outcome struct {
	Cycles     int
	StopReason string
	Ledger     *metrics.Ledger
	FitTime    time.Duration // wall time of the cycle loop
	Err        error         // non-nil marks the run failed
}

// RunKey names a run by its configuration, e.g. "uncertainty_lc_0.1_10".
func RunKey(strategy string, startSize float64, queries int) string {
	return fmt.Sprintf("%s_%s_%d", strategy, strconv.FormatFloat(startSize, 'g', -1, 64), queries)
}

// #endregion run-record

// #region cycle-entry
// CycleEntry is a single row in the cycle_log table.
type CycleEntry struct {
	RunID         string
	Cycle         int
	QueryLength   int
	QueryAccuracy float64
	TestAccuracy  float64
	StopStdDev    float64 // NaN stored as NULL
	StopCertainty float64
	LabeledSize   int
	UnlabeledSize int
	Distribution  map[string]int
	Duration      time.Duration
	CreatedAt     time.Time
}

// EntryFromRecord flattens a ledger record into a cycle_log row.
func EntryFromRecord(runID string, rec metrics.CycleRecord) CycleEntry {
	return CycleEntry{
		RunID:         runID,
		Cycle:         rec.Cycle,
		QueryLength:   rec.QueryLength,
		QueryAccuracy: rec.QueryAccuracy,
		TestAccuracy:  rec.Test.Accuracy,
		StopStdDev:    rec.StopStdDev,
		StopCertainty: rec.StopCertainty,
		LabeledSize:   rec.LabeledSize,
		UnlabeledSize: rec.UnlabeledSize,
		Distribution:  rec.QueryClassDistribution,
		Duration:      rec.Duration,
	}
}

// #endregion cycle-entry
