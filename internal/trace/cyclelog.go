package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// #region log-cycle
// LogCycle writes one row to the cycle_log table.
func LogCycle(db *sql.DB, entry CycleEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var dist interface{}
	if len(entry.Distribution) > 0 {
		b, err := json.Marshal(entry.Distribution)
		if err != nil {
			return fmt.Errorf("marshal distribution: %w", err)
		}
		dist = string(b)
	}

	_, err := db.Exec(
		`INSERT INTO cycle_log (run_id, cycle, query_length, query_accuracy, test_accuracy, stop_stddev,
		                        stop_certainty, labeled_size, unlabeled_size, distribution, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Cycle,
		entry.QueryLength,
		nullIfNaN(entry.QueryAccuracy),
		nullIfNaN(entry.TestAccuracy),
		nullIfNaN(entry.StopStdDev),
		nullIfNaN(entry.StopCertainty),
		entry.LabeledSize,
		entry.UnlabeledSize,
		dist,
		int64(entry.Duration),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log cycle: %w", err)
	}
	return nil
}

// #endregion log-cycle

// #region cycle-logger
// CycleLogger writes every completed cycle of one run to cycle_log. It
// satisfies the controller's observer interface. Write failures do not stop
// the run; the first one is kept and reported by Err.
type CycleLogger struct {
	db    *sql.DB
	runID string

	mu  sync.Mutex
	err error
}

// NewCycleLogger returns a logger bound to runID.
func NewCycleLogger(db *sql.DB, runID string) *CycleLogger {
	return &CycleLogger{db: db, runID: runID}
}

// ObserveCycle persists rec.
func (l *CycleLogger) ObserveCycle(rec metrics.CycleRecord) {
	err := LogCycle(l.db, EntryFromRecord(l.runID, rec))
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = fmt.Errorf("cycle %d: %w", rec.Cycle, err)
	}
}

// Err returns the first write failure, if any.
func (l *CycleLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// #endregion cycle-logger

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNaN(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// #endregion helpers
