package trace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id                TEXT PRIMARY KEY,
	run_key               TEXT NOT NULL,
	strategy              TEXT NOT NULL,
	start_size            REAL NOT NULL,
	queries_per_iteration INTEGER NOT NULL,
	seed                  INTEGER NOT NULL,
	requested             INTEGER NOT NULL,
	cycles                INTEGER NOT NULL DEFAULT 0,
	stop_reason           TEXT,
	status                TEXT NOT NULL,
	error                 TEXT,
	ledger_json           TEXT,
	fit_time_ns           INTEGER,
	acc_test              REAL,
	acc_unlabeled         REAL,
	report_test           TEXT,
	report_unlabeled      TEXT,
	created_at            TEXT NOT NULL,
	finished_at           TEXT
);

CREATE INDEX IF NOT EXISTS runs_by_key ON runs(run_key, created_at);

CREATE TABLE IF NOT EXISTS cycle_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	cycle           INTEGER NOT NULL,
	query_length    INTEGER NOT NULL,
	query_accuracy  REAL,
	test_accuracy   REAL,
	stop_stddev     REAL,
	stop_certainty  REAL,
	labeled_size    INTEGER NOT NULL,
	unlabeled_size  INTEGER NOT NULL,
	distribution    TEXT,
	duration_ns     INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	UNIQUE (run_id, cycle),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store
// Store persists run traces in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection for LogCycle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region begin-run
// BeginRun inserts a run in the running state and returns its new ID. Cycle
// log rows reference this ID, so it must exist before the loop starts.
func (s *Store) BeginRun(rec RunRecord) (string, error) {
	id := uuid.New().String()
	if rec.Key == "" {
		rec.Key = RunKey(rec.Strategy, rec.StartSize, rec.QueriesPerIteration)
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, run_key, strategy, start_size, queries_per_iteration, seed, requested, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Key, rec.Strategy, rec.StartSize, rec.QueriesPerIteration, rec.Seed, rec.Requested,
		StatusRunning, now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// #endregion begin-run

// #region finish-run
// FinishRun stores the final ledger and outcome of a run, along with the
// accuracies and reports of the last cycle. A non-nil out.Err marks the run
// failed; the partial ledger is still kept.
func (s *Store) FinishRun(runID string, out Outcome) error {
	var ledgerJSON, accTest, accUnlabeled, reportTest, reportUnlabeled interface{}
	if out.Ledger != nil {
		b, err := json.Marshal(out.Ledger)
		if err != nil {
			return fmt.Errorf("marshal ledger: %w", err)
		}
		ledgerJSON = string(b)

		if last, ok := out.Ledger.Last(); ok {
			accTest = nullIfNaN(last.Test.Accuracy)
			accUnlabeled = nullIfNaN(last.Unlabeled.Accuracy)
			if reportTest, err = marshalReport(last.Test); err != nil {
				return err
			}
			if reportUnlabeled, err = marshalReport(last.Unlabeled); err != nil {
				return err
			}
		}
	}
	status, errText := StatusFinished, interface{}(nil)
	if out.Err != nil {
		status, errText = StatusFailed, out.Err.Error()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE runs SET cycles = ?, stop_reason = ?, status = ?, error = ?, ledger_json = ?,
		        fit_time_ns = ?, acc_test = ?, acc_unlabeled = ?, report_test = ?, report_unlabeled = ?,
		        finished_at = ?
		 WHERE run_id = ?`,
		out.Cycles, nullIfEmpty(out.StopReason), status, errText, ledgerJSON,
		int64(out.FitTime), accTest, accUnlabeled, reportTest, reportUnlabeled,
		time.Now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrNotFound)
	}
	return tx.Commit()
}

func marshalReport(r metrics.ClassificationReport) (interface{}, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return string(b), nil
}

// #endregion finish-run

// #region get-run
const runColumns = `run_id, run_key, strategy, start_size, queries_per_iteration, seed, requested,
	cycles, stop_reason, status, error, ledger_json, fit_time_ns, acc_test, acc_unlabeled,
	report_test, report_unlabeled, created_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var stopReason, errText, ledgerJSON, reportTest, reportUnlabeled, finished sql.NullString
	var fitTime sql.NullInt64
	var accTest, accUnlabeled sql.NullFloat64
	var created string

	err := row.Scan(&rec.RunID, &rec.Key, &rec.Strategy, &rec.StartSize, &rec.QueriesPerIteration,
		&rec.Seed, &rec.Requested, &rec.Cycles, &stopReason, &rec.Status, &errText, &ledgerJSON,
		&fitTime, &accTest, &accUnlabeled, &reportTest, &reportUnlabeled,
		&created, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	rec.StopReason = stopReason.String
	rec.Error = errText.String
	rec.FitTime = time.Duration(fitTime.Int64)
	rec.TestAccuracy = orNaN(accTest)
	rec.UnlabeledAccuracy = orNaN(accUnlabeled)
	if rec.TestReport, err = unmarshalReport(reportTest); err != nil {
		return RunRecord{}, err
	}
	if rec.UnlabeledReport, err = unmarshalReport(reportUnlabeled); err != nil {
		return RunRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(timeLayout, finished.String)
	}
	if ledgerJSON.Valid {
		rec.Ledger = metrics.NewLedger()
		if err := json.Unmarshal([]byte(ledgerJSON.String), rec.Ledger); err != nil {
			return RunRecord{}, fmt.Errorf("unmarshal ledger: %w", err)
		}
	}
	return rec, nil
}

func unmarshalReport(v sql.NullString) (*metrics.ClassificationReport, error) {
	if !v.Valid {
		return nil, nil
	}
	var r metrics.ClassificationReport
	if err := json.Unmarshal([]byte(v.String), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// GetRun retrieves a run by ID, ledger included.
func (s *Store) GetRun(id string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// FindByKey returns the most recent run with the given configuration key.
func (s *Store) FindByKey(key string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE run_key = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("find run %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("find run %q: %w", key, err)
	}
	return rec, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-runs

// #region cycles
// Cycles returns the cycle_log rows of a run in cycle order.
func (s *Store) Cycles(runID string) ([]CycleEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, cycle, query_length, query_accuracy, test_accuracy, stop_stddev, stop_certainty,
		        labeled_size, unlabeled_size, distribution, duration_ns, created_at
		 FROM cycle_log WHERE run_id = ? ORDER BY cycle`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleEntry
	for rows.Next() {
		var e CycleEntry
		var qa, ta, sd, sc sql.NullFloat64
		var dist sql.NullString
		var dur int64
		var created string
		if err := rows.Scan(&e.RunID, &e.Cycle, &e.QueryLength, &qa, &ta, &sd, &sc,
			&e.LabeledSize, &e.UnlabeledSize, &dist, &dur, &created); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		e.QueryAccuracy = orNaN(qa)
		e.TestAccuracy = orNaN(ta)
		e.StopStdDev = orNaN(sd)
		e.StopCertainty = orNaN(sc)
		e.Duration = time.Duration(dur)
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		if dist.Valid {
			if err := json.Unmarshal([]byte(dist.String), &e.Distribution); err != nil {
				return nil, fmt.Errorf("unmarshal distribution: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion cycles
