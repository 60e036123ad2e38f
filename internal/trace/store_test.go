package trace

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// #region helpers
func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLedger(t *testing.T, n int) *metrics.Ledger {
	t.Helper()
	l := metrics.NewLedger()
	for i := 0; i < n; i++ {
		rec := metrics.CycleRecord{
			Cycle:                  i,
			QueryLength:            10,
			QueryAccuracy:          0.5 + float64(i)/10,
			StopAccuracy:           0.5 + float64(i)/10,
			StopStdDev:             math.NaN(),
			StopCertainty:          0.6,
			QueryClassDistribution: map[string]int{"a": 4, "b": 6},
			LabeledSize:            20 + 10*i,
			UnlabeledSize:          80 - 10*i,
			Duration:               time.Millisecond,
		}
		rec.Test.Accuracy = 0.7
		rec.Unlabeled = metrics.ClassificationReport{
			Accuracy:  0.6 + float64(i)/100,
			Labels:    []string{"a", "b"},
			Confusion: [][]int{{3, 1}, {1, 5}},
			Classes:   map[string]metrics.ClassMetrics{"a": {Precision: 0.75, Support: 4}},
		}
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return l
}

func baseRun() RunRecord {
	return RunRecord{
		Strategy:            "uncertainty_lc",
		StartSize:           0.1,
		QueriesPerIteration: 10,
		Seed:                42,
		Requested:           5,
	}
}

// #endregion helpers

// #region key-tests
func TestRunKey(t *testing.T) {
	tests := []struct {
		strategy string
		start    float64
		queries  int
		want     string
	}{
		{"random", 0.1, 10, "random_0.1_10"},
		{"committee", 0.25, 1, "committee_0.25_1"},
		{"boundary", 0.05, 100, "boundary_0.05_100"},
	}
	for _, tt := range tests {
		if got := RunKey(tt.strategy, tt.start, tt.queries); got != tt.want {
			t.Errorf("RunKey = %q, want %q", got, tt.want)
		}
	}
}

// #endregion key-tests

// #region run-tests
func TestBeginFinishGet(t *testing.T) {
	s := tempStore(t)

	id, err := s.BeginRun(baseRun())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty run ID")
	}

	rec, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != StatusRunning || rec.Ledger != nil {
		t.Fatalf("expected running run without ledger, got %q ledger=%v", rec.Status, rec.Ledger)
	}
	if rec.Key != "uncertainty_lc_0.1_10" {
		t.Errorf("unexpected key %q", rec.Key)
	}

	out := Outcome{Cycles: 3, StopReason: "budget_exhausted", Ledger: sampleLedger(t, 3), FitTime: 1500 * time.Millisecond}
	if err := s.FinishRun(id, out); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	rec, err = s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != StatusFinished || rec.Cycles != 3 || rec.StopReason != "budget_exhausted" {
		t.Fatalf("unexpected finished run: %+v", rec)
	}
	if rec.Ledger == nil || rec.Ledger.Len() != 3 {
		t.Fatalf("expected 3 ledger records")
	}
	if got := rec.Ledger.Records()[2].QueryAccuracy; math.Abs(got-0.7) > 1e-12 {
		t.Errorf("expected query accuracy 0.7, got %f", got)
	}
	if !math.IsNaN(rec.Ledger.Records()[0].StopStdDev) {
		t.Error("expected NaN stddev to survive the round trip")
	}
	if rec.FinishedAt.Before(rec.CreatedAt) {
		t.Error("finished before created")
	}
}

func TestFinishRun_FinalQuality(t *testing.T) {
	s := tempStore(t)

	id, _ := s.BeginRun(baseRun())
	rec, _ := s.GetRun(id)
	if !math.IsNaN(rec.TestAccuracy) || rec.TestReport != nil || rec.FitTime != 0 {
		t.Fatalf("unfinished run should carry no final quality: %+v", rec)
	}

	out := Outcome{Cycles: 3, StopReason: "budget_exhausted", Ledger: sampleLedger(t, 3), FitTime: 1500 * time.Millisecond}
	if err := s.FinishRun(id, out); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	rec, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.FitTime != 1500*time.Millisecond {
		t.Errorf("expected fit time 1.5s, got %v", rec.FitTime)
	}
	if math.Abs(rec.TestAccuracy-0.7) > 1e-12 {
		t.Errorf("expected test accuracy 0.7, got %f", rec.TestAccuracy)
	}
	if math.Abs(rec.UnlabeledAccuracy-0.62) > 1e-12 {
		t.Errorf("expected unlabeled accuracy from the last cycle (0.62), got %f", rec.UnlabeledAccuracy)
	}
	if rec.TestReport == nil || rec.UnlabeledReport == nil {
		t.Fatal("expected both final reports")
	}
	if got := rec.UnlabeledReport.Confusion; len(got) != 2 || got[1][1] != 5 {
		t.Errorf("unexpected unlabeled confusion %v", got)
	}
	if got := rec.UnlabeledReport.Classes["a"].Precision; got != 0.75 {
		t.Errorf("expected precision 0.75 for a, got %f", got)
	}
}

func TestFinishRun_NoCycles(t *testing.T) {
	s := tempStore(t)
	id, _ := s.BeginRun(baseRun())

	if err := s.FinishRun(id, Outcome{Ledger: metrics.NewLedger()}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	rec, _ := s.GetRun(id)
	if !math.IsNaN(rec.TestAccuracy) || !math.IsNaN(rec.UnlabeledAccuracy) || rec.TestReport != nil {
		t.Fatalf("expected no final quality for an empty ledger: %+v", rec)
	}
}

func TestFinishRun_Failure(t *testing.T) {
	s := tempStore(t)
	id, _ := s.BeginRun(baseRun())

	if err := s.FinishRun(id, Outcome{Cycles: 1, Ledger: sampleLedger(t, 1), Err: errors.New("migrate: boom")}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	rec, _ := s.GetRun(id)
	if rec.Status != StatusFailed || rec.Error != "migrate: boom" {
		t.Fatalf("expected failed run, got %q %q", rec.Status, rec.Error)
	}
}

func TestFinishRun_Unknown(t *testing.T) {
	s := tempStore(t)
	err := s.FinishRun("missing", Outcome{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := tempStore(t)
	if _, err := s.GetRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndFindByKey(t *testing.T) {
	s := tempStore(t)

	first, _ := s.BeginRun(baseRun())
	other := baseRun()
	other.Strategy = "random"
	s.BeginRun(other)
	latest, _ := s.BeginRun(baseRun())

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != latest {
		t.Errorf("expected newest first")
	}

	limited, _ := s.ListRuns(1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}

	found, err := s.FindByKey("uncertainty_lc_0.1_10")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if found.RunID != latest || found.RunID == first {
		t.Errorf("expected latest run for key, got %s", found.RunID)
	}
	if _, err := s.FindByKey("committee_0.1_10"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// #endregion run-tests

// #region cycle-log-tests
func TestCycleLogger_WritesRows(t *testing.T) {
	s := tempStore(t)
	id, _ := s.BeginRun(baseRun())

	logger := NewCycleLogger(s.DB(), id)
	for _, rec := range sampleLedger(t, 3).Records() {
		logger.ObserveCycle(rec)
	}
	if err := logger.Err(); err != nil {
		t.Fatalf("CycleLogger: %v", err)
	}

	rows, err := s.Cycles(id)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.Cycle != i {
			t.Errorf("row %d has cycle %d", i, r.Cycle)
		}
		if !math.IsNaN(r.StopStdDev) {
			t.Errorf("row %d: expected NaN stddev, got %f", i, r.StopStdDev)
		}
		if r.Distribution["b"] != 6 {
			t.Errorf("row %d: distribution %v", i, r.Distribution)
		}
		if r.TestAccuracy != 0.7 || r.Duration != time.Millisecond {
			t.Errorf("row %d: test=%f duration=%v", i, r.TestAccuracy, r.Duration)
		}
	}
}

func TestCycleLogger_KeepsFirstError(t *testing.T) {
	s := tempStore(t)
	logger := NewCycleLogger(s.DB(), "no-such-run")

	recs := sampleLedger(t, 2).Records()
	logger.ObserveCycle(recs[0])
	logger.ObserveCycle(recs[1])
	if err := logger.Err(); err == nil {
		t.Fatal("expected foreign key failure")
	}
}

func TestLogCycle_DuplicateCycle(t *testing.T) {
	s := tempStore(t)
	id, _ := s.BeginRun(baseRun())
	entry := CycleEntry{RunID: id, Cycle: 0, QueryLength: 1, QueryAccuracy: 1}

	if err := LogCycle(s.DB(), entry); err != nil {
		t.Fatalf("LogCycle: %v", err)
	}
	if err := LogCycle(s.DB(), entry); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

// #endregion cycle-log-tests

// #region snapshot-tests
func TestSnapshot_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	ledger := sampleLedger(t, 4)

	path, err := WriteSnapshot(dir, RunKey("random", 0.1, 10), ledger)
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if filepath.Base(path) != "random_0.1_10.json" {
		t.Errorf("unexpected snapshot name %s", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	back, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if back.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", back.Len())
	}
	if back.Records()[3].LabeledSize != 50 {
		t.Errorf("unexpected labeled size %d", back.Records()[3].LabeledSize)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion snapshot-tests
