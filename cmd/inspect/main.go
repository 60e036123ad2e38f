package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
	"github.com/danielpatrickdp/active-learning/internal/trace"
)

// #region main

func main() {
	dbPath := flag.String("db", os.Getenv("ALLOOP_DB"), "path to the alloop trace database")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show the cycle log of one run")
	key := flag.String("key", "", "show the latest run with this key, e.g. random_0.1_10")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/alloop.db [--last N] [--run id | --key key] [--json]")
		os.Exit(2)
	}

	store, err := trace.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *key != "":
		rec, err := store.FindByKey(*key)
		if err == nil {
			err = runDetailMode(store, rec.RunID, *jsonOut)
		}
		exitOn(err)
	case *runID != "":
		exitOn(runDetailMode(store, *runID, *jsonOut))
	default:
		exitOn(runListMode(store, *last, *jsonOut))
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string   `json:"run_id"`
	Key        string   `json:"key"`
	Status     string   `json:"status"`
	Cycles     int      `json:"cycles"`
	Requested  int      `json:"requested"`
	StopReason string   `json:"stop_reason,omitempty"`
	FinalTest  *float64 `json:"final_test_accuracy,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func runListMode(store *trace.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// store returns newest first, print chronologically
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		row := listRow{
			RunID:      r.RunID,
			Key:        r.Key,
			Status:     r.Status,
			Cycles:     r.Cycles,
			Requested:  r.Requested,
			StopReason: r.StopReason,
			CreatedAt:  r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if r.Ledger != nil {
			if rec, ok := r.Ledger.Last(); ok {
				acc := rec.Test.Accuracy
				row.FinalTest = &acc
			}
		}
		rows[len(runs)-1-i] = row
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-8s  %-32s  %-8s  %9s  %-16s  %8s  %s\n",
		"Run", "Key", "Status", "Cycles", "Stop", "Test Acc", "Time")
	fmt.Printf("%-8s+-%-32s+-%-8s+-%9s+-%-16s+-%8s+-%s\n",
		"--------", strings.Repeat("-", 32), "--------", "---------", strings.Repeat("-", 16), "--------", "--------------------")
	for _, r := range rows {
		acc := "—"
		if r.FinalTest != nil {
			acc = fmt.Sprintf("%.4f", *r.FinalTest)
		}
		stop := r.StopReason
		if stop == "" {
			stop = "—"
		}
		fmt.Printf("%-8s  %-32s  %-8s  %4d/%-4d  %-16s  %8s  %s\n",
			shortID(r.RunID), r.Key, r.Status, r.Cycles, r.Requested, stop, acc, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID             string                        `json:"run_id"`
	Key               string                        `json:"key"`
	Status            string                        `json:"status"`
	Error             string                        `json:"error,omitempty"`
	FitTimeNS         int64                         `json:"fit_time_ns"`
	TestAccuracy      *float64                      `json:"acc_test"`
	UnlabeledAccuracy *float64                      `json:"acc_unlabeled"`
	TestReport        *metrics.ClassificationReport `json:"classification_report_test,omitempty"`
	UnlabeledReport   *metrics.ClassificationReport `json:"classification_report_unlabeled,omitempty"`
	Cycles            []trace.CycleEntry            `json:"cycles"`
}

func runDetailMode(store *trace.Store, runID string, jsonOut bool) error {
	rec, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	cycles, err := store.Cycles(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		// JSON has no NaN
		for i := range cycles {
			if math.IsNaN(cycles[i].StopStdDev) {
				cycles[i].StopStdDev = -1
			}
		}
		return printJSON(detailOutput{
			RunID:             rec.RunID,
			Key:               rec.Key,
			Status:            rec.Status,
			Error:             rec.Error,
			FitTimeNS:         int64(rec.FitTime),
			TestAccuracy:      finite(rec.TestAccuracy),
			UnlabeledAccuracy: finite(rec.UnlabeledAccuracy),
			TestReport:        rec.TestReport,
			UnlabeledReport:   rec.UnlabeledReport,
			Cycles:            cycles,
		})
	}

	fmt.Printf("Run:      %s\n", rec.RunID)
	fmt.Printf("Key:      %s\n", rec.Key)
	fmt.Printf("Status:   %s\n", rec.Status)
	fmt.Printf("Seed:     %d\n", rec.Seed)
	fmt.Printf("Cycles:   %d of %d\n", rec.Cycles, rec.Requested)
	if rec.Error != "" {
		fmt.Printf("Error:    %s\n", rec.Error)
	}
	if rec.Status != trace.StatusRunning {
		fmt.Printf("Fit time: %s\n", rec.FitTime)
		fmt.Printf("Test:     %s\n", orDash(rec.TestAccuracy))
		fmt.Printf("Pool:     %s\n", orDash(rec.UnlabeledAccuracy))
	}

	fmt.Printf("\n%5s  %7s  %9s  %9s  %9s  %8s  %9s  %s\n",
		"Cycle", "Labeled", "Unlabeled", "Query Acc", "Test Acc", "StdDev", "Certainty", "Queried")
	for _, c := range cycles {
		fmt.Printf("%5d  %7d  %9d  %9.4f  %9.4f  %8s  %9.4f  %s\n",
			c.Cycle, c.LabeledSize, c.UnlabeledSize, c.QueryAccuracy, c.TestAccuracy,
			orDash(c.StopStdDev), c.StopCertainty, distribution(c.Distribution))
	}
	return nil
}

// #endregion detail-mode

// #region output

func distribution(d map[string]int) string {
	labels := make([]string, 0, len(d))
	for l := range d {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s:%d", l, d[l])
	}
	return strings.Join(parts, " ")
}

func orDash(v float64) string {
	if math.IsNaN(v) {
		return "—"
	}
	return fmt.Sprintf("%.4f", v)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
