package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
	"github.com/danielpatrickdp/active-learning/internal/stopping"
	"github.com/danielpatrickdp/active-learning/internal/trace"
	"github.com/danielpatrickdp/active-learning/internal/traceserver"
)

// #region runs
func newRunsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored run traces",
	}
	cmd.AddCommand(newRunsListCmd(root), newRunsShowCmd(root), newRunsStopCmd(root))
	return cmd
}

func withStore(root *rootOptions, fn func(*trace.Store) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	store, err := trace.NewStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open trace store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// #endregion runs

// #region list
func newRunsListCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		remote string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if remote != "" {
				return listRemote(cmd.Context(), cmd.OutOrStdout(), remote, limit)
			}
			return withStore(root, func(store *trace.Store) error {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN ID\tKEY\tSTATUS\tCYCLES\tSTOP\tCREATED")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
						r.RunID, r.Key, r.Status, r.Cycles, r.Requested, dash(r.StopReason),
						r.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().StringVar(&remote, "remote", "", "read from an alloop serve instance at this address")
	return cmd
}

func listRemote(ctx context.Context, out io.Writer, addr string, limit int) error {
	client, err := traceserver.NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	runs, err := client.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tKEY\tSTATUS\tCYCLES\tSTOP\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.RunID, r.Key, r.Status, r.Cycles, r.Requested, dash(r.StopReason),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// #endregion list

// #region show
func newRunsShowCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the per-cycle ledger of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *trace.Store) error {
				rec, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(rec.Ledger)
				}
				return printLedger(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the raw ledger as JSON")
	return cmd
}

func printLedger(out io.Writer, rec trace.RunRecord) error {
	fmt.Fprintf(out, "run %s  %s  %s  seed=%d\n", rec.RunID, rec.Key, rec.Status, rec.Seed)
	if rec.Error != "" {
		fmt.Fprintf(out, "error: %s\n", rec.Error)
	}
	if rec.Status != trace.StatusRunning {
		fmt.Fprintf(out, "fit time: %s  final test accuracy: %s  final unlabeled accuracy: %s\n",
			rec.FitTime, num(rec.TestAccuracy), num(rec.UnlabeledAccuracy))
	}
	if rec.Ledger == nil || rec.Ledger.Len() == 0 {
		fmt.Fprintln(out, "no cycles recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "CYCLE\tLABELED\tUNLABELED\tQUERIED\tQUERY ACC\tTEST ACC\tSTDDEV\tCERTAINTY\t")
	for _, r := range rec.Ledger.Records() {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t\n",
			r.Cycle, r.LabeledSize, r.UnlabeledSize, r.QueryLength,
			num(r.QueryAccuracy), num(r.Test.Accuracy), num(r.StopStdDev), num(r.StopCertainty))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	acc, _ := rec.Ledger.Column("test_accuracy")
	s := metrics.Summarize(acc)
	fmt.Fprintf(out, "test accuracy: mean %s  min %s  max %s  last %s\n", num(s.Mean), num(s.Min), num(s.Max), num(s.Last))
	return nil
}

// #endregion show

// #region stop
func newRunsStopCmd(root *rootOptions) *cobra.Command {
	var (
		criterion string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Apply a stopping rule to a stored run after the fact",
		Long: `stop reports the first cycle at which a threshold rule on one of the
recorded stopping signals would have ended the run. accuracy and certainty
fire at or above the threshold, stddev at or below it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := stopping.Rule{Criterion: stopping.Criterion(criterion), Threshold: threshold}
			return withStore(root, func(store *trace.Store) error {
				rec, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				if rec.Ledger == nil {
					return fmt.Errorf("run %s has no ledger (status %s)", rec.RunID, rec.Status)
				}
				return printStop(cmd.OutOrStdout(), rec.Ledger, rule)
			})
		},
	}
	cmd.Flags().StringVar(&criterion, "rule", string(stopping.CriterionCertainty), "accuracy, stddev or certainty")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.9, "rule threshold")
	return cmd
}

var signalColumn = map[stopping.Criterion]string{
	stopping.CriterionAccuracy:  "stop_accuracy",
	stopping.CriterionStdDev:    "stop_stddev",
	stopping.CriterionCertainty: "stop_certainty",
}

func printStop(out io.Writer, ledger *metrics.Ledger, rule stopping.Rule) error {
	column, ok := signalColumn[rule.Criterion]
	if !ok {
		return fmt.Errorf("unknown stopping criterion %q", rule.Criterion)
	}
	values, err := ledger.Column(column)
	if err != nil {
		return err
	}
	at, err := rule.FirstCycle(values)
	if err != nil {
		return err
	}
	if at < 0 {
		fmt.Fprintf(out, "%s %g never fires in %d cycles\n", rule.Criterion, rule.Threshold, ledger.Len())
		return nil
	}
	r := ledger.Records()[at]
	fmt.Fprintf(out, "%s %g fires at cycle %d: labeled=%d test accuracy=%s (%s=%s)\n",
		rule.Criterion, rule.Threshold, at, r.LabeledSize, num(r.Test.Accuracy), rule.Criterion, num(values[at]))
	return nil
}

// #endregion stop

// #region format
func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion format
