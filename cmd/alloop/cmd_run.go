package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/active-learning/internal/experiment"
	"github.com/danielpatrickdp/active-learning/internal/telemetry"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		data        string
		strategyID  string
		queries     int
		iterations  int
		seed        int64
		committee   int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one active-learning experiment and store its trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, log, err := root.open()
			if err != nil {
				return err
			}
			defer store.Close()
			defer log.Sync()

			flags := cmd.Flags()
			if flags.Changed("data") {
				cfg.Data.Path = data
			}
			if flags.Changed("strategy") {
				cfg.Strategy = strategyID
			}
			if flags.Changed("queries") {
				cfg.Learner.QueriesPerIteration = queries
			}
			if flags.Changed("iterations") {
				cfg.Learner.Iterations = iterations
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if flags.Changed("committee-size") {
				cfg.CommitteeSize = committee
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			m := telemetry.New()
			stopMetrics := func() error { return nil }
			if metricsAddr != "" {
				ctx, cancel := context.WithCancel(cmd.Context())
				g, gctx := errgroup.WithContext(ctx)
				serveMetrics(gctx, g, metricsAddr, m, log)
				stopMetrics = func() error {
					cancel()
					return g.Wait()
				}
			}

			sum, err := experiment.Run(cmd.Context(), cfg, experiment.Deps{
				Store:   store,
				Metrics: m,
				Logger:  log,
			})
			if serr := stopMetrics(); serr != nil {
				log.Warn("metrics server", zap.Error(serr))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s)\n", sum.RunID, sum.Key)
			fmt.Fprintf(out, "  cycles:        %d of %d (%s)\n", sum.Cycles, sum.Requested, sum.StopReason)
			fmt.Fprintf(out, "  test accuracy: %.4f\n", sum.TestAccuracy)
			fmt.Fprintf(out, "  fit time:      %s\n", sum.FitTime)
			if sum.SnapshotPath != "" {
				fmt.Fprintf(out, "  snapshot:      %s\n", sum.SnapshotPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&data, "data", "", "input table path")
	f.StringVarP(&strategyID, "strategy", "s", "", "query strategy")
	f.IntVarP(&queries, "queries", "q", 0, "queries per iteration")
	f.IntVarP(&iterations, "iterations", "n", 0, "iteration budget")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.IntVar(&committee, "committee-size", 0, "committee size for the committee strategy")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve live /metrics on this address while the run executes")
	return cmd
}
