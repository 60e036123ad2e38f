package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/active-learning/internal/config"
	"github.com/danielpatrickdp/active-learning/internal/logging"
	"github.com/danielpatrickdp/active-learning/internal/trace"
)

// #region root
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "alloop",
		Short: "Pool-based active learning experiments",
		Long: `alloop runs pool-based active-learning experiments: it retrains a
classifier, queries the unlabeled pool with a sampling strategy, and records
per-cycle metrics and stopping signals into a SQLite run trace.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "trace database (overrides config and ALLOOP_DB)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newRunCmd(opts), newRunsCmd(opts), newServeCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion root

// #region shared
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dbPath != "" {
		cfg.Store.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

func (o *rootOptions) open() (config.Config, *trace.Store, *zap.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return cfg, nil, nil, err
	}
	store, err := trace.NewStore(cfg.Store.DBPath)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("open trace store: %w", err)
	}
	return cfg, store, log, nil
}

// #endregion shared
