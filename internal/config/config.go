package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
	"github.com/danielpatrickdp/active-learning/internal/learner"
	"github.com/danielpatrickdp/active-learning/internal/strategy"
)

// #region types
// Config describes one experiment: where the data lives, how it is split,
// which strategy and model run, and where the trace goes.
type Config struct {
	Data          DataConfig              `yaml:"data"`
	Split         dataset.DivideConfig    `yaml:"split"`
	Strategy      string                  `yaml:"strategy" validate:"required,strategy"`
	CommitteeSize int                     `yaml:"committee_size" validate:"gte=0"`
	Learner       learner.Config          `yaml:"learner"`
	Forest        classifier.ForestConfig `yaml:"forest"`
	Seed          int64                   `yaml:"seed"`
	Store         StoreConfig             `yaml:"store"`
	Log           LogConfig               `yaml:"log"`
	Server        ServerConfig            `yaml:"server"`
}

// DataConfig points at the input table.
type DataConfig struct {
	Path        string `yaml:"path"`
	Format      string `yaml:"format" validate:"oneof=csv fixture"`
	LabelColumn string `yaml:"label_column" validate:"required_if=Format csv"`
}

// StoreConfig locates the SQLite trace store and the JSON snapshots.
type StoreConfig struct {
	DBPath      string `yaml:"db_path" validate:"required"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LogConfig sets the zap level.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// ServerConfig holds listen addresses for alloop serve.
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// #endregion types

// #region defaults
// DefaultConfig returns the defaults. Data.Path has none; commands that
// run experiments require it.
func DefaultConfig() Config {
	return Config{
		Data:          DataConfig{Format: "csv", LabelColumn: "label"},
		Split:         dataset.DefaultDivideConfig(),
		Strategy:      string(strategy.UncertaintyLC),
		CommitteeSize: strategy.DefaultCommitteeSize,
		Learner:       learner.DefaultConfig(),
		Forest:        classifier.DefaultForestConfig(),
		Seed:          1,
		Store:         StoreConfig{DBPath: "alloop.db", SnapshotDir: "traces"},
		Log:           LogConfig{Level: "info"},
		Server:        ServerConfig{GRPCAddr: ":50051", MetricsAddr: ":9090"},
	}
}

// #endregion defaults

// #region load
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, ok := strategy.Registry[strategy.ID(fl.Field().String())]
		return ok
	})
	return v
}

// Load reads a YAML file over DefaultConfig, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q: %w", verrs[0].Namespace(), verrs[0].Tag(), err)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Store.DBPath = envOr("ALLOOP_DB", cfg.Store.DBPath)
	cfg.Store.SnapshotDir = envOr("ALLOOP_SNAPSHOT_DIR", cfg.Store.SnapshotDir)
	cfg.Log.Level = envOr("ALLOOP_LOG_LEVEL", cfg.Log.Level)
	if v := os.Getenv("ALLOOP_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load
