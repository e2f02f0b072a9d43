// Package config loads and validates the datavet run configuration from a
// YAML file and DATAVET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Default configuration values.
const (
	defaultParallelism  = 0 // 0 = executor threads.
	defaultOptimizer    = true
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultZScoreWindow = 30
)

// Config holds one validation run's configuration.
type Config struct {
	Database    string        `mapstructure:"database" validate:"required"`
	Table       string        `mapstructure:"table" validate:"required"`
	SuiteFile   string        `mapstructure:"suite_file" validate:"required"`
	Parallelism int           `mapstructure:"parallelism" validate:"gte=0"`
	Optimizer   bool          `mapstructure:"optimizer"`
	Deadline    time.Duration `mapstructure:"deadline" validate:"gte=0"`
	StateDir    string        `mapstructure:"state_dir"`
	PartitionID string        `mapstructure:"partition_id"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Anomaly     []AnomalyRule `mapstructure:"anomaly" validate:"dive"`
	Prometheus  bool          `mapstructure:"prometheus"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// AnomalyRule configures one pattern → strategy binding.
type AnomalyRule struct {
	Pattern   string  `mapstructure:"pattern" validate:"required"`
	Strategy  string  `mapstructure:"strategy" validate:"oneof=zscore relative_rate_of_change absolute_change"`
	Threshold float64 `mapstructure:"threshold" validate:"gt=0"`
	Window    int     `mapstructure:"window" validate:"gte=0"`
}

// Load reads the configuration. An empty path searches for datavet.yaml in
// the working directory. Unknown keys in the file are rejected.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("parallelism", defaultParallelism)
	v.SetDefault("optimizer", defaultOptimizer)
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("datavet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DATAVET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := v.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("%w: read config: %w", verrors.ErrInvalidConfiguration, readErr)
		}
	}

	var cfg Config

	// UnmarshalExact rejects options the engine does not know.
	unmarshalErr := v.UnmarshalExact(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrInvalidConfiguration, unmarshalErr)
	}

	validateErr := validator.New().Struct(&cfg)
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", verrors.ErrInvalidConfiguration, validateErr)
	}

	if cfg.Anomaly != nil {
		for i := range cfg.Anomaly {
			if cfg.Anomaly[i].Window == 0 {
				cfg.Anomaly[i].Window = defaultZScoreWindow
			}
		}
	}

	return &cfg, nil
}
