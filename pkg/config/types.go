package config

import (
	"github.com/changeguard/changeguard/pkg/telemetry"
)

// Config is the application configuration, loaded from a CUE file.
type Config struct {
	// Rules configures where rule files come from.
	Rules RulesConfig `json:"rules"`

	// Evaluation configures the policy engine.
	Evaluation EvaluationConfig `json:"evaluation"`

	// History configures run history persistence.
	History HistoryConfig `json:"history"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `json:"telemetry"`
}

// RulesConfig selects the rule sources for evaluation.
type RulesConfig struct {
	// Paths are rule files or directories loaded on startup.
	Paths []string `json:"paths"`

	// Builtin includes the built-in rule set.
	Builtin bool `json:"builtin"`
}

// EvaluationConfig tunes the policy engine.
type EvaluationConfig struct {
	// Workers is the number of evaluation goroutines.
	Workers int `json:"workers" validate:"min=1"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	// Enabled turns run history recording on.
	Enabled bool `json:"enabled"`

	// Path is the SQLite database file.
	Path string `json:"path"`

	// Keep is how many recent runs to retain when pruning.
	Keep int `json:"keep" validate:"min=0"`
}

// TelemetryConfig is the file-level shape of the telemetry settings.
type TelemetryConfig struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	Metrics struct {
		Enabled       bool   `json:"enabled"`
		ListenAddress string `json:"listen_address"`
	} `json:"metrics"`

	Tracing struct {
		Enabled  bool   `json:"enabled"`
		Exporter string `json:"exporter"`
		Endpoint string `json:"endpoint"`
	} `json:"tracing"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Rules.Builtin = true
	cfg.Evaluation.Workers = 1
	cfg.History.Path = "changeguard.db"
	cfg.History.Keep = 50
	cfg.Telemetry.LogLevel = "info"
	cfg.Telemetry.LogFormat = "console"
	cfg.Telemetry.Metrics.ListenAddress = ":9090"
	cfg.Telemetry.Tracing.Exporter = "stdout"
	return cfg
}

// ToTelemetryConfig maps the file-level telemetry settings onto the
// telemetry package's configuration.
func (c *Config) ToTelemetryConfig(serviceVersion string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = serviceVersion
	if c.Telemetry.LogLevel != "" {
		tc.Logging.Level = c.Telemetry.LogLevel
	}
	if c.Telemetry.LogFormat != "" {
		tc.Logging.Format = c.Telemetry.LogFormat
	}
	tc.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	if c.Telemetry.Metrics.ListenAddress != "" {
		tc.Metrics.ListenAddress = c.Telemetry.Metrics.ListenAddress
	}
	tc.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	if c.Telemetry.Tracing.Exporter != "" {
		tc.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	}
	tc.Tracing.Endpoint = c.Telemetry.Tracing.Endpoint
	return tc
}
