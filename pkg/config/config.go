// Package config provides YAML-based configuration loading for taskmesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName is the logical name of the node/application.
	AppName string `mapstructure:"app_name"`

	// NodeID is the local participant identifier used in message routing.
	NodeID string `mapstructure:"node_id"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// Scheduler holds placement and supervision options.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Comm holds peer messaging and heartbeat options.
	Comm CommConfig `mapstructure:"comm"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`
	// Rotation controls file rotation for file outputs
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// SchedulerConfig defines placement strategy and supervision limits.
type SchedulerConfig struct {
	// Strategy: round-robin, least-loaded, random, capability
	Strategy string `mapstructure:"strategy"`
	// MaxRetries bounds requeues per task
	MaxRetries int `mapstructure:"max_retries"`
	// TimeoutMS is the per-attempt execution timeout
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// CommConfig defines heartbeat cadence and message delivery limits.
type CommConfig struct {
	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms"`
	MessageTimeoutMS    int `mapstructure:"message_timeout_ms"`
	MaxRetries          int `mapstructure:"max_retries"`
	// Codec is the wire codec content type: application/cbor or
	// application/json
	Codec string `mapstructure:"codec"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "taskmesh-node",
		NodeID:  "node-1",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Scheduler: SchedulerConfig{
			Strategy:   "round-robin",
			MaxRetries: 3,
			TimeoutMS:  30000,
		},
		Comm: CommConfig{
			HeartbeatIntervalMS: 5000,
			MessageTimeoutMS:    10000,
			MaxRetries:          3,
			Codec:               "application/cbor",
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides. Env vars
// use the TASKMESH prefix with `.`/`-` replaced by `_`, e.g.
// TASKMESH_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("scheduler.strategy", cfg.Scheduler.Strategy)
	v.SetDefault("scheduler.max_retries", cfg.Scheduler.MaxRetries)
	v.SetDefault("scheduler.timeout_ms", cfg.Scheduler.TimeoutMS)
	v.SetDefault("comm.heartbeat_interval_ms", cfg.Comm.HeartbeatIntervalMS)
	v.SetDefault("comm.message_timeout_ms", cfg.Comm.MessageTimeoutMS)
	v.SetDefault("comm.max_retries", cfg.Comm.MaxRetries)
	v.SetDefault("comm.codec", cfg.Comm.Codec)

	if path == "" {
		if env := os.Getenv("TASKMESH_CONFIG"); env != "" {
			path = env
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskmesh")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/taskmesh")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// no file found; defaults + env apply
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id must not be empty")
	}
	return cfg, nil
}
