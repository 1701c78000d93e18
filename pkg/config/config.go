// Package config provides YAML-based configuration loading for cryptipc
// clients and tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root client configuration.
type Config struct {
	// AppName is the logical name of the client process.
	AppName string `mapstructure:"app_name"`

	// Endpoint is the daemon endpoint address: a Unix socket path on
	// POSIX systems, a named pipe name on Windows.
	Endpoint string `mapstructure:"endpoint"`

	// ConnectTimeoutMS bounds connection establishment.
	ConnectTimeoutMS int `mapstructure:"connect_timeout_ms"`

	// MaxMessageBytes is the largest message accepted for send/receive.
	MaxMessageBytes int `mapstructure:"max_message_bytes"`

	// ReactorQueueDepth bounds the completion queue of the dispatch loop.
	ReactorQueueDepth int `mapstructure:"reactor_queue_depth"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultEndpoint returns the conventional daemon endpoint for this OS.
func DefaultEndpoint() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\cryptipcd`
	}
	return "/var/run/cryptipc/cryptipcd.sock"
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:           "cryptipc-client",
		Endpoint:          DefaultEndpoint(),
		ConnectTimeoutMS:  10000,
		MaxMessageBytes:   1 << 20,
		ReactorQueueDepth: 128,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/cryptipc.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix CRYPTIPC and `.`/`-` are replaced
// with `_`. Example: CRYPTIPC_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CRYPTIPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("endpoint", cfg.Endpoint)
	v.SetDefault("connect_timeout_ms", cfg.ConnectTimeoutMS)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("reactor_queue_depth", cfg.ReactorQueueDepth)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		if envPath := os.Getenv("CRYPTIPC_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cryptipc")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cryptipc"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint()
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 10000
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid max_message_bytes: %d", c.MaxMessageBytes)
	}
	if c.ReactorQueueDepth < 0 {
		return fmt.Errorf("invalid reactor_queue_depth: %d", c.ReactorQueueDepth)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
