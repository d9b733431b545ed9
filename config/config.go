// Package config provides YAML-based configuration loading for taskport.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Swind/go-task-port/core"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the deployment
	AppName string `mapstructure:"app_name"`

	// Server holds the WebSocket and metrics listener settings
	Server ServerConfig `mapstructure:"server"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Dispatch tunes every runner created by the server
	Dispatch DispatchConfig `mapstructure:"dispatch"`

	// HTTP configures the builtin:http adapter
	HTTP HTTPConfig `mapstructure:"http"`

	// Storage selects the backend of the storage tasks
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig defines the listener.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	WSPath         string   `mapstructure:"ws_path"`
	MetricsPath    string   `mapstructure:"metrics_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// Codec used when a client does not ask for one: json, cbor or msgpack
	Codec string `mapstructure:"codec"`
	// SnapshotInterval is how often runner stats are exported
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	// MaxMessageSize caps one inbound WebSocket message in bytes
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Backend: zap or logrus
	Backend string `mapstructure:"backend"`
	// Outputs: list of outputs: stdout, stderr, or file paths
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

// DispatchConfig mirrors the runner options.
type DispatchConfig struct {
	DebounceThreshold     int           `mapstructure:"debounce_threshold"`
	DebounceWindow        time.Duration `mapstructure:"debounce_window"`
	MissingFunctionPolicy string        `mapstructure:"missing_function_policy"`
	TraceStart            bool          `mapstructure:"trace_start"`
	TraceFinish           bool          `mapstructure:"trace_finish"`
	FlagCollisions        bool          `mapstructure:"flag_collisions"`
	IncludeRaw            bool          `mapstructure:"include_raw"`
}

// Policy returns the parsed missing-function policy. Valid after Load.
func (d DispatchConfig) Policy() core.MissingFunctionPolicy {
	p, _ := core.ParseMissingFunctionPolicy(d.MissingFunctionPolicy)
	return p
}

// HTTPConfig configures the builtin HTTP adapter.
type HTTPConfig struct {
	// DefaultTimeout applies to requests without their own timeout; 0 disables
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// RateLimit in requests per second; 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// StorageConfig selects the key/value backend.
type StorageConfig struct {
	// Driver: memory, sqlite or redis
	Driver string `mapstructure:"driver"`
	// Prefix of the storage task names, e.g. "localstorage"
	Prefix      string `mapstructure:"prefix"`
	MemoryQuota int    `mapstructure:"memory_quota"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "taskport",
		Server: ServerConfig{
			Listen:           ":8080",
			WSPath:           "/ws",
			MetricsPath:      "/metrics",
			AllowedOrigins:   []string{"*"},
			Codec:            "json",
			SnapshotInterval: 5 * time.Second,
			MaxMessageSize:   1 << 20,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Backend:     "zap",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/taskport.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Dispatch: DispatchConfig{
			DebounceThreshold:     core.DefaultDebounceThreshold,
			DebounceWindow:        core.DefaultDebounceWindow,
			MissingFunctionPolicy: core.AbortBatch.String(),
		},
		HTTP: HTTPConfig{
			DefaultTimeout: 30 * time.Second,
			Burst:          1,
		},
		Storage: StorageConfig{
			Driver:     "memory",
			Prefix:     "localstorage",
			SQLitePath: "data/taskport.db",
			RedisAddr:  "localhost:6379",
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix TASKPORT and `.`/`-` are replaced with `_`.
// Example: TASKPORT_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.ws_path", cfg.Server.WSPath)
	v.SetDefault("server.metrics_path", cfg.Server.MetricsPath)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.codec", cfg.Server.Codec)
	v.SetDefault("server.snapshot_interval", cfg.Server.SnapshotInterval)
	v.SetDefault("server.max_message_size", cfg.Server.MaxMessageSize)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.backend", cfg.Log.Backend)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("dispatch.debounce_threshold", cfg.Dispatch.DebounceThreshold)
	v.SetDefault("dispatch.debounce_window", cfg.Dispatch.DebounceWindow)
	v.SetDefault("dispatch.missing_function_policy", cfg.Dispatch.MissingFunctionPolicy)
	v.SetDefault("dispatch.trace_start", cfg.Dispatch.TraceStart)
	v.SetDefault("dispatch.trace_finish", cfg.Dispatch.TraceFinish)
	v.SetDefault("dispatch.flag_collisions", cfg.Dispatch.FlagCollisions)
	v.SetDefault("dispatch.include_raw", cfg.Dispatch.IncludeRaw)
	v.SetDefault("http.default_timeout", cfg.HTTP.DefaultTimeout)
	v.SetDefault("http.rate_limit", cfg.HTTP.RateLimit)
	v.SetDefault("http.burst", cfg.HTTP.Burst)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.prefix", cfg.Storage.Prefix)
	v.SetDefault("storage.memory_quota", cfg.Storage.MemoryQuota)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.redis_addr", cfg.Storage.RedisAddr)
	v.SetDefault("storage.redis_db", cfg.Storage.RedisDB)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("TASKPORT_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `taskport`
		v.SetConfigName("taskport")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskport"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
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

	c.Log.Backend = strings.ToLower(strings.TrimSpace(c.Log.Backend))
	switch c.Log.Backend {
	case "":
		c.Log.Backend = "zap"
	case "zap", "logrus":
	default:
		return fmt.Errorf("invalid log.backend: %q", c.Log.Backend)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	c.Server.Codec = strings.ToLower(strings.TrimSpace(c.Server.Codec))
	switch c.Server.Codec {
	case "":
		c.Server.Codec = "json"
	case "json", "cbor", "msgpack":
	default:
		return fmt.Errorf("invalid server.codec: %q", c.Server.Codec)
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		c.Server.WSPath = "/" + c.Server.WSPath
	}
	if c.Server.MaxMessageSize < 0 {
		return fmt.Errorf("server.max_message_size must not be negative")
	}

	if _, err := core.ParseMissingFunctionPolicy(c.Dispatch.MissingFunctionPolicy); err != nil {
		return fmt.Errorf("invalid dispatch.missing_function_policy: %w", err)
	}
	if c.Dispatch.DebounceThreshold < 0 || c.Dispatch.DebounceWindow < 0 {
		return fmt.Errorf("dispatch debounce settings must not be negative")
	}

	if c.HTTP.RateLimit < 0 || c.HTTP.DefaultTimeout < 0 {
		return fmt.Errorf("http settings must not be negative")
	}
	if c.HTTP.Burst < 1 {
		c.HTTP.Burst = 1
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = "memory"
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage.driver: %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Prefix) == "" {
		c.Storage.Prefix = "localstorage"
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
