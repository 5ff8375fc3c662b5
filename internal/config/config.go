// Package config loads ambient process settings — default pool sizing,
// cache directory, and log level — via viper + validator, the same
// load-then-validate pattern the teacher uses for its own process config.
package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the module's ambient defaults as returned by Load. No other
// package calls Load, so these values are not applied to any alias; each
// DatabaseConfig (spec.md §6) carries its own pool and cache settings.
type Config struct {
	LogLevel  string       `mapstructure:"log_level" validate:"required,uppercase"`
	CacheDir  string       `mapstructure:"cache_dir" validate:"required"`
	Pool      PoolDefaults `mapstructure:"pool" validate:"required"`
	Cache     CacheDefaults `mapstructure:"cache" validate:"required"`
}

type PoolDefaults struct {
	MinConns              int `mapstructure:"min_conns" validate:"min=0"`
	MaxConns              int `mapstructure:"max_conns" validate:"min=1"`
	AcquireTimeoutSecs    int `mapstructure:"acquire_timeout_secs" validate:"min=1"`
	IdleTimeoutSecs       int `mapstructure:"idle_timeout_secs" validate:"min=0"`
	MaxLifetimeSecs       int `mapstructure:"max_lifetime_secs" validate:"min=0"`
	MaxRetries            int `mapstructure:"max_retries" validate:"min=0"`
	RetryIntervalMillis   int `mapstructure:"retry_interval_millis" validate:"min=1"`
	KeepaliveIntervalSecs int `mapstructure:"keepalive_interval_secs" validate:"min=0"`
}

type CacheDefaults struct {
	MaxCapacity   int `mapstructure:"max_capacity" validate:"min=1"`
	MaxMemoryMB   int `mapstructure:"max_memory_mb" validate:"min=1"`
	DefaultTTLSecs int `mapstructure:"default_ttl_secs" validate:"min=1"`
	CheckIntervalSecs int `mapstructure:"check_interval_secs" validate:"min=1"`
}

func Load() *Config {
	v := viper.New()

	v.SetDefault("log_level", "INFO")
	v.SetDefault("cache_dir", "./quickdb_cache")
	v.SetDefault("pool.min_conns", 1)
	v.SetDefault("pool.max_conns", 10)
	v.SetDefault("pool.acquire_timeout_secs", 5)
	v.SetDefault("pool.idle_timeout_secs", 300)
	v.SetDefault("pool.max_lifetime_secs", 3600)
	v.SetDefault("pool.max_retries", 3)
	v.SetDefault("pool.retry_interval_millis", 200)
	v.SetDefault("pool.keepalive_interval_secs", 30)
	v.SetDefault("cache.max_capacity", 10000)
	v.SetDefault("cache.max_memory_mb", 64)
	v.SetDefault("cache.default_ttl_secs", 60)
	v.SetDefault("cache.check_interval_secs", 10)

	v.SetEnvPrefix("QUICKDB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configFile := os.Getenv("QUICKDB_CONFIG_PATH")
	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("loading configuration from specified file", "path", configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/quickdb/")
		slog.Info("config path not set, using default paths",
			"paths", []string{".", "./config", "/etc/quickdb/"},
			"filename", "config.yaml")
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("config file not found, using defaults and environment variables")
		} else {
			slog.Error("failed to read config file", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("configuration loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		slog.Error("failed to parse configuration", "error", err)
		os.Exit(1)
	}

	validateConfig(&cfg)
	logConfig(&cfg)
	return &cfg
}

func validateConfig(cfg *Config) {
	val := validator.New()

	if err := val.Struct(cfg); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration validated successfully")
}

func logConfig(cfg *Config) {
	slog.Info("final configuration",
		"log_level", cfg.LogLevel,
		"cache_dir", cfg.CacheDir,
		"pool", cfg.Pool,
		"cache", cfg.Cache)
}
