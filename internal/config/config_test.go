package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValues(t *testing.T) {
	envVars := []string{
		"QUICKDB_LOG_LEVEL",
		"QUICKDB_CACHE_DIR",
		"QUICKDB_CONFIG_PATH",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
	defer func() {
		for _, env := range envVars {
			os.Unsetenv(env)
		}
	}()

	t.Run("default configuration structure", func(t *testing.T) {
		cfg := &Config{
			LogLevel: "INFO",
			CacheDir: "./quickdb_cache",
			Pool: PoolDefaults{
				MinConns:              1,
				MaxConns:              10,
				AcquireTimeoutSecs:    5,
				IdleTimeoutSecs:       300,
				MaxLifetimeSecs:       3600,
				MaxRetries:            3,
				RetryIntervalMillis:   200,
				KeepaliveIntervalSecs: 30,
			},
			Cache: CacheDefaults{
				MaxCapacity:       10000,
				MaxMemoryMB:       64,
				DefaultTTLSecs:    60,
				CheckIntervalSecs: 10,
			},
		}

		assert.NotNil(t, cfg)
		assert.Equal(t, "INFO", cfg.LogLevel)
		assert.Equal(t, "./quickdb_cache", cfg.CacheDir)
		assert.Equal(t, 1, cfg.Pool.MinConns)
		assert.Equal(t, 10, cfg.Pool.MaxConns)
		assert.Equal(t, 5, cfg.Pool.AcquireTimeoutSecs)
		assert.Equal(t, 10000, cfg.Cache.MaxCapacity)
		assert.Equal(t, 64, cfg.Cache.MaxMemoryMB)
	})
}

func TestConfig_EnvironmentVariables(t *testing.T) {
	testCases := []struct {
		envVar   string
		envValue string
		testName string
	}{
		{"QUICKDB_LOG_LEVEL", "DEBUG", "log level"},
		{"QUICKDB_CACHE_DIR", "/tmp/test_quickdb_cache", "cache directory"},
		{"QUICKDB_POOL_MAX_CONNS", "20", "pool max conns"},
		{"QUICKDB_CACHE_MAX_CAPACITY", "50000", "cache max capacity"},
	}

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			err := os.Setenv(tc.envVar, tc.envValue)
			require.NoError(t, err)
			defer os.Unsetenv(tc.envVar)

			value := os.Getenv(tc.envVar)
			assert.Equal(t, tc.envValue, value)
		})
	}
}

func TestConfig_StructureValidation(t *testing.T) {
	t.Run("valid config structure", func(t *testing.T) {
		cfg := &Config{
			LogLevel: "INFO",
			CacheDir: "./data/cache",
			Pool: PoolDefaults{
				MinConns: 2,
				MaxConns: 8,
			},
			Cache: CacheDefaults{
				MaxCapacity: 5000,
				MaxMemoryMB: 32,
			},
		}

		assert.Equal(t, "INFO", cfg.LogLevel)
		assert.Equal(t, "./data/cache", cfg.CacheDir)
		assert.Equal(t, 2, cfg.Pool.MinConns)
		assert.Equal(t, 8, cfg.Pool.MaxConns)
		assert.Equal(t, 5000, cfg.Cache.MaxCapacity)
		assert.Equal(t, 32, cfg.Cache.MaxMemoryMB)
	})
}

func TestPoolDefaults_ZeroValues(t *testing.T) {
	opts := PoolDefaults{}
	assert.Equal(t, 0, opts.MinConns)
	assert.Equal(t, 0, opts.MaxConns)
}

func TestCacheDefaults_Creation(t *testing.T) {
	opts := CacheDefaults{
		MaxCapacity:       1000,
		MaxMemoryMB:       16,
		DefaultTTLSecs:    30,
		CheckIntervalSecs: 5,
	}
	assert.Equal(t, 1000, opts.MaxCapacity)
	assert.Equal(t, 16, opts.MaxMemoryMB)
	assert.Equal(t, 30, opts.DefaultTTLSecs)
	assert.Equal(t, 5, opts.CheckIntervalSecs)
}

func TestConfig_LogLevels(t *testing.T) {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for _, level := range validLogLevels {
		t.Run("log level "+level, func(t *testing.T) {
			cfg := &Config{LogLevel: level}
			assert.Equal(t, level, cfg.LogLevel)
		})
	}
}
