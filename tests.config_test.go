package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfigFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		config := DefaultConfig()
		require.NoError(t, LoadConfigFile(filepath.Join(t.TempDir(), "config.yml"), config))
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		config := DefaultConfig()
		require.NoError(t, LoadConfigFile(path, config))
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		data := `
log_level: debug
server:
  port: "8080"
api:
  legacy_errors: true
storage:
  driver: bolt
  timeout: 2s
boltdb:
  filepath: /tmp/library.db
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
		config := DefaultConfig()
		require.NoError(t, LoadConfigFile(path, config))
		assert.Equal(t, zapcore.DebugLevel, config.LogLevel)
		assert.Equal(t, "8080", config.Server.Port)
		assert.Equal(t, 15*time.Second, config.Server.ReadTimeout)
		assert.True(t, config.API.LegacyErrors)
		assert.False(t, config.API.NotFoundAsEmpty)
		assert.Equal(t, BoltDriver, config.Storage.Driver)
		assert.Equal(t, 2*time.Second, config.Storage.Timeout)
		assert.Equal(t, "/tmp/library.db", config.BoltDB.FilePath)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o600))
		assert.Error(t, LoadConfigFile(path, DefaultConfig()))
	})
}

func TestLoadConfigEnvs(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("LIBAPI_SERVER_PORT", "9090")
	t.Setenv("LIBAPI_STORAGE_DRIVER", RedisDriver)
	t.Setenv("LIBAPI_REDIS_HOST", "cache")
	t.Setenv("LIBAPI_API_NOT_FOUND_AS_EMPTY", "true")
	t.Setenv("LIBAPI_MIRROR_TIMEOUT", "3s")

	config := DefaultConfig()
	require.NoError(t, LoadConfigEnvs("LIBAPI", config))
	assert.Equal(t, "mongodb://db:27017", config.Mongo.URI)
	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, RedisDriver, config.Storage.Driver)
	assert.Equal(t, "cache", config.Redis.Host)
	assert.True(t, config.API.NotFoundAsEmpty)
	assert.Equal(t, 3*time.Second, config.Mirror.Timeout)
	assert.Equal(t, "biblioteca", config.Mongo.Database)
}

func TestInitConfig(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(c *Config)
		wantErr bool
	}{
		{"mongo with uri", func(c *Config) { c.Mongo.URI = "mongodb://localhost:27017" }, false},
		{"mongo without uri", func(c *Config) {}, true},
		{"mongo without database", func(c *Config) { c.Mongo.URI = "mongodb://localhost:27017"; c.Mongo.Database = "" }, true},
		{"missing port", func(c *Config) { c.Mongo.URI = "mongodb://localhost:27017"; c.Server.Port = "" }, true},
		{"redis without address", func(c *Config) { c.Storage.Driver = RedisDriver }, true},
		{"redis with address", func(c *Config) { c.Storage.Driver = RedisDriver; c.Redis.Host = "localhost"; c.Redis.Port = "6379" }, false},
		{"bolt", func(c *Config) { c.Storage.Driver = BoltDriver }, false},
		{"bolt without file", func(c *Config) { c.Storage.Driver = BoltDriver; c.BoltDB.FilePath = "" }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, true},
		{"mirror without redis", func(c *Config) { c.Storage.Driver = BoltDriver; c.Mirror.Enabled = true }, true},
		{"mirror with redis", func(c *Config) {
			c.Storage.Driver = BoltDriver
			c.Mirror.Enabled = true
			c.Redis.Host = "localhost"
			c.Redis.Port = "6379"
		}, false},
		{"mirror without file", func(c *Config) {
			c.Storage.Driver = BoltDriver
			c.Mirror.Enabled = true
			c.Mirror.FilePath = ""
			c.Redis.Host = "localhost"
			c.Redis.Port = "6379"
		}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.setup(config)
			err := InitConfig(config, "", "", "")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("build values", func(t *testing.T) {
		config := DefaultConfig()
		config.Storage.Driver = BoltDriver
		config.GitTag = "v0.0.1"
		require.NoError(t, InitConfig(config, "abc123", "", "2023-07-02"))
		assert.Equal(t, "abc123", config.GitCommit)
		assert.Equal(t, "v0.0.1", config.GitTag)
		assert.Equal(t, "2023-07-02", config.BuildTime)
	})
}
