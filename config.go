package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Storage drivers names.
const (
	MongoDriver = "mongo"
	RedisDriver = "redis"
	BoltDriver  = "bolt"
)

// DefaultStorageTimeout bounds each storage call when no timeout is configured.
const DefaultStorageTimeout = 10 * time.Second

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string        `yaml:"git_commit" envconfig:"LIBAPI_GIT_COMMIT" json:"git_commit"`
	GitTag                  string        `yaml:"git_tag" envconfig:"LIBAPI_GIT_TAG" json:"git_tag"`
	BuildTime               string        `yaml:"build_time" envconfig:"LIBAPI_BUILD_TIME" json:"build_time"`
	IsProduction            bool          `yaml:"is_production" envconfig:"LIBAPI_IS_PRODUCTION" json:"is_production"`
	LogLevel                zapcore.Level `yaml:"log_level" envconfig:"LIBAPI_LOG_LEVEL" json:"log_level"`
	LogFolder               string        `yaml:"log_folder" envconfig:"LIBAPI_LOG_FOLDER" json:"log_folder"`
	LogMaxSize              int           `yaml:"log_max_size" envconfig:"LIBAPI_LOG_MAX_SIZE" json:"log_max_size"`
	OpsEndpointsEnable      bool          `yaml:"ops_endpoints_enable" envconfig:"LIBAPI_OPS_ENDPOINTS_ENABLE" json:"ops_endpoints_enable"`
	ProfilerEndpointsEnable bool          `yaml:"profiler_endpoints_enable" envconfig:"LIBAPI_PROFILER_ENDPOINTS_ENABLE" json:"profiler_endpoints_enable"`
	Server                  ServerConfig  `yaml:"server" json:"server"`
	API                     APIConfig     `yaml:"api" json:"api"`
	Storage                 StorageConfig `yaml:"storage" json:"storage"`
	Mongo                   MongoConfig   `yaml:"mongo" json:"mongo"`
	Redis                   RedisConfig   `yaml:"redis" json:"redis"`
	BoltDB                  BoltDBConfig  `yaml:"boltdb" json:"boltdb"`
	Mirror                  MirrorConfig  `yaml:"mirror" json:"mirror"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LIBAPI_SERVER_HOST" json:"host"`
	Port            string        `yaml:"port" envconfig:"LIBAPI_SERVER_PORT" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"LIBAPI_SERVER_READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"LIBAPI_SERVER_WRITE_TIMEOUT" json:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"LIBAPI_SERVER_REQUEST_TIMEOUT" json:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"LIBAPI_SERVER_SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
}

// APIConfig controls how failures are reported to clients.
type APIConfig struct {
	// NotFoundAsEmpty answers update and delete of an absent document
	// with 200 and a null body instead of 404.
	NotFoundAsEmpty bool `yaml:"not_found_as_empty" envconfig:"LIBAPI_API_NOT_FOUND_AS_EMPTY" json:"not_found_as_empty"`
	// LegacyErrors reports every failure with 400. Update and delete of an
	// absent document answer 200 with a null body as NotFoundAsEmpty does.
	LegacyErrors bool `yaml:"legacy_errors" envconfig:"LIBAPI_API_LEGACY_ERRORS" json:"legacy_errors"`
}

type StorageConfig struct {
	Driver  string        `yaml:"driver" envconfig:"LIBAPI_STORAGE_DRIVER" json:"driver"`
	Timeout time.Duration `yaml:"timeout" envconfig:"LIBAPI_STORAGE_TIMEOUT" json:"timeout"`
}

type MongoConfig struct {
	URI                    string        `yaml:"uri" envconfig:"MONGO_URI" json:"-"`
	Database               string        `yaml:"database" envconfig:"LIBAPI_MONGO_DATABASE" json:"database"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout" envconfig:"LIBAPI_MONGO_CONNECT_TIMEOUT" json:"connect_timeout"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout" envconfig:"LIBAPI_MONGO_SERVER_SELECTION_TIMEOUT" json:"server_selection_timeout"`
	MaxPoolSize            uint64        `yaml:"max_pool_size" envconfig:"LIBAPI_MONGO_MAX_POOL_SIZE" json:"max_pool_size"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LIBAPI_REDIS_HOST" json:"host"`
	Port          string        `yaml:"port" envconfig:"LIBAPI_REDIS_PORT" json:"port"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LIBAPI_REDIS_DIAL_TIMEOUT" json:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LIBAPI_REDIS_READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LIBAPI_REDIS_WRITE_TIMEOUT" json:"write_timeout"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LIBAPI_REDIS_POOL_SIZE" json:"pool_size"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LIBAPI_REDIS_POOL_TIMEOUT" json:"pool_timeout"`
	Username      string        `yaml:"username" envconfig:"LIBAPI_REDIS_USERNAME" json:"-"`
	Password      string        `yaml:"password" envconfig:"LIBAPI_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LIBAPI_REDIS_DATABASE_INDEX" json:"db_index"`
}

type BoltDBConfig struct {
	FilePath string        `yaml:"filepath" envconfig:"LIBAPI_BOLTDB_FILE_PATH" json:"filepath"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LIBAPI_BOLTDB_TIMEOUT" json:"timeout"`
}

// MirrorConfig enables the replay of every change into a local bolt file.
// The changes are carried by redis queues so it requires the redis settings.
type MirrorConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"LIBAPI_MIRROR_ENABLED" json:"enabled"`
	FilePath string        `yaml:"filepath" envconfig:"LIBAPI_MIRROR_FILE_PATH" json:"filepath"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LIBAPI_MIRROR_TIMEOUT" json:"timeout"`
}

// DefaultConfig provides the values used for any setting not provided by other sources.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:   zapcore.InfoLevel,
		LogFolder:  "./logs",
		LogMaxSize: 10,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  MongoDriver,
			Timeout: DefaultStorageTimeout,
		},
		Mongo: MongoConfig{
			Database:               "biblioteca",
			ConnectTimeout:         10 * time.Second,
			ServerSelectionTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
		},
		BoltDB: BoltDBConfig{
			FilePath: "./data/library.db",
			Timeout:  5 * time.Second,
		},
		Mirror: MirrorConfig{
			FilePath: "./data/mirror.db",
			Timeout:  5 * time.Second,
		},
	}
}

// LoadConfigFile decodes the yaml file over config. A missing file is not an error.
func LoadConfigFile(configFile string, config *Config) error {
	file, err := os.Open(configFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()
	err = yaml.NewDecoder(file).Decode(config)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// LoadConfigEnvs reads the environments variables into config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig configures build tags values to be used if provided
// and ensures the settings required by the selected storage are set.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Port) == 0 {
		return errors.New("make sure to set a valid server port")
	}

	switch config.Storage.Driver {
	case MongoDriver:
		if len(config.Mongo.URI) == 0 {
			return errors.New("make sure to set the MONGO_URI connection string")
		}
		if len(config.Mongo.Database) == 0 {
			return errors.New("make sure to set the mongo database name")
		}
	case RedisDriver:
		if err := checkRedisConfig(&config.Redis); err != nil {
			return err
		}
	case BoltDriver:
		if len(config.BoltDB.FilePath) == 0 {
			return errors.New("make sure to set a valid boltdb file path")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	if config.Mirror.Enabled {
		if err := checkRedisConfig(&config.Redis); err != nil {
			return fmt.Errorf("mirror: %v", err)
		}
		if len(config.Mirror.FilePath) == 0 {
			return errors.New("make sure to set a valid mirror file path")
		}
	}

	return nil
}

func checkRedisConfig(rc *RedisConfig) error {
	if len(rc.Host) == 0 || len(rc.Port) == 0 {
		return errors.New("make sure to set valid redis address and port")
	}
	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	config := DefaultConfig()

	// Setup the yaml configuration from file.
	if err := LoadConfigFile("./config.yml", config); err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration.
	if err := godotenv.Load("./config.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `LIBAPI`.
	if err := LoadConfigEnvs("LIBAPI", config); err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	if err := InitConfig(config, gitCommit, gitTag, buildTime); err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
