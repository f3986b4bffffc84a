// Package config holds the configuration of the worlddb binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/worlddb/internal/dialect"
)

// Repository implementations.
const (
	RepositoryNative = "native"
	RepositoryGorm   = "gorm"
)

// Config holds the configuration shared by every worlddb binary.
type Config struct {
	// Engine is the connection to the database engine
	Engine EngineConfig `json:"engine" yaml:"engine"`

	HTTP HTTPConfig `json:"http" yaml:"http"`
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Repository selects the repository implementation
	Repository RepositoryConfig `json:"repository" yaml:"repository"`

	// Dataset controls loading of world data into the engine
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	Cache CacheConfig `json:"cache" yaml:"cache"`
	API   APIConfig   `json:"api" yaml:"api"`

	// Partitions is the number of affinity partitions used to place rows
	Partitions int `json:"partitions" yaml:"partitions"`
}

// EngineConfig holds the engine connection settings.
type EngineConfig struct {
	// Driver is one of sqlite3, sqlite, pgx, mysql
	Driver string `json:"driver" yaml:"driver"`

	// Addresses are tried in order until one answers
	Addresses []string `json:"addresses" yaml:"addresses"`

	Database string            `json:"database" yaml:"database"`
	User     string            `json:"user" yaml:"user"`
	Password string            `json:"password" yaml:"password"`
	Params   map[string]string `json:"params" yaml:"params"`

	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// RepositoryConfig selects the repository implementation.
type RepositoryConfig struct {
	// Kind is native (derived queries on the engine facade) or gorm
	Kind string `json:"kind" yaml:"kind"`

	// LogLevel is the gorm log level: silent, error, warn, info
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DatasetConfig controls what is loaded into the engine.
type DatasetConfig struct {
	// LoadOnStart loads the dataset before serving
	LoadOnStart bool `json:"load_on_start" yaml:"load_on_start"`

	// Sample loads the embedded sample world instead of stored objects
	Sample bool `json:"sample" yaml:"sample"`

	// Objects are script paths in the store, loaded in order
	Objects []string `json:"objects" yaml:"objects"`

	// Prefix loads every script under a store prefix
	Prefix string `json:"prefix" yaml:"prefix"`

	// Concurrency bounds parallel object downloads
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle is needed by MinIO and LocalStack
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// CacheConfig configures the redis result cache.
type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// APIConfig holds request defaults.
type APIConfig struct {
	// DefaultLimit is the ranking size when a request gives none
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`
}

// DefaultConfig returns the configuration for local development: an
// sqlite file loaded with the sample world.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Driver:         "sqlite3",
			Addresses:      []string{"./data/worlddb/world.db"},
			ConnectTimeout: 5 * time.Second,
			MaxOpenConns:   10,
			MaxIdleConns:   5,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Repository: RepositoryConfig{
			Kind:     RepositoryNative,
			LogLevel: "warn",
		},
		Dataset: DatasetConfig{
			LoadOnStart: true,
			Sample:      true,
			Concurrency: 4,
			Storage: StorageConfig{
				Type: "local",
				Path: "./data/worlddb/datasets",
			},
		},
		Cache: CacheConfig{
			Addr:   "localhost:6379",
			Prefix: "worlddb:",
			TTL:    time.Minute,
		},
		API: APIConfig{
			DefaultLimit: 10,
		},
		Partitions: 25,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := dialect.Lookup(c.Engine.Driver); err != nil {
		return fmt.Errorf("invalid engine.driver %q (must be one of %s)",
			c.Engine.Driver, strings.Join(dialect.Drivers(), ", "))
	}
	if len(c.Engine.Addresses) == 0 {
		return fmt.Errorf("engine.addresses must not be empty")
	}
	for i, addr := range c.Engine.Addresses {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("engine.addresses[%d] is empty", i)
		}
	}
	if c.Engine.ConnectTimeout < 0 {
		return fmt.Errorf("engine.connect_timeout must not be negative")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	switch c.Repository.Kind {
	case RepositoryNative, RepositoryGorm:
	default:
		return fmt.Errorf("invalid repository.kind: %s (must be native or gorm)", c.Repository.Kind)
	}

	if c.Dataset.Storage.Type != "local" && c.Dataset.Storage.Type != "s3" {
		return fmt.Errorf("invalid dataset.storage.type: %s (must be local or s3)", c.Dataset.Storage.Type)
	}
	if c.Dataset.Storage.Type == "s3" && c.Dataset.Storage.S3.Bucket == "" {
		return fmt.Errorf("dataset.storage.s3.bucket is required when storage type is s3")
	}
	if c.Dataset.LoadOnStart && !c.Dataset.Sample && len(c.Dataset.Objects) == 0 && c.Dataset.Prefix == "" {
		return fmt.Errorf("dataset.load_on_start needs sample, objects or prefix")
	}
	if c.Dataset.Concurrency < 1 {
		return fmt.Errorf("dataset.concurrency must be >= 1, got %d", c.Dataset.Concurrency)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	if c.API.DefaultLimit < 1 {
		return fmt.Errorf("api.default_limit must be >= 1, got %d", c.API.DefaultLimit)
	}
	if c.Partitions < 1 {
		return fmt.Errorf("partitions must be >= 1, got %d", c.Partitions)
	}
	return nil
}

// Load builds the configuration from defaults or a file, then a .env file
// in the working directory, then WORLDDB_* variables.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv exports the variables of a .env file that are not already
// set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies WORLDDB_* environment variables.
func LoadFromEnv(cfg *Config) {
	// Engine
	if v := os.Getenv("WORLDDB_ENGINE_DRIVER"); v != "" {
		cfg.Engine.Driver = v
	}
	if v := os.Getenv("WORLDDB_ENGINE_ADDRESSES"); v != "" {
		cfg.Engine.Addresses = splitList(v)
	}
	if v := os.Getenv("WORLDDB_ENGINE_DATABASE"); v != "" {
		cfg.Engine.Database = v
	}
	if v := os.Getenv("WORLDDB_ENGINE_USER"); v != "" {
		cfg.Engine.User = v
	}
	if v := os.Getenv("WORLDDB_ENGINE_PASSWORD"); v != "" {
		cfg.Engine.Password = v
	}
	if v := os.Getenv("WORLDDB_ENGINE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.ConnectTimeout = d
		}
	}
	if v := os.Getenv("WORLDDB_ENGINE_MAX_OPEN_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Engine.MaxOpenConns)
	}

	// Servers
	if v := os.Getenv("WORLDDB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("WORLDDB_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("WORLDDB_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = parseBool(v)
	}

	if v := os.Getenv("WORLDDB_REPOSITORY"); v != "" {
		cfg.Repository.Kind = v
	}
	if v := os.Getenv("WORLDDB_REPOSITORY_LOG_LEVEL"); v != "" {
		cfg.Repository.LogLevel = v
	}

	// Dataset
	if v := os.Getenv("WORLDDB_DATASET_LOAD_ON_START"); v != "" {
		cfg.Dataset.LoadOnStart = parseBool(v)
	}
	if v := os.Getenv("WORLDDB_DATASET_SAMPLE"); v != "" {
		cfg.Dataset.Sample = parseBool(v)
	}
	if v := os.Getenv("WORLDDB_DATASET_OBJECTS"); v != "" {
		cfg.Dataset.Objects = splitList(v)
	}
	if v := os.Getenv("WORLDDB_DATASET_PREFIX"); v != "" {
		cfg.Dataset.Prefix = v
	}
	if v := os.Getenv("WORLDDB_STORAGE_TYPE"); v != "" {
		cfg.Dataset.Storage.Type = v
	}
	if v := os.Getenv("WORLDDB_STORAGE_PATH"); v != "" {
		cfg.Dataset.Storage.Path = v
	}
	if v := os.Getenv("WORLDDB_S3_BUCKET"); v != "" {
		cfg.Dataset.Storage.S3.Bucket = v
	}
	if v := os.Getenv("WORLDDB_S3_REGION"); v != "" {
		cfg.Dataset.Storage.S3.Region = v
	}
	if v := os.Getenv("WORLDDB_S3_ENDPOINT"); v != "" {
		cfg.Dataset.Storage.S3.Endpoint = v
	}

	// Cache
	if v := os.Getenv("WORLDDB_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("WORLDDB_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("WORLDDB_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("WORLDDB_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("WORLDDB_API_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.DefaultLimit = n
		}
	}
	if v := os.Getenv("WORLDDB_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Partitions = n
		}
	}
}

// EnsureDirectories creates the local directories the configuration
// points at: the local store and the parent of sqlite database files.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Dataset.Storage.Type == "local" && c.Dataset.Storage.Path != "" {
		dirs = append(dirs, c.Dataset.Storage.Path)
	}
	if d, err := dialect.Lookup(c.Engine.Driver); err == nil && d.Family == dialect.FamilySQLite {
		for _, addr := range c.Engine.Addresses {
			if addr == ":memory:" || strings.HasPrefix(addr, "file:") {
				continue
			}
			dirs = append(dirs, filepath.Dir(addr))
		}
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
