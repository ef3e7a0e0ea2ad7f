package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. PERSIST_STORAGE_DEFAULT_KIND.
const EnvPrefix = "PERSIST_"

type Config struct {
	Storage       StorageConfig       `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Paths         PathsConfig         `yaml:"paths" json:"paths" envPrefix:"PATH_"`
	Serialization SerializationConfig `yaml:"serialization" json:"serialization" envPrefix:"SERIALIZATION_"`
	Encryption    EncryptionConfig    `yaml:"encryption" json:"encryption" envPrefix:"ENCRYPTION_"`
	Compression   CompressionConfig   `yaml:"compression" json:"compression" envPrefix:"COMPRESSION_"`
	KeyValue      KeyValueConfig      `yaml:"key_value" json:"key_value" envPrefix:"KV_"`
	Database      DatabaseConfig      `yaml:"database" json:"database" envPrefix:"DB_"`
	Cache         CacheConfig         `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Backup        BackupConfig        `yaml:"backup" json:"backup" envPrefix:"BACKUP_"`
	Remote        RemoteConfig        `yaml:"remote" json:"remote" envPrefix:"REMOTE_"`
	Server        ServerConfig        `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	Tracing       TracingConfig       `yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
}

type StorageConfig struct {
	DefaultKind     string `yaml:"default_kind" json:"default_kind" env:"DEFAULT_KIND"`
	KeyPrefix       string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	JSONExtension   string `yaml:"json_extension" json:"json_extension" env:"JSON_EXTENSION"`
	BinaryExtension string `yaml:"binary_extension" json:"binary_extension" env:"BINARY_EXTENSION"`
	ValidateData    bool   `yaml:"validate_data" json:"validate_data" env:"VALIDATE_DATA"`
}

type PathsConfig struct {
	Data   string `yaml:"data" json:"data" env:"DATA"`
	Backup string `yaml:"backup" json:"backup" env:"BACKUP"`
	Temp   string `yaml:"temp" json:"temp" env:"TEMP"`
}

type SerializationConfig struct {
	DefaultFormat string `yaml:"default_format" json:"default_format" env:"DEFAULT_FORMAT"`
	PrettyPrint   bool   `yaml:"pretty_print" json:"pretty_print" env:"PRETTY_PRINT"`
}

type EncryptionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Key       string `yaml:"key" json:"-" env:"KEY"`
	Algorithm string `yaml:"algorithm" json:"algorithm" env:"ALGORITHM"` // xor, aes
}

type CompressionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Algorithm string `yaml:"algorithm" json:"algorithm" env:"ALGORITHM"` // gzip, deflate, zstd, s2, lz4
	Level     int    `yaml:"level" json:"level" env:"LEVEL"`
}

type KeyValueConfig struct {
	Backend       string `yaml:"backend" json:"backend" env:"BACKEND"` // badger, bolt, redis, memory
	Path          string `yaml:"path" json:"path" env:"PATH"`
	InMemory      bool   `yaml:"in_memory" json:"in_memory" env:"IN_MEMORY"`
	SyncWrites    bool   `yaml:"sync_writes" json:"sync_writes" env:"SYNC_WRITES"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" json:"-" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db" env:"REDIS_DB"`
}

type DatabaseConfig struct {
	Dialect        string        `yaml:"dialect" json:"dialect" env:"DIALECT"` // sqlite, sqlite-replace, mysql, postgres
	DSN            string        `yaml:"dsn" json:"-" env:"DSN"`
	Name           string        `yaml:"name" json:"name" env:"NAME"`
	Table          string        `yaml:"table" json:"table" env:"TABLE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Size    int           `yaml:"size" json:"size" env:"SIZE"` // Maximum number of cached values per provider
	TTL     time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

// BackupConfig is declared for configuration files; no provider schedules backups yet.
type BackupConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval" env:"INTERVAL"`
	Count    int           `yaml:"count" json:"count" env:"COUNT"`
}

type RemoteConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Address   string        `yaml:"address" json:"address" env:"ADDRESS"`          // dial target for the cloud provider
	Listen    string        `yaml:"listen" json:"listen" env:"LISTEN"`             // serve address for cmd/server
	ServeKind string        `yaml:"serve_kind" json:"serve_kind" env:"SERVE_KIND"` // kind served on Listen, default kind when empty
	Timeout   time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"HOST"`
	Port         int           `yaml:"port" json:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxBodySize  int64         `yaml:"max_body_size" json:"max_body_size" env:"MAX_BODY_SIZE"`
}

type LoggingConfig struct {
	Level                 string `yaml:"level" json:"level" env:"LEVEL"`
	Format                string `yaml:"format" json:"format" env:"FORMAT"`
	Output                string `yaml:"output" json:"output" env:"OUTPUT"`
	EnableRequestTracing  bool   `yaml:"enable_request_tracing" json:"enable_request_tracing" env:"ENABLE_REQUEST_TRACING"`
	EnableDatabaseLogging bool   `yaml:"enable_database_logging" json:"enable_database_logging" env:"ENABLE_DATABASE_LOGGING"`
}

// TracingConfig controls OpenTelemetry spans around provider operations
// and HTTP requests. Exporter "log" writes finished spans through the
// structured logger; "none" keeps spans in-process only.
type TracingConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled" env:"ENABLED"`
	ServiceName   string  `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
	Environment   string  `yaml:"environment" json:"environment" env:"ENVIRONMENT"`
	Exporter      string  `yaml:"exporter" json:"exporter" env:"EXPORTER"`
	SamplingRatio float64 `yaml:"sampling_ratio" json:"sampling_ratio" env:"SAMPLING_RATIO"`
}

// MetricsConfig enables Prometheus metrics, served by cmd/server on Path.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" json:"path" env:"PATH"`
}

var (
	validKinds   = []string{"keyvalue", "jsonfile", "binaryfile", "database", "cloud"}
	validFormats = []string{"json", "binary", "cbor", "protobuf"}
)

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DefaultKind:     "keyvalue",
			KeyPrefix:       "",
			JSONExtension:   ".json",
			BinaryExtension: ".dat",
			ValidateData:    true,
		},
		Paths: PathsConfig{
			Data:   "./data",
			Backup: "./data/backups",
			Temp:   "./data/tmp",
		},
		Serialization: SerializationConfig{
			DefaultFormat: "json",
			PrettyPrint:   false,
		},
		Encryption: EncryptionConfig{
			Enabled:   false,
			Algorithm: "xor",
		},
		Compression: CompressionConfig{
			Enabled:   false,
			Algorithm: "gzip",
			Level:     6,
		},
		KeyValue: KeyValueConfig{
			Backend:   "badger",
			Path:      "", // derived from Paths.Data when empty
			RedisAddr: "localhost:6379",
		},
		Database: DatabaseConfig{
			Dialect:        "sqlite",
			DSN:            "", // derived from Paths.Data when empty
			Name:           "persistence",
			Table:          "persistence_data",
			ConnectTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			Size:    1000,
			TTL:     10 * time.Minute,
		},
		Backup: BackupConfig{
			Interval: 30 * time.Minute,
			Count:    3,
		},
		Remote: RemoteConfig{
			Enabled: false,
			Address: "localhost:9090",
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodySize:  4 * 1024 * 1024, // 4MB
		},
		Logging: LoggingConfig{
			Level:                 "info",
			Format:                "json",
			Output:                "stdout",
			EnableRequestTracing:  true,
			EnableDatabaseLogging: false,
		},
		Tracing: TracingConfig{
			Enabled:       false,
			ServiceName:   "persistence-engine",
			Environment:   "development",
			Exporter:      "log",
			SamplingRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

func loadFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

func loadFromEnvironment(config *Config) error {
	return env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix})
}

func (c *Config) Validate() error {
	if !slices.Contains(validKinds, strings.ToLower(c.Storage.DefaultKind)) {
		return fmt.Errorf("invalid default storage kind: %s", c.Storage.DefaultKind)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Serialization.DefaultFormat)) {
		return fmt.Errorf("invalid default serialization format: %s", c.Serialization.DefaultFormat)
	}
	if c.Paths.Data == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if !strings.HasPrefix(c.Storage.JSONExtension, ".") || !strings.HasPrefix(c.Storage.BinaryExtension, ".") {
		return fmt.Errorf("file extensions must start with a dot")
	}
	if c.Storage.JSONExtension == c.Storage.BinaryExtension {
		return fmt.Errorf("json and binary extensions cannot be the same: %s", c.Storage.JSONExtension)
	}
	if strings.ContainsAny(c.Storage.KeyPrefix, `/\`) {
		return fmt.Errorf("key prefix cannot contain path separators: %q", c.Storage.KeyPrefix)
	}

	if c.Encryption.Enabled {
		if c.Encryption.Key == "" {
			return fmt.Errorf("encryption key cannot be empty when encryption is enabled")
		}
		switch strings.ToLower(c.Encryption.Algorithm) {
		case "xor", "aes":
		default:
			return fmt.Errorf("invalid encryption algorithm: %s", c.Encryption.Algorithm)
		}
	}

	if c.Compression.Enabled {
		switch strings.ToLower(c.Compression.Algorithm) {
		case "gzip", "deflate", "zstd", "s2", "lz4":
		default:
			return fmt.Errorf("invalid compression algorithm: %s", c.Compression.Algorithm)
		}
		if c.Compression.Level < 0 || c.Compression.Level > 9 {
			return fmt.Errorf("compression level must be between 0 and 9: %d", c.Compression.Level)
		}
	}

	switch strings.ToLower(c.KeyValue.Backend) {
	case "badger", "bolt", "memory":
	case "redis":
		if c.KeyValue.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty when using the redis backend")
		}
	default:
		return fmt.Errorf("invalid key-value backend: %s", c.KeyValue.Backend)
	}

	switch strings.ToLower(c.Database.Dialect) {
	case "sqlite", "sqlite-replace":
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN cannot be empty for dialect %s", c.Database.Dialect)
		}
	default:
		return fmt.Errorf("invalid database dialect: %s", c.Database.Dialect)
	}
	if c.Database.Table == "" {
		return fmt.Errorf("database table cannot be empty")
	}

	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive when the cache is enabled")
	}

	if c.Remote.Enabled && c.Remote.Address == "" {
		return fmt.Errorf("remote address cannot be empty when the remote provider is enabled")
	}

	if c.Remote.ServeKind != "" && !slices.Contains(validKinds, strings.ToLower(c.Remote.ServeKind)) {
		return fmt.Errorf("invalid remote serve kind: %s", c.Remote.ServeKind)
	}
	if strings.EqualFold(c.Remote.ServeKind, "cloud") {
		return fmt.Errorf("remote serve kind cannot be cloud")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case "log", "none":
		default:
			return fmt.Errorf("invalid tracing exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
			return fmt.Errorf("tracing sampling ratio must be between 0 and 1: %v", c.Tracing.SamplingRatio)
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}

	return nil
}

// KeyValuePath returns the directory of the key-value backend.
func (c *Config) KeyValuePath() string {
	if c.KeyValue.Path != "" {
		return c.KeyValue.Path
	}
	return filepath.Join(c.Paths.Data, "kv")
}

// JSONPath returns the root directory of the JSON-file provider.
func (c *Config) JSONPath() string {
	return filepath.Join(c.Paths.Data, "json")
}

// BinaryPath returns the root directory of the binary-file provider.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.Paths.Data, "binary")
}

// DatabaseDSN returns the configured DSN, or a SQLite file under the data path.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.Paths.Data, c.Database.Name+".db")
}

// Clone returns a deep copy; every field is a value type.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as YAML with secrets redacted.
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.Encryption.Key != "" {
		redacted.Encryption.Key = "***"
	}
	if redacted.KeyValue.RedisPassword != "" {
		redacted.KeyValue.RedisPassword = "***"
	}
	if redacted.Database.DSN != "" {
		redacted.Database.DSN = "***"
	}
	data, _ := yaml.Marshal(redacted)
	return string(data)
}
