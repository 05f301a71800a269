// Package config loads and validates engine configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Store, Index, Blobs, Lexicon, Search, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Index    IndexConfig    `yaml:"index"`
	Blobs    BlobConfig     `yaml:"blobs"`
	Lexicon  LexiconConfig  `yaml:"lexicon"`
	Args     ArgsConfig     `yaml:"args"`
	Search   SearchConfig   `yaml:"search"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the searcher service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig locates the persistent ordered key-value store shared by the
// lexicon, blob store, barrels, and argument index.
type StoreConfig struct {
	Path        string        `yaml:"path"`
	NoSync      bool          `yaml:"noSync"`
	ReadOnly    bool          `yaml:"readOnly"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
}

// FieldConfig declares one posting column.
type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// IndexConfig controls the inverted index schema, flush thresholds, and
// query-time loading.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	Fields         []FieldConfig `yaml:"fields"`
	FlushThreshold int           `yaml:"flushThreshold"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	LoadToMemory   bool          `yaml:"loadToMemory"`
}

// BlobConfig controls the record store buffer and codec.
type BlobConfig struct {
	BufferSize  int    `yaml:"bufferSize"`
	Compression string `yaml:"compression"`
}

// LexiconConfig controls how often the lexicon is dumped during ingestion.
type LexiconConfig struct {
	DumpEvery int `yaml:"dumpEvery"`
}

// ArgsConfig controls the relation-triple argument index.
type ArgsConfig struct {
	Enabled        bool `yaml:"enabled"`
	FlushThreshold int  `yaml:"flushThreshold"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	MaxResults         int `yaml:"maxResults"`
	MaxConcurrentLoads int `yaml:"maxConcurrentLoads"`
	PostingCacheSize   int `yaml:"postingCacheSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	RecordsTopic  string   `yaml:"recordsTopic"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ingestion
// ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config suitable for local bulk loads.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Path:        "data/store.db",
			OpenTimeout: 5 * time.Second,
		},
		Index: IndexConfig{
			DataDir: "data/index",
			Fields: []FieldConfig{
				{Name: "doc", Type: "i8"},
				{Name: "freq", Type: "u2"},
			},
			FlushThreshold: 32000 * 1024,
			FlushInterval:  5 * time.Minute,
		},
		Blobs: BlobConfig{
			BufferSize:  10000,
			Compression: "lz4",
		},
		Lexicon: LexiconConfig{
			DumpEvery: 100000,
		},
		Args: ArgsConfig{
			FlushThreshold: 1000000,
		},
		Search: SearchConfig{
			MaxResults:         10000,
			MaxConcurrentLoads: 8,
			PostingCacheSize:   1024,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "term-index-group",
			RecordsTopic:  "records-ingest",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "termindex",
			User:            "termindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks the values that would otherwise fail deep inside a
// component at open time.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir is required")
	}
	if len(c.Index.Fields) == 0 {
		return fmt.Errorf("index.fields must declare at least the primary field")
	}
	seen := make(map[string]struct{}, len(c.Index.Fields))
	for _, f := range c.Index.Fields {
		if f.Name == "" {
			return fmt.Errorf("index.fields: empty field name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("index.fields: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	if c.Index.FlushThreshold <= 0 {
		return fmt.Errorf("index.flushThreshold must be positive")
	}
	if c.Blobs.BufferSize <= 0 {
		return fmt.Errorf("blobs.bufferSize must be positive")
	}
	return nil
}

// applyEnvOverrides reads TIE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TIE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TIE_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("TIE_INDEX_LOAD_TO_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.LoadToMemory = b
		}
	}
	if v := os.Getenv("TIE_BLOBS_COMPRESSION"); v != "" {
		cfg.Blobs.Compression = v
	}
	if v := os.Getenv("TIE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TIE_KAFKA_RECORDS_TOPIC"); v != "" {
		cfg.Kafka.RecordsTopic = v
	}
	if v := os.Getenv("TIE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TIE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TIE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("TIE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TIE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TIE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TIE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TIE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TIE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
