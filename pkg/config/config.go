// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (storage, search engine, bulk encoding, embeddings, Postgres,
// Kafka, Redis, logging, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Bulk      BulkConfig      `yaml:"bulk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig holds S3-compatible object storage settings. Endpoint may
// point at MinIO; leave it empty to use AWS.
type StorageConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	Region       string `yaml:"region"`
	Secure       bool   `yaml:"secure"`
	UsePathStyle bool   `yaml:"usePathStyle"`
	RawBucket    string `yaml:"rawBucket"`
	ParsedBucket string `yaml:"parsedBucket"`
	IndexBucket  string `yaml:"indexBucket"`
}

// SearchConfig holds the search engine endpoint, index names and bulk
// transport tuning.
type SearchConfig struct {
	URL            string        `yaml:"url"`
	BooksIndex     string        `yaml:"booksIndex"`
	ContentIndex   string        `yaml:"contentIndex"`
	MappingsDir    string        `yaml:"mappingsDir"`
	BulkMaxBytes   int           `yaml:"bulkMaxBytes"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
}

// BulkConfig controls NDJSON encoding.
type BulkConfig struct {
	// ChunkIDPolicy is "none" (index assigns ids) or "deterministic"
	// (chunk_id is sent as _id).
	ChunkIDPolicy  string `yaml:"chunkIdPolicy"`
	EmbedBatchSize int    `yaml:"embedBatchSize"`
}

// EmbeddingConfig selects the embedding model and its cache.
type EmbeddingConfig struct {
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	SourceField string        `yaml:"sourceField"`
	TargetField string        `yaml:"targetField"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
	CacheEnable bool          `yaml:"cacheEnabled"`

	// RequestsPerSecond caps calls to the embedding API; zero disables
	// the limit.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	BookIngested string `yaml:"bookIngested"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LedgerConfig toggles the Postgres ingestion ledger.
type LedgerConfig struct {
	Enabled bool `yaml:"enabled"`
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
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports the first bad setting as an ErrInvalidInput.
func (c *Config) validate() error {
	switch c.Bulk.ChunkIDPolicy {
	case "none", "deterministic":
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "bulk.chunkIdPolicy must be none or deterministic, got %q", c.Bulk.ChunkIDPolicy)
	}
	if c.Search.BulkMaxBytes <= 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "search.bulkMaxBytes must be positive")
	}
	if c.Bulk.EmbedBatchSize <= 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "bulk.embedBatchSize must be positive")
	}
	if c.Embedding.SourceField == "" || c.Embedding.TargetField == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "embedding.sourceField and embedding.targetField must be set")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development
// against MinIO and a single-node search engine.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Endpoint:     "localhost:9000",
			AccessKey:    "ingest",
			SecretKey:    "ingestpass",
			Region:       "us-east-1",
			UsePathStyle: true,
			RawBucket:    "raw",
			ParsedBucket: "parsed",
			IndexBucket:  "index",
		},
		Search: SearchConfig{
			URL:            "http://localhost:9200",
			BooksIndex:     "books",
			ContentIndex:   "book_content",
			MappingsDir:    "mappings",
			BulkMaxBytes:   5 * 1024 * 1024,
			RequestTimeout: 60 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     300 * time.Millisecond,
		},
		Bulk: BulkConfig{
			ChunkIDPolicy:  "none",
			EmbedBatchSize: 500,
		},
		Embedding: EmbeddingConfig{
			Model:       "text-embedding-004",
			SourceField: "text",
			TargetField: "text_vector",
			CacheTTL:    24 * time.Hour,

			RequestsPerSecond: 20,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bookingest",
			User:            "bookingest",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				BookIngested: "book.ingested",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("BI_STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	setString("BI_STORAGE_ACCESS_KEY", &cfg.Storage.AccessKey)
	setString("BI_STORAGE_SECRET_KEY", &cfg.Storage.SecretKey)
	setString("BI_STORAGE_REGION", &cfg.Storage.Region)
	setBool("BI_STORAGE_SECURE", &cfg.Storage.Secure)
	setString("BI_RAW_BUCKET", &cfg.Storage.RawBucket)
	setString("BI_PARSED_BUCKET", &cfg.Storage.ParsedBucket)
	setString("BI_INDEX_BUCKET", &cfg.Storage.IndexBucket)

	setString("BI_SEARCH_URL", &cfg.Search.URL)
	setInt("BI_SEARCH_BULK_MAX_BYTES", &cfg.Search.BulkMaxBytes)
	setString("BI_BULK_CHUNK_ID_POLICY", &cfg.Bulk.ChunkIDPolicy)

	setString("BI_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	setString("BI_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("BI_EMBEDDING_SOURCE_FIELD", &cfg.Embedding.SourceField)
	setString("BI_EMBEDDING_TARGET_FIELD", &cfg.Embedding.TargetField)

	setString("BI_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BI_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BI_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BI_POSTGRES_USER", &cfg.Postgres.User)
	setString("BI_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setBool("BI_LEDGER_ENABLED", &cfg.Ledger.Enabled)

	if v := os.Getenv("BI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("BI_KAFKA_ENABLED", &cfg.Kafka.Enabled)

	setString("BI_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BI_REDIS_PASSWORD", &cfg.Redis.Password)
	setBool("BI_EMBEDDING_CACHE_ENABLED", &cfg.Embedding.CacheEnable)

	setString("BI_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BI_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("BI_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("BI_METRICS_PORT", &cfg.Metrics.Port)
}
