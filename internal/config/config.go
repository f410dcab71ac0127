package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from the environment, optionally seeded from a .env file.
type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DBURL       string `mapstructure:"DB_URL"`

	VectorDriver     string `mapstructure:"VECTOR_DRIVER"`
	QdrantHost       string `mapstructure:"QDRANT_SERVICE_HOST"`
	QdrantPort       string `mapstructure:"QDRANT_SERVICE_PORT"`
	QdrantCollection string `mapstructure:"QDRANT_COLLECTION"`

	EmbeddingProvider   string `mapstructure:"EMBEDDING_PROVIDER"`
	OpenAIAPIKey        string `mapstructure:"OPENAI_API_KEY"`
	EmbeddingBaseURL    string `mapstructure:"EMBEDDING_BASE_URL"`
	EmbeddingModel      string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `mapstructure:"EMBEDDING_DIMENSIONS"`
	EmbeddingBatchSize  int    `mapstructure:"EMBEDDING_BATCH_SIZE"`

	BlobDriver     string `mapstructure:"BLOB_DRIVER"`
	BlobDir        string `mapstructure:"BLOB_DIR"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	IngestWorkers     int           `mapstructure:"INGEST_WORKERS"`
	IngestQueueSize   int           `mapstructure:"INGEST_QUEUE_SIZE"`
	IngestMaxAttempts int           `mapstructure:"INGEST_MAX_ATTEMPTS"`
	IngestCooldown    time.Duration `mapstructure:"INGEST_COOLDOWN"`
	IngestQuotaWindow time.Duration `mapstructure:"INGEST_QUOTA_WINDOW"`
	IngestQuotaLimit  int           `mapstructure:"INGEST_QUOTA_LIMIT"`

	ChunkSize          int     `mapstructure:"CHUNK_SIZE"`
	ChunkOverlap       int     `mapstructure:"CHUNK_OVERLAP"`
	SearchDefaultTopK  int     `mapstructure:"SEARCH_DEFAULT_TOP_K"`
	RelevanceThreshold float64 `mapstructure:"RELEVANCE_THRESHOLD"`

	MaxFileSize  int64 `mapstructure:"MAX_FILE_SIZE"`
	MaxScopeSize int64 `mapstructure:"MAX_SCOPE_SIZE"`

	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBlobGrace    time.Duration `mapstructure:"SWEEP_BLOB_GRACE"`
	StuckPendingAfter time.Duration `mapstructure:"STUCK_PENDING_AFTER"`
}

var defaults = map[string]any{
	"HTTP_ADDR":            ":8080",
	"LOG_LEVEL":            "info",
	"JWT_SECRET":           "",
	"STORE_DRIVER":         "postgres",
	"DB_URL":               "",
	"VECTOR_DRIVER":        "qdrant",
	"QDRANT_SERVICE_HOST":  "localhost",
	"QDRANT_SERVICE_PORT":  "6334",
	"QDRANT_COLLECTION":    "document_chunks",
	"EMBEDDING_PROVIDER":   "openai",
	"OPENAI_API_KEY":       "",
	"EMBEDDING_BASE_URL":   "",
	"EMBEDDING_MODEL":      "text-embedding-3-small",
	"EMBEDDING_DIMENSIONS": 1536,
	"EMBEDDING_BATCH_SIZE": 64,
	"BLOB_DRIVER":          "fs",
	"BLOB_DIR":             "./data/blobs",
	"MINIO_ENDPOINT":       "",
	"MINIO_ACCESS_KEY":     "",
	"MINIO_SECRET_KEY":     "",
	"MINIO_BUCKET":         "documents",
	"MINIO_USE_SSL":        true,
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"INGEST_WORKERS":       4,
	"INGEST_QUEUE_SIZE":    256,
	"INGEST_MAX_ATTEMPTS":  3,
	"INGEST_COOLDOWN":      time.Minute,
	"INGEST_QUOTA_WINDOW":  4 * time.Hour,
	"INGEST_QUOTA_LIMIT":   1,
	"CHUNK_SIZE":           200,
	"CHUNK_OVERLAP":        40,
	"SEARCH_DEFAULT_TOP_K": 5,
	"RELEVANCE_THRESHOLD":  0.3,
	"MAX_FILE_SIZE":        int64(50 << 20),
	"MAX_SCOPE_SIZE":       int64(100 << 20),
	"SWEEP_INTERVAL":       time.Hour,
	"SWEEP_BLOB_GRACE":     24 * time.Hour,
	"STUCK_PENDING_AFTER":  30 * time.Minute,
}

// Load reads envFile (if present) into the process environment and builds a Config from it.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logrus.WithField("file", envFile).Warn("no .env file found, using system environment variables")
		} else {
			logrus.WithField("file", envFile).Info(".env file loaded successfully")
		}
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	cfg.VectorDriver = strings.ToLower(cfg.VectorDriver)
	cfg.BlobDriver = strings.ToLower(cfg.BlobDriver)
	cfg.EmbeddingProvider = strings.ToLower(cfg.EmbeddingProvider)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.VectorDriver {
	case "qdrant":
		if c.QdrantHost == "" || c.QdrantPort == "" {
			return fmt.Errorf("QDRANT_SERVICE_HOST or QDRANT_SERVICE_PORT is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown VECTOR_DRIVER %q", c.VectorDriver)
	}

	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" && c.EmbeddingBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY or EMBEDDING_BASE_URL is required for the openai provider")
		}
	case "hashing":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be > 0")
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be > 0")
	}

	switch c.BlobDriver {
	case "fs":
		if c.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR is required when BLOB_DRIVER=fs")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when BLOB_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.IngestWorkers <= 0 || c.IngestMaxAttempts <= 0 || c.IngestQueueSize <= 0 {
		return fmt.Errorf("INGEST_WORKERS, INGEST_QUEUE_SIZE and INGEST_MAX_ATTEMPTS must be > 0")
	}
	if c.SearchDefaultTopK <= 0 {
		return fmt.Errorf("SEARCH_DEFAULT_TOP_K must be > 0")
	}
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("RELEVANCE_THRESHOLD must be within [0,1]")
	}
	if c.MaxFileSize <= 0 || c.MaxScopeSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE and MAX_SCOPE_SIZE must be > 0")
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
