// Package config loads pipeline settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ingestion pipeline configuration.
type Config struct {
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Redis   RedisConfig   `yaml:"redis"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// QdrantConfig holds vector store settings.
type QdrantConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	APIKey          string `yaml:"api_key"`
	UseTLS          bool   `yaml:"use_tls"`
	TextCollection  string `yaml:"text_collection"`
	ImageCollection string `yaml:"image_collection"`
}

// OpenAIConfig holds embedding and vision model settings.
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
	VisionModel        string `yaml:"vision_model"`
}

// IngestConfig holds document processing settings.
type IngestConfig struct {
	PDFDir       string `yaml:"pdf_dir"`
	LogDir       string `yaml:"log_dir"`
	Workers      int    `yaml:"workers"`
	ChunkTokens  int    `yaml:"chunk_tokens"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// RedisConfig holds lock server addresses. No addresses means in-process locks.
type RedisConfig struct {
	Addrs []string `yaml:"addrs"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode bool   `yaml:"mode"` // HTTP when true, stdio otherwise
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Defaults.
const (
	DefaultQdrantHost         = "localhost"
	DefaultQdrantPort         = 6334
	DefaultTextCollection     = "10K_vector_db"
	DefaultImageCollection    = "multimodel_vector_db"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDimension = 1536
	DefaultVisionModel        = "gpt-4o"
	DefaultPDFDir             = "10k_PDFs"
	DefaultLogDir             = "responses"
	DefaultWorkers            = 2
	DefaultChunkTokens        = 1000
	DefaultChunkOverlap       = 100
	DefaultPort               = "8080"
	DefaultLogLevel           = "info"
)

// Load reads path when it is non-empty, applies environment overrides and
// fills defaults. It does not validate.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Qdrant.Host = getEnv("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getEnvInt("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.APIKey = getEnv("QDRANT_API_KEY", c.Qdrant.APIKey)
	c.Qdrant.UseTLS = getEnvBool("QDRANT_USE_TLS", c.Qdrant.UseTLS)
	c.Qdrant.TextCollection = getEnv("TEXT_COLLECTION", c.Qdrant.TextCollection)
	c.Qdrant.ImageCollection = getEnv("IMAGE_COLLECTION", c.Qdrant.ImageCollection)

	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)
	c.OpenAI.EmbeddingDimension = getEnvInt("EMBEDDING_DIMENSION", c.OpenAI.EmbeddingDimension)
	c.OpenAI.VisionModel = getEnv("VISION_MODEL", c.OpenAI.VisionModel)

	c.Ingest.PDFDir = getEnv("PDF_DIR", c.Ingest.PDFDir)
	c.Ingest.LogDir = getEnv("LOG_DIR", c.Ingest.LogDir)
	c.Ingest.Workers = getEnvInt("WORKERS", c.Ingest.Workers)
	c.Ingest.ChunkTokens = getEnvInt("CHUNK_TOKENS", c.Ingest.ChunkTokens)
	c.Ingest.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.Ingest.ChunkOverlap)

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addrs = splitList(v)
	}

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Mode = getEnvBool("SERVER_MODE", c.Server.Mode)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = DefaultQdrantHost
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = DefaultQdrantPort
	}
	if c.Qdrant.TextCollection == "" {
		c.Qdrant.TextCollection = DefaultTextCollection
	}
	if c.Qdrant.ImageCollection == "" {
		c.Qdrant.ImageCollection = DefaultImageCollection
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.OpenAI.EmbeddingDimension == 0 {
		c.OpenAI.EmbeddingDimension = DefaultEmbeddingDimension
	}
	if c.OpenAI.VisionModel == "" {
		c.OpenAI.VisionModel = DefaultVisionModel
	}
	if c.Ingest.PDFDir == "" {
		c.Ingest.PDFDir = DefaultPDFDir
	}
	if c.Ingest.LogDir == "" {
		c.Ingest.LogDir = DefaultLogDir
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = DefaultWorkers
	}
	if c.Ingest.ChunkTokens == 0 {
		c.Ingest.ChunkTokens = DefaultChunkTokens
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = DefaultChunkOverlap
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Validate checks the configuration. With forIngest set it also requires
// an OpenAI key, which embedding and captioning need.
func (c Config) Validate(forIngest bool) error {
	var errs []error
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("qdrant port %d out of range", c.Qdrant.Port))
	}
	if c.Qdrant.TextCollection == c.Qdrant.ImageCollection {
		errs = append(errs, fmt.Errorf("text and image collections must differ, both are %q", c.Qdrant.TextCollection))
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.OpenAI.EmbeddingDimension))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.Ingest.ChunkTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunk tokens must be positive, got %d", c.Ingest.ChunkTokens))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkTokens {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkTokens))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if forIngest && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for ingestion"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
