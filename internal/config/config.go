package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Storage layout
	StorageRoot      string
	CollectionName   string
	MaxDownloadBytes int64

	// Segmentation
	ChunkMaxChars int
	ChunkOverlap  int

	// Extraction
	IngestImages         bool
	PDFFallbackPdftotext bool

	// Embedding oracle
	EmbeddingProvider   string // jina | ollama
	EmbeddingURL        string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingDimensions int
	EmbedWorkers        int

	// Embedding cache
	RedisURL      string
	EmbedCacheTTL time.Duration

	// Vector store
	VectorStore   string // sqlite | memory | chroma | qdrant | milvus
	SQLitePath    string
	ChromaURL     string
	QdrantHost    string
	QdrantPort    int
	QdrantAPIKey  string
	MilvusAddress string

	// Generation oracle
	GeneratorProvider string // ollama | claude
	OllamaURL         string
	OllamaModel       string
	AnthropicAPIKey   string
	AnthropicModel    string

	// Retrieval
	DefaultTopK int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Timeouts and job state
	RequestTimeout time.Duration
	IngestTimeout  time.Duration
	JobTTL         time.Duration

	// Logging
	LogDebug  bool
	LogPretty bool
}

// setDefaults registers every option and its default. Keys double as the
// environment variable names (upper-cased).
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")

	v.SetDefault("storage_root", "data")
	v.SetDefault("collection_name", "rag_docs")
	v.SetDefault("max_download_bytes", int64(104857600)) // 100MB

	v.SetDefault("chunk_max_chars", 1200)
	v.SetDefault("chunk_overlap", 0)

	v.SetDefault("ingest_images", true)
	v.SetDefault("pdf_fallback_pdftotext", true)

	v.SetDefault("embedding_provider", "jina")
	v.SetDefault("embedding_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding_model", "jina-clip-v1")
	v.SetDefault("embedding_api_key", "")
	v.SetDefault("embedding_dimensions", 768)
	v.SetDefault("embed_workers", 4)

	v.SetDefault("redis_url", "")
	v.SetDefault("embed_cache_ttl", 24*time.Hour)

	v.SetDefault("vector_store", "sqlite")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("chroma_url", "http://localhost:8000")
	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_api_key", "")
	v.SetDefault("milvus_address", "localhost:19530")

	v.SetDefault("generator_provider", "ollama")
	v.SetDefault("ollama_url", "http://localhost:11434")
	v.SetDefault("ollama_model", "llava")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_model", "claude-sonnet-4-5-20250929")

	v.SetDefault("default_top_k", 5)

	v.SetDefault("worker_count", 2)
	v.SetDefault("max_queue_size", 100)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "ragdoc.ingest")

	v.SetDefault("request_timeout", 5*time.Minute)
	v.SetDefault("ingest_timeout", 30*time.Minute)
	v.SetDefault("job_ttl", 1*time.Hour)

	v.SetDefault("log_debug", false)
	v.SetDefault("log_pretty", false)
}

// Load reads configuration with this precedence: environment variables,
// then the optional YAML file named by CONFIG_FILE, then defaults. A
// .env file in the working directory is loaded into the environment
// first if present.
func Load() (Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	cfg := Config{
		Port: v.GetString("port"),

		StorageRoot:      v.GetString("storage_root"),
		CollectionName:   v.GetString("collection_name"),
		MaxDownloadBytes: v.GetInt64("max_download_bytes"),

		ChunkMaxChars: v.GetInt("chunk_max_chars"),
		ChunkOverlap:  v.GetInt("chunk_overlap"),

		IngestImages:         v.GetBool("ingest_images"),
		PDFFallbackPdftotext: v.GetBool("pdf_fallback_pdftotext"),

		EmbeddingProvider:   strings.ToLower(v.GetString("embedding_provider")),
		EmbeddingURL:        v.GetString("embedding_url"),
		EmbeddingModel:      v.GetString("embedding_model"),
		EmbeddingAPIKey:     v.GetString("embedding_api_key"),
		EmbeddingDimensions: v.GetInt("embedding_dimensions"),
		EmbedWorkers:        v.GetInt("embed_workers"),

		RedisURL:      v.GetString("redis_url"),
		EmbedCacheTTL: v.GetDuration("embed_cache_ttl"),

		VectorStore:   strings.ToLower(v.GetString("vector_store")),
		SQLitePath:    v.GetString("sqlite_path"),
		ChromaURL:     v.GetString("chroma_url"),
		QdrantHost:    v.GetString("qdrant_host"),
		QdrantPort:    v.GetInt("qdrant_port"),
		QdrantAPIKey:  v.GetString("qdrant_api_key"),
		MilvusAddress: v.GetString("milvus_address"),

		GeneratorProvider: strings.ToLower(v.GetString("generator_provider")),
		OllamaURL:         v.GetString("ollama_url"),
		OllamaModel:       v.GetString("ollama_model"),
		AnthropicAPIKey:   v.GetString("anthropic_api_key"),
		AnthropicModel:    v.GetString("anthropic_model"),

		DefaultTopK: v.GetInt("default_top_k"),

		WorkerCount:  v.GetInt("worker_count"),
		MaxQueueSize: v.GetInt("max_queue_size"),

		KafkaBrokers: splitList(v.GetString("kafka_brokers")),
		KafkaTopic:   v.GetString("kafka_topic"),

		RequestTimeout: v.GetDuration("request_timeout"),
		IngestTimeout:  v.GetDuration("ingest_timeout"),
		JobTTL:         v.GetDuration("job_ttl"),

		LogDebug:  v.GetBool("log_debug"),
		LogPretty: v.GetBool("log_pretty"),
	}

	if cfg.StorageRoot == "" {
		cfg.StorageRoot = "data"
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "rag_docs"
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = 104857600
	}
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = 1200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.StorageRoot, "vectors.db")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 30 * time.Minute
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.ChunkOverlap >= c.ChunkMaxChars {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_MAX_CHARS (%d)", c.ChunkOverlap, c.ChunkMaxChars)
	}

	switch c.EmbeddingProvider {
	case "jina", "ollama":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == "jina" && c.EmbeddingAPIKey == "" && strings.Contains(c.EmbeddingURL, "api.jina.ai") {
		return fmt.Errorf("EMBEDDING_API_KEY is required for %s", c.EmbeddingURL)
	}
	if c.EmbeddingProvider == "ollama" && c.IngestImages {
		return fmt.Errorf("EMBEDDING_PROVIDER=ollama embeds text only; set INGEST_IMAGES=false")
	}

	switch c.VectorStore {
	case "memory", "chroma":
	case "sqlite", "qdrant", "milvus":
		if c.EmbeddingDimensions <= 0 {
			return fmt.Errorf("EMBEDDING_DIMENSIONS is required for VECTOR_STORE=%s", c.VectorStore)
		}
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore)
	}

	switch c.GeneratorProvider {
	case "ollama":
	case "claude":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for GENERATOR_PROVIDER=claude")
		}
	default:
		return fmt.Errorf("unknown GENERATOR_PROVIDER %q", c.GeneratorProvider)
	}

	return nil
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
