package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with every recognised
// variable blanked, so the developer's shell and .env cannot leak in.
// Empty values are ignored by viper and fall back to defaults.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())

	v := viper.New()
	setDefaults(v)
	for _, key := range append(v.AllKeys(), "config_file") {
		t.Setenv(strings.ToUpper(key), "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.StorageRoot)
	assert.Equal(t, "rag_docs", cfg.CollectionName)
	assert.Equal(t, 1200, cfg.ChunkMaxChars)
	assert.Equal(t, 0, cfg.ChunkOverlap)
	assert.Equal(t, "sqlite", cfg.VectorStore)
	assert.Equal(t, filepath.Join("data", "vectors.db"), cfg.SQLitePath)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_ROOT", "/srv/rag")
	t.Setenv("COLLECTION_NAME", "papers")
	t.Setenv("CHUNK_MAX_CHARS", "800")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("VECTOR_STORE", "Qdrant")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("INGEST_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/rag", cfg.StorageRoot)
	assert.Equal(t, "papers", cfg.CollectionName)
	assert.Equal(t, 800, cfg.ChunkMaxChars)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, "qdrant", cfg.VectorStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.IngestTimeout)
	assert.Equal(t, filepath.Join("/srv/rag", "vectors.db"), cfg.SQLitePath)
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ragdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection_name: from_file\nchunk_max_chars: 500\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_MAX_CHARS", "700")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.CollectionName)
	assert.Equal(t, 700, cfg.ChunkMaxChars, "env wins over file")
}

func TestValidate(t *testing.T) {
	isolate(t)
	base := func() Config {
		cfg, err := Load()
		require.NoError(t, err)
		cfg.EmbeddingAPIKey = "k"
		return cfg
	}

	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"overlap >= max":     func(c *Config) { c.ChunkOverlap = c.ChunkMaxChars },
		"unknown store":      func(c *Config) { c.VectorStore = "faiss" },
		"missing jina key":   func(c *Config) { c.EmbeddingAPIKey = "" },
		"ollama with images": func(c *Config) { c.EmbeddingProvider = "ollama" },
		"sqlite without dim": func(c *Config) { c.EmbeddingDimensions = 0 },
		"claude without key": func(c *Config) { c.GeneratorProvider = "claude" },
		"unknown generator":  func(c *Config) { c.GeneratorProvider = "gpt" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	memory := base()
	memory.VectorStore = "memory"
	memory.EmbeddingDimensions = 0
	assert.NoError(t, memory.Validate())
}

func TestIsolateBlanksShellEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-shell")
	t.Setenv("PORT", "9999")
	t.Setenv("VECTOR_STORE", "milvus")
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "sqlite", cfg.VectorStore)
	assert.Empty(t, cfg.AnthropicAPIKey)

	cfg.EmbeddingAPIKey = "k"
	cfg.GeneratorProvider = "claude"
	assert.Error(t, cfg.Validate())
}
