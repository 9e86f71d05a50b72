package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/events"
	"github.com/dgallion1/ragdoc/internal/logger"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		StorageRoot:         t.TempDir(),
		CollectionName:      "rag_docs",
		MaxDownloadBytes:    1 << 20,
		ChunkMaxChars:       1200,
		EmbeddingProvider:   "ollama",
		EmbeddingURL:        "http://127.0.0.1:1",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 4,
		EmbedWorkers:        2,
		VectorStore:         "memory",
		GeneratorProvider:   "ollama",
		OllamaURL:           "http://127.0.0.1:1",
		OllamaModel:         "llava",
		DefaultTopK:         5,
	}
}

func TestBuildDoesNotContactOracles(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Ingester)
	assert.NotNil(t, a.Answerer)
	assert.IsType(t, &events.LogPublisher{}, a.Publisher)
	assert.Equal(t, "nomic-embed-text", a.EmbedModel())
	assert.Equal(t, "llava", a.GeneratorModel())

	n, err := a.Store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildRejectsUnknownStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore = "cassandra"
	_, err := Build(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestGeneratorModelFollowsProvider(t *testing.T) {
	a := &App{Config: config.Config{GeneratorProvider: "claude", AnthropicModel: "claude-x", OllamaModel: "llava"}}
	assert.Equal(t, "claude-x", a.GeneratorModel())
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	a.Close()
	a.Close()
}

func TestHandlerServesWithoutJobQueue(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	h := a.Handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest?pdf_url=https://x.test/a.pdf", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
