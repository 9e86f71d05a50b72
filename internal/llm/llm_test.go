package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTextPromptJoinsSegmentsInOrder(t *testing.T) {
	p := BuildTextPrompt("what is x?", []string{"first", "second"})
	assert.Contains(t, p, "first\nsecond")
	assert.Contains(t, p, "Question: what is x?")
}

func TestClaudeGenerateText(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"  the answer "}]}`))
	}))
	defer srv.Close()

	stats := NewStats(time.Hour)
	c := NewClaudeClient("secret", "m", stats)
	c.endpoint = srv.URL

	out, err := c.GenerateText(context.Background(), "q", []string{"ctx"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content[0].Text, "ctx")
	assert.Equal(t, 1, stats.Snapshot().Count)
}

func TestClaudeRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClaudeClient("k", "m", nil)
	c.endpoint = srv.URL

	_, err := c.GenerateText(context.Background(), "q", []string{"ctx"})
	var retryErr *RetryableError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, http.StatusTooManyRequests, retryErr.StatusCode)
}

func TestClaudeImagesSendsImageBlocks(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "page_1_img_0.jpg")
	require.NoError(t, os.WriteFile(img, []byte{0xff, 0xd8, 0xff}, 0o644))

	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"a chart"}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("k", "m", nil)
	c.endpoint = srv.URL

	out, err := c.GenerateFromImages(context.Background(), "", []string{img, filepath.Join(dir, "missing.png")})
	require.NoError(t, err)
	assert.Equal(t, "a chart", out)

	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "image/jpeg", blocks[0].Source.MediaType)
	assert.Equal(t, "text", blocks[1].Type)
}

func TestGenerateSkipsEmptyInput(t *testing.T) {
	c := NewClaudeClient("k", "m", nil)
	c.endpoint = "http://127.0.0.1:1"

	out, err := c.GenerateText(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = c.GenerateFromImages(context.Background(), "q", []string{"/nope.png"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"local answer"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))

	c := NewOllamaClient(srv.URL+"/", "llava", nil)
	out, err := c.GenerateFromImages(context.Background(), "q", []string{img})
	require.NoError(t, err)
	assert.Equal(t, "local answer", out)
	assert.Equal(t, "llava", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Images, 1)
}
