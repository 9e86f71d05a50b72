package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/ragdoc/internal/llm"
)

// JinaClient calls a Jina-compatible /embeddings endpoint that accepts
// both text and base64 image inputs (jina-clip models).
type JinaClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	stats      *llm.Stats
}

func NewJinaClient(baseURL, apiKey, model string, stats *llm.Stats) *JinaClient {
	return &JinaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		stats: stats,
	}
}

type jinaInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type jinaRequest struct {
	Model         string      `json:"model"`
	Input         []jinaInput `json:"input"`
	Normalized    bool        `json:"normalized"`
	EmbeddingType string      `json:"embedding_type"`
}

type jinaResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

func (c *JinaClient) Model() string { return c.model }

func (c *JinaClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, jinaInput{Text: text})
}

func (c *JinaClient) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return c.embed(ctx, jinaInput{Image: base64.StdEncoding.EncodeToString(image)})
}

func (c *JinaClient) embed(ctx context.Context, in jinaInput) (vec []float32, err error) {
	start := time.Now()
	defer func() { c.stats.Observe(start, err) }()

	body, err := json.Marshal(jinaRequest{
		Model:         c.model,
		Input:         []jinaInput{in},
		Normalized:    true,
		EmbeddingType: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &llm.RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api status %d: %s", resp.StatusCode, string(respBody))
	}

	var out jinaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding api returned no vectors")
	}
	return out.Data[0].Embedding, nil
}

// Close releases resources.
func (c *JinaClient) Close() {
	c.httpClient.CloseIdleConnections()
}
