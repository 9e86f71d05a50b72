package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient generates answers with a local Ollama model. A vision
// model (llava, llama3.2-vision) is needed for GenerateFromImages.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	stats      *Stats
}

func NewOllamaClient(baseURL, model string, stats *Stats) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		stats: stats,
	}
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *OllamaClient) GenerateText(ctx context.Context, question string, segments []string) (string, error) {
	if len(segments) == 0 {
		return "", nil
	}
	return c.generate(ctx, BuildTextPrompt(question, segments), nil)
}

func (c *OllamaClient) GenerateFromImages(ctx context.Context, question string, imagePaths []string) (string, error) {
	images := loadImages(imagePaths)
	if len(images) == 0 {
		return "", nil
	}
	data := make([]string, len(images))
	for i, img := range images {
		data[i] = img.data
	}
	return c.generate(ctx, BuildImagePrompt(question), data)
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, images []string) (text string, err error) {
	start := time.Now()
	defer func() { c.stats.Observe(start, err) }()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: images,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}

// Close releases resources.
func (c *OllamaClient) Close() {
	c.httpClient.CloseIdleConnections()
}
