// Package llm talks to the generative models that answer questions over
// retrieved fragments.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Generator produces answers grounded on retrieved content.
type Generator interface {
	// GenerateText answers from text segments, joined in rank order.
	GenerateText(ctx context.Context, question string, segments []string) (string, error)
	// GenerateFromImages describes or answers from image files.
	GenerateFromImages(ctx context.Context, question string, imagePaths []string) (string, error)
	Close()
}

// RetryableError indicates a transient upstream failure (rate limit or
// server error). Callers decide whether to retry.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

type encodedImage struct {
	mediaType string
	data      string // base64
}

// loadImages reads and base64-encodes image files. Unreadable paths are
// skipped, matching how ingestion treats missing images.
func loadImages(paths []string) []encodedImage {
	var out []encodedImage
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil || len(raw) == 0 {
			continue
		}
		out = append(out, encodedImage{
			mediaType: mediaType(p),
			data:      base64.StdEncoding.EncodeToString(raw),
		})
	}
	return out
}

func mediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
