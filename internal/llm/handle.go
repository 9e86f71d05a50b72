package llm

import (
	"context"
	"sync"
)

// Loader builds a generator on first use.
type Loader func(ctx context.Context) (Generator, error)

// Handle shares one lazily built Generator across requests. A failed
// build is retried on the next call.
type Handle struct {
	mu   sync.Mutex
	load Loader
	gen  Generator
}

func NewHandle(load Loader) *Handle {
	return &Handle{load: load}
}

func (h *Handle) get(ctx context.Context) (Generator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != nil {
		return h.gen, nil
	}
	g, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	h.gen = g
	return g, nil
}

func (h *Handle) GenerateText(ctx context.Context, question string, segments []string) (string, error) {
	g, err := h.get(ctx)
	if err != nil {
		return "", err
	}
	return g.GenerateText(ctx, question, segments)
}

func (h *Handle) GenerateFromImages(ctx context.Context, question string, imagePaths []string) (string, error) {
	g, err := h.get(ctx)
	if err != nil {
		return "", err
	}
	return g.GenerateFromImages(ctx, question, imagePaths)
}

// Close closes the generator if it was ever built.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != nil {
		h.gen.Close()
	}
}
