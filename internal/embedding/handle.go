package embedding

import (
	"context"
	"sync"
)

// Loader builds an oracle. It may be slow (model download, warm-up call).
type Loader func(ctx context.Context) (Oracle, error)

// Handle is a shared, lazily loaded oracle. The first caller loads it
// under the lock and every later caller reuses it. A failed load is not
// cached, so the next call tries again.
type Handle struct {
	mu     sync.Mutex
	load   Loader
	model  string
	oracle Oracle
}

func NewHandle(model string, load Loader) *Handle {
	return &Handle{model: model, load: load}
}

// Get returns the loaded oracle, loading it if needed.
func (h *Handle) Get(ctx context.Context) (Oracle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.oracle != nil {
		return h.oracle, nil
	}
	o, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	h.oracle = o
	return o, nil
}

// Loaded reports whether the oracle has been loaded.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.oracle != nil
}

func (h *Handle) Model() string { return h.model }

func (h *Handle) EmbedText(ctx context.Context, text string) ([]float32, error) {
	o, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return o.EmbedText(ctx, text)
}

func (h *Handle) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	o, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return o.EmbedImage(ctx, image)
}
