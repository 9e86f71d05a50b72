package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dgallion1/ragdoc/internal/fragment"
)

// Fuser turns a fragment into one vector: the text embedding, the mean
// of its image embeddings, or the mean of both when a fragment has text
// and images.
type Fuser struct {
	oracle   Oracle
	log      *slog.Logger
	readFile func(string) ([]byte, error)

	mu  sync.Mutex
	dim int // 0 until the first vector is seen, unless configured
}

// NewFuser creates a fuser. A positive dim pins the expected vector
// length; otherwise the first vector produced sets it.
func NewFuser(oracle Oracle, dim int, log *slog.Logger) *Fuser {
	return &Fuser{
		oracle:   oracle,
		log:      log,
		readFile: os.ReadFile,
		dim:      max(dim, 0),
	}
}

// Dimension reports the vector length, or 0 if not yet known.
func (f *Fuser) Dimension() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dim
}

// Embed returns the fused vector for a fragment, or nil when neither its
// text nor any of its images could be embedded. Oracle failures and
// dimension mismatches are errors.
func (f *Fuser) Embed(ctx context.Context, frag fragment.Fragment) ([]float32, error) {
	var textVec []float32
	if strings.TrimSpace(frag.Text) != "" {
		v, err := f.oracle.EmbedText(ctx, frag.Text)
		if err != nil {
			return nil, fmt.Errorf("embed text %s: %w", frag.ID, err)
		}
		if err := f.check(v, frag.ID); err != nil {
			return nil, err
		}
		textVec = v
	}

	var imageVecs [][]float32
	for _, path := range frag.ImagePaths {
		data, err := f.readFile(path)
		if err != nil {
			f.log.Debug("skipping unreadable image", "fragment", frag.ID, "path", path, "error", err)
			continue
		}
		v, err := f.oracle.EmbedImage(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("embed image %s: %w", path, err)
		}
		if err := f.check(v, frag.ID); err != nil {
			return nil, err
		}
		imageVecs = append(imageVecs, v)
	}

	var imageVec []float32
	if len(imageVecs) > 0 {
		mean, err := Mean(imageVecs...)
		if err != nil {
			return nil, err
		}
		imageVec = mean
	}

	switch {
	case textVec != nil && imageVec != nil:
		return Mean(textVec, imageVec)
	case textVec != nil:
		return textVec, nil
	case imageVec != nil:
		return imageVec, nil
	default:
		return nil, nil
	}
}

// EmbedQuery embeds a query string with the same oracle used for
// ingestion.
func (f *Fuser) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := f.oracle.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := f.check(v, "query"); err != nil {
		return nil, err
	}
	return v, nil
}

// check pins the dimension on first use and rejects later vectors of a
// different length.
func (f *Fuser) check(v []float32, where string) error {
	if len(v) == 0 {
		return fmt.Errorf("oracle returned an empty vector for %s", where)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dim == 0 {
		f.dim = len(v)
		return nil
	}
	if len(v) != f.dim {
		return &DimensionMismatchError{Want: f.dim, Got: len(v), Where: where}
	}
	return nil
}

// Mean is the element-wise mean of equal-length vectors.
func Mean(vecs ...[]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, errors.New("mean of zero vectors")
	}
	n := len(vecs[0])
	sum := make([]float64, n)
	for _, v := range vecs {
		if len(v) != n {
			return nil, &DimensionMismatchError{Want: n, Got: len(v), Where: "mean"}
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, n)
	k := float64(len(vecs))
	for i, s := range sum {
		out[i] = float32(s / k)
	}
	return out, nil
}
