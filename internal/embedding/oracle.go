// Package embedding maps text and images into one shared vector space
// and fuses them into a single vector per fragment.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/ragdoc/internal/fragment"
)

// Oracle produces fixed-length vectors for text and images. Vectors for
// both modalities must live in the same space.
type Oracle interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	Model() string
}

// ErrUnsupportedModality is returned by oracles that cannot embed a
// given input kind.
var ErrUnsupportedModality = errors.New("modality not supported by embedding model")

// DimensionMismatchError reports two vectors that should share a space
// but differ in length.
type DimensionMismatchError struct {
	Want  int
	Got   int
	Where string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch in %s: want %d, got %d", e.Where, e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return fragment.ErrDimensionMismatch
}
