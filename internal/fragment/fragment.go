// Package fragment defines the retrievable units produced by ingestion
// and the records that flow between the pipeline, the embedding layer
// and the vector store.
package fragment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes text fragments from image fragments.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ErrDimensionMismatch is returned when vectors that must share a space
// have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Fragment is one retrievable unit of a document.
type Fragment struct {
	ID         string    `json:"id"`
	Page       int       `json:"page"`
	Kind       Kind      `json:"kind"`
	ChunkID    *int      `json:"chunk_id"`
	Text       string    `json:"text"`
	ImagePaths []string  `json:"image_paths"`
	Embedding  []float32 `json:"-"`
}

// TextID is the identifier of the i-th text chunk on a page.
func TextID(page, chunk int) string {
	return fmt.Sprintf("page%d_chunk%d", page, chunk)
}

// ImageID is the identifier of an image fragment, keyed by the image's
// file basename.
func ImageID(page int, basename string) string {
	return fmt.Sprintf("page%d_img_%s", page, basename)
}

// NewText builds a text fragment for chunk i on a page.
func NewText(page, chunk int, text string) Fragment {
	c := chunk
	return Fragment{
		ID:         TextID(page, chunk),
		Page:       page,
		Kind:       KindText,
		ChunkID:    &c,
		Text:       text,
		ImagePaths: []string{},
	}
}

// NewImage builds an image fragment for a single image file.
func NewImage(page int, basename, path string) Fragment {
	return Fragment{
		ID:         ImageID(page, basename),
		Page:       page,
		Kind:       KindImage,
		ImagePaths: []string{path},
	}
}

// Validate checks the shape invariants of a fragment.
func (f Fragment) Validate() error {
	if f.ID == "" {
		return errors.New("fragment id is empty")
	}
	switch f.Kind {
	case KindText:
		if strings.TrimSpace(f.Text) == "" {
			return fmt.Errorf("text fragment %s has no text", f.ID)
		}
		if f.ChunkID == nil {
			return fmt.Errorf("text fragment %s has no chunk id", f.ID)
		}
		if len(f.ImagePaths) != 0 {
			return fmt.Errorf("text fragment %s has image paths", f.ID)
		}
	case KindImage:
		if len(f.ImagePaths) != 1 {
			return fmt.Errorf("image fragment %s has %d image paths, want 1", f.ID, len(f.ImagePaths))
		}
		if f.Text != "" || f.ChunkID != nil {
			return fmt.Errorf("image fragment %s carries text fields", f.ID)
		}
	default:
		return fmt.Errorf("fragment %s has unknown kind %q", f.ID, f.Kind)
	}
	return nil
}

// Metadata is what the vector store keeps alongside each vector. Unlike
// Fragment it has no optional fields; see MetadataFor.
type Metadata struct {
	Page       int      `json:"page"`
	ChunkID    int      `json:"chunk_id"`
	ImagePaths []string `json:"image_paths"`
}

// MetadataFor converts a fragment into store metadata, substituting 0 for
// a missing chunk id or page number and an empty list for missing paths.
func MetadataFor(f Fragment) Metadata {
	m := Metadata{Page: f.Page, ImagePaths: f.ImagePaths}
	if m.Page < 0 {
		m.Page = 0
	}
	if f.ChunkID != nil {
		m.ChunkID = *f.ChunkID
	}
	if m.ImagePaths == nil {
		m.ImagePaths = []string{}
	}
	return m
}

// RetrievalResult is one ranked hit from a similarity query.
type RetrievalResult struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
	Score     float32   `json:"score"`
}

// Manifest is the persisted record of one ingestion run, written before
// any embedding work starts.
type Manifest struct {
	DocumentURL string     `json:"document_url"`
	DocumentKey string     `json:"document_key"`
	Title       string     `json:"title,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Fragments   []Fragment `json:"fragments"`
}

// Lookup returns the fragment with the given id.
func (m *Manifest) Lookup(id string) (Fragment, bool) {
	for _, f := range m.Fragments {
		if f.ID == id {
			return f, true
		}
	}
	return Fragment{}, false
}
