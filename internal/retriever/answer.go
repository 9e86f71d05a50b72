package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/llm"
)

// FragmentLookup resolves a stored fragment ID to its manifest record.
type FragmentLookup interface {
	Lookup(id string) (fragment.Fragment, bool)
}

// Answer is a generated response grounded on retrieved fragments.
type Answer struct {
	Question           string                     `json:"question"`
	RetrievedDocs      []fragment.RetrievalResult `json:"retrieved_docs"`
	GeneratedText      string                     `json:"generated_text"`
	GeneratedImageText string                     `json:"generated_image_text"`
}

// Answerer retrieves fragments and asks the generator to answer from
// their text and, separately, from their images.
type Answerer struct {
	retriever *Retriever
	lookup    FragmentLookup
	generator llm.Generator
	log       *slog.Logger
}

func NewAnswerer(r *Retriever, lookup FragmentLookup, gen llm.Generator, log *slog.Logger) *Answerer {
	return &Answerer{retriever: r, lookup: lookup, generator: gen, log: log}
}

func (a *Answerer) Answer(ctx context.Context, question string, topK int) (*Answer, error) {
	results, err := a.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	segments, images := a.context(results)
	a.log.Debug("answering", "results", len(results), "segments", len(segments), "images", len(images))

	text, err := a.generator.GenerateText(ctx, question, segments)
	if err != nil {
		return nil, fmt.Errorf("generate from text: %w", err)
	}
	imageText, err := a.generator.GenerateFromImages(ctx, question, images)
	if err != nil {
		return nil, fmt.Errorf("generate from images: %w", err)
	}

	return &Answer{
		Question:           question,
		RetrievedDocs:      results,
		GeneratedText:      text,
		GeneratedImageText: imageText,
	}, nil
}

// context collects text segments and image paths in rank order. Image
// paths are deduplicated; results missing from every manifest contribute
// only their stored image paths.
func (a *Answerer) context(results []fragment.RetrievalResult) ([]string, []string) {
	var segments, images []string
	seen := make(map[string]bool)
	for _, r := range results {
		if f, ok := a.lookup.Lookup(r.ID); ok && f.Text != "" {
			segments = append(segments, f.Text)
		}
		for _, p := range r.Metadata.ImagePaths {
			if !seen[p] {
				seen[p] = true
				images = append(images, p)
			}
		}
	}
	return segments, images
}
