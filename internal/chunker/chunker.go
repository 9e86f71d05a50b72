// Package chunker splits page text into paragraph-aligned segments.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the segment length used when none is configured.
	DefaultMaxChars = 1200

	paragraphSep = "\n\n"
)

// Config controls segmentation.
type Config struct {
	MaxChars int // Upper bound on segment length, exceeded only by a single oversize paragraph.
	Overlap  int // Max length of trailing whole paragraphs repeated at the start of the next segment. 0 disables.
}

// DefaultConfig returns the ingestion defaults.
func DefaultConfig() Config {
	return Config{MaxChars: DefaultMaxChars}
}

// Segment splits one page of text into ordered segments. Paragraphs
// (separated by blank lines) are accumulated greedily until adding the
// next one would push the segment past MaxChars. A paragraph is never
// split, so one longer than MaxChars becomes its own segment.
// Whitespace-only input yields no segments.
func Segment(pageText string, cfg Config) []string {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	paragraphs := splitByParagraphs(pageText)
	if len(paragraphs) == 0 {
		return nil
	}

	var segments []string
	var current []string
	currentLen := 0

	for _, para := range paragraphs {
		paraLen := charLen(para)

		if len(current) > 0 && currentLen+len(paragraphSep)+paraLen > cfg.MaxChars {
			segments = append(segments, strings.Join(current, paragraphSep))
			current = overlapTail(current, cfg.Overlap, paraLen, cfg.MaxChars)
			currentLen = joinedLen(current)
		}

		if len(current) > 0 {
			currentLen += len(paragraphSep)
		}
		current = append(current, para)
		currentLen += paraLen
	}

	if len(current) > 0 {
		segments = append(segments, strings.Join(current, paragraphSep))
	}

	return segments
}

// overlapTail picks the trailing whole paragraphs of a flushed segment
// whose joined length is within overlap. They are carried only if the
// next paragraph still fits after them.
func overlapTail(flushed []string, overlap, nextLen, maxChars int) []string {
	if overlap <= 0 {
		return nil
	}

	start := len(flushed)
	total := 0
	for i := len(flushed) - 1; i >= 0; i-- {
		n := charLen(flushed[i])
		if start < len(flushed) {
			n += len(paragraphSep)
		}
		if total+n > overlap {
			break
		}
		total += n
		start = i
	}

	if start == len(flushed) || total+len(paragraphSep)+nextLen > maxChars {
		return nil
	}

	tail := make([]string, len(flushed)-start)
	copy(tail, flushed[start:])
	return tail
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, paragraphSep)
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func joinedLen(paras []string) int {
	if len(paras) == 0 {
		return 0
	}
	n := len(paragraphSep) * (len(paras) - 1)
	for _, p := range paras {
		n += charLen(p)
	}
	return n
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
