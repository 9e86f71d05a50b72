package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/ragdoc/internal/document"
)

// Parser converts raw document bytes into pages of text and images.
type Parser interface {
	Parse(r io.Reader, filename string) (*document.Document, error)
}

// Options tunes parser behaviour that depends on deployment.
type Options struct {
	FallbackPdftotext bool // Shell out to pdftotext when the Go reader finds no text
	ExtractImages     bool // Pull embedded images out of PDFs
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.FallbackPdftotext, ExtractImages: opts.ExtractImages}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// singlePage wraps paragraphs from a page-less format into a one-page document.
func singlePage(title string, paragraphs []string) *document.Document {
	doc := &document.Document{Title: title}
	text := strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
	if text == "" {
		return doc
	}
	doc.Pages = []document.Page{{Number: 1, Text: text}}
	return doc
}
