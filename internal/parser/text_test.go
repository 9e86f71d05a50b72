package parser

import (
	"strings"
	"testing"
)

func TestTextParser_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", doc.Title)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(doc.Pages))
	}

	want := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	if doc.Pages[0].Text != want {
		t.Errorf("expected %q, got %q", want, doc.Pages[0].Text)
	}
	if doc.Pages[0].Number != 1 {
		t.Errorf("expected page number 1, got %d", doc.Pages[0].Number)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "empty" {
		t.Errorf("expected title %q, got %q", "empty", doc.Title)
	}
	if len(doc.Pages) != 0 {
		t.Errorf("expected 0 pages for empty input, got %d", len(doc.Pages))
	}
}

func TestTextParser_MultipleBlankLines(t *testing.T) {
	// Multiple consecutive blank lines collapse into one separator.
	input := "Para one.\n\n\n\nPara two."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "gaps.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Pages[0].Text; got != "Para one.\n\nPara two." {
		t.Fatalf("expected collapsed separator, got %q", got)
	}
}

func TestTextParser_WhitespaceOnlyLines(t *testing.T) {
	input := "Para one.\n   \nPara two."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "ws.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Pages[0].Text; got != "Para one.\n\nPara two." {
		t.Fatalf("expected whitespace line treated as blank, got %q", got)
	}
}

func TestTextParser_FormFeedSplitsPages(t *testing.T) {
	input := "Page one text.\fPage two text.\n\nMore on two."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "paged.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}
	if doc.Pages[0].Text != "Page one text." {
		t.Errorf("page 1: got %q", doc.Pages[0].Text)
	}
	if doc.Pages[1].Number != 2 || doc.Pages[1].Text != "Page two text.\n\nMore on two." {
		t.Errorf("page 2: got %d %q", doc.Pages[1].Number, doc.Pages[1].Text)
	}
}
