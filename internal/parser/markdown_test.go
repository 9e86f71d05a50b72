package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_BlocksBecomeParagraphs(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "Title" {
		t.Errorf("expected title %q, got %q", "Title", doc.Title)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(doc.Pages))
	}

	paras := strings.Split(doc.Pages[0].Text, "\n\n")
	want := []string{"Title", "Intro text.", "Section A", "Section A content.", "Section B", "Section B content."}
	if len(paras) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d: %q", len(want), len(paras), paras)
	}
	for i, w := range want {
		if paras[i] != w {
			t.Errorf("paragraph[%d]: expected %q, got %q", i, w, paras[i])
		}
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := "Just some text.\n\nAnother paragraph."
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "plain" {
		t.Errorf("expected title from filename, got %q", doc.Title)
	}
	if got := doc.Pages[0].Text; got != "Just some text.\n\nAnother paragraph." {
		t.Errorf("unexpected page text %q", got)
	}
}

func TestMarkdownParser_ListItemsStayInOneParagraph(t *testing.T) {
	input := "- alpha\n- beta\n- gamma\n"
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "list.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := doc.Pages[0].Text
	if strings.Contains(text, "\n\n") {
		t.Errorf("expected a single paragraph for the list, got %q", text)
	}
	for _, item := range []string{"alpha", "beta", "gamma"} {
		if !strings.Contains(text, item) {
			t.Errorf("expected %q in %q", item, text)
		}
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Pages) != 0 {
		t.Errorf("expected no pages, got %d", len(doc.Pages))
	}
}
