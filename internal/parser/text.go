package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/ragdoc/internal/document"
)

// TextParser handles plain text files. Form feeds split pages; blank
// lines split paragraphs.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := &document.Document{Title: strings.TrimSuffix(filename, ".txt")}

	var paragraphs []string
	var current strings.Builder

	flushParagraph := func() {
		if current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
	}
	flushPage := func() {
		flushParagraph()
		doc.Pages = append(doc.Pages, document.Page{
			Number: len(doc.Pages) + 1,
			Text:   strings.Join(paragraphs, "\n\n"),
		})
		paragraphs = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		for {
			before, after, found := strings.Cut(line, "\f")
			if !found {
				break
			}
			if strings.TrimSpace(before) != "" {
				appendLine(&current, before)
			}
			flushPage()
			line = after
		}

		if strings.TrimSpace(line) == "" {
			flushParagraph()
			continue
		}
		appendLine(&current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	flushParagraph()
	if len(paragraphs) > 0 || len(doc.Pages) == 0 {
		flushPage()
	}
	if len(doc.Pages) == 1 && doc.Pages[0].Text == "" {
		doc.Pages = nil
	}

	return doc, nil
}

func appendLine(b *strings.Builder, line string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(line)
}
