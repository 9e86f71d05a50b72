package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/dgallion1/ragdoc/internal/document"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser handles PDF files. Text comes from the Go reader with an
// optional pdftotext fallback; images come from pdfcpu.
type PDFParser struct {
	FallbackPdftotext bool
	ExtractImages     bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	// Both readers want random access, so we write to a temp file.
	tmp, err := os.CreateTemp("", "ragdoc-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	texts, err := extractPDFPages(tmpPath)
	if (err != nil || blank(texts)) && p.FallbackPdftotext {
		if fallback, ferr := extractPdftotext(tmpPath); ferr == nil {
			texts, err = fallback, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	doc := &document.Document{
		Title: strings.TrimSuffix(filename, ".pdf"),
		Pages: make([]document.Page, len(texts)),
	}
	for i, text := range texts {
		doc.Pages[i] = document.Page{Number: i + 1, Text: text}
	}

	if p.ExtractImages {
		images, err := extractPDFImages(tmpPath)
		if err != nil {
			return nil, fmt.Errorf("extract pdf images: %w", err)
		}
		for pageNr, imgs := range images {
			if pageNr < 1 {
				continue
			}
			for len(doc.Pages) < pageNr {
				doc.Pages = append(doc.Pages, document.Page{Number: len(doc.Pages) + 1})
			}
			doc.Pages[pageNr-1].Images = imgs
		}
	}

	return doc, nil
}

// extractPDFPages returns one text entry per page, empty for pages
// without a content stream.
func extractPDFPages(path string) (texts []string, err error) {
	// The reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	texts = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = text
	}
	return texts, nil
}

func extractPdftotext(path string) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	// Form feed separates pages; the last one trails the final page.
	pages := strings.Split(string(out), "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// extractPDFImages returns images keyed by 1-based page number, ordered
// by object number within each page.
func extractPDFImages(path string) (map[int][]document.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	raw, err := api.ExtractImagesRaw(f, nil, conf)
	if err != nil {
		return nil, err
	}

	byPage := make(map[int][]model.Image)
	for _, pageImages := range raw {
		for _, img := range pageImages {
			byPage[img.PageNr] = append(byPage[img.PageNr], img)
		}
	}

	out := make(map[int][]document.Image, len(byPage))
	for pageNr, imgs := range byPage {
		sort.Slice(imgs, func(i, j int) bool { return imgs[i].ObjNr < imgs[j].ObjNr })
		for i, img := range imgs {
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("read image %s on page %d: %w", img.Name, pageNr, err)
			}
			if len(data) == 0 {
				continue
			}
			out[pageNr] = append(out[pageNr], document.Image{
				Index: i,
				Ext:   imageExt(img.FileType),
				Data:  data,
			})
		}
	}
	return out, nil
}

func imageExt(fileType string) string {
	switch ft := strings.ToLower(strings.TrimPrefix(fileType, ".")); ft {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return ft
	}
}

func blank(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}
