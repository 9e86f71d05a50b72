// Package document holds the extracted, pre-segmentation form of a source file.
package document

import "fmt"

// Document is the result of parsing a source file.
type Document struct {
	Title string // From metadata or filename
	Pages []Page // In source order, numbered from 1
}

// Page is one logical page of a document.
type Page struct {
	Number int
	Text   string  // Raw page text; paragraphs separated by blank lines
	Images []Image // Embedded raster images, in extraction order
}

// Image is an image extracted from a page.
type Image struct {
	Index int    // Position within the page
	Ext   string // File extension without the dot, e.g. "png"
	Data  []byte
}

// Filename is the deterministic on-disk name for an image on the given page.
func (i Image) Filename(page int) string {
	ext := i.Ext
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("page_%d_img_%d.%s", page, i.Index, ext)
}

// TextLen reports the total number of text bytes across all pages.
func (d *Document) TextLen() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Text)
	}
	return n
}

// ImageCount reports the number of images across all pages.
func (d *Document) ImageCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Images)
	}
	return n
}
