package parser

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildPDF writes a two-page PDF: page 1 carries a line of text, page 2
// carries only a JPEG image.
func buildPDF(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: 80, B: uint8(y * 30), A: 255})
		}
	}
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	text := "BT /F1 24 Tf 72 720 Td (Hello page one) Tj ET"
	draw := "q 100 0 0 100 72 600 cm /Im1 Do Q"

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 6 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 7 0 R >> >> /Contents 8 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(text), text),
		fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n%s\nendstream", jpg.Len(), jpg.String()),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(draw), draw),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

func TestPDFParser_TextAndImagesAlignByPage(t *testing.T) {
	pdf := buildPDF(t)

	p := &PDFParser{ExtractImages: true}
	doc, err := p.Parse(bytes.NewReader(pdf), "paper.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "paper" {
		t.Errorf("expected title %q, got %q", "paper", doc.Title)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}

	first, second := doc.Pages[0], doc.Pages[1]
	if first.Number != 1 || second.Number != 2 {
		t.Errorf("expected pages numbered 1 and 2, got %d and %d", first.Number, second.Number)
	}
	if !strings.Contains(first.Text, "Hello") {
		t.Errorf("expected page 1 text to contain %q, got %q", "Hello", first.Text)
	}
	if len(first.Images) != 0 {
		t.Errorf("expected no images on page 1, got %d", len(first.Images))
	}

	if strings.TrimSpace(second.Text) != "" {
		t.Errorf("expected image-only page 2 to have no text, got %q", second.Text)
	}
	if len(second.Images) != 1 {
		t.Fatalf("expected 1 image on page 2, got %d", len(second.Images))
	}
	got := second.Images[0]
	if got.Ext != "jpg" {
		t.Errorf("expected ext %q, got %q", "jpg", got.Ext)
	}
	if got.Index != 0 {
		t.Errorf("expected index 0, got %d", got.Index)
	}
	if len(got.Data) < 2 || got.Data[0] != 0xFF || got.Data[1] != 0xD8 {
		t.Errorf("expected JPEG data, got %d bytes", len(got.Data))
	}
	if name := got.Filename(2); name != "page_2_img_0.jpg" {
		t.Errorf("expected filename %q, got %q", "page_2_img_0.jpg", name)
	}
}

func TestPDFParser_SkipsImagesWhenDisabled(t *testing.T) {
	pdf := buildPDF(t)

	doc, err := (&PDFParser{}).Parse(bytes.NewReader(pdf), "paper.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := doc.ImageCount(); n != 0 {
		t.Errorf("expected no images, got %d", n)
	}
}

func TestExtractPDFImages_KeyedByPage(t *testing.T) {
	pdf := buildPDF(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	images, err := extractPDFImages(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected images on exactly one page, got %d", len(images))
	}
	if len(images[2]) != 1 {
		t.Errorf("expected 1 image keyed to page 2, got %d", len(images[2]))
	}
}

func TestImageExtPDF(t *testing.T) {
	cases := map[string]string{"jpeg": "jpg", ".png": "png", "": "bin", "TIF": "tif"}
	for in, want := range cases {
		if got := imageExt(in); got != want {
			t.Errorf("imageExt(%q): expected %q, got %q", in, want, got)
		}
	}
}
