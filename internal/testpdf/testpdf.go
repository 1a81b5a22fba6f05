// Package testpdf builds small, valid PDF documents for tests and the
// renderer's startup self check.
package testpdf

import (
	"bytes"
	"fmt"
	"os"
)

// Options describes the document to build
type Options struct {
	Pages int
	// Width and Height are the page size in points, US Letter when zero.
	Width  float64
	Height float64
	// Title is written to the document information dictionary when set.
	Title string
}

// Build returns a US Letter document of pages pages, each labelled "Page N"
func Build(pages int) []byte {
	return BuildWith(Options{Pages: pages})
}

// BuildWith returns a document described by opts with a correct xref table
func BuildWith(opts Options) []byte {
	if opts.Pages < 1 {
		opts.Pages = 1
	}
	if opts.Width <= 0 {
		opts.Width = 612
	}
	if opts.Height <= 0 {
		opts.Height = 792
	}

	var objects []string
	kids := ""
	for i := 0; i < opts.Pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", pageObject(i))
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, opts.Pages),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i := 0; i < opts.Pages; i++ {
		content := fmt.Sprintf("BT\n/F1 24 Tf\n72 %d Td\n(Page %d) Tj\nET", int(opts.Height)-96, i+1)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
				opts.Width, opts.Height, pageObject(i)+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	infoRef := ""
	if opts.Title != "" {
		objects = append(objects, fmt.Sprintf("<< /Title (%s) >>", opts.Title))
		infoRef = fmt.Sprintf(" /Info %d 0 R", len(objects))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, object := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, object)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, infoRef, xref)
	return buf.Bytes()
}

// pageObject is the object number of the zero-based page i; its content
// stream follows it.
func pageObject(i int) int {
	return 4 + 2*i
}

// Malformed returns bytes that carry a PDF header but no document
func Malformed() []byte {
	return []byte("%PDF-1.4\nthis is not a document\n%%EOF\n")
}

// WriteFile writes a document of pages pages to path
func WriteFile(path string, pages int) error {
	return os.WriteFile(path, Build(pages), 0644)
}
