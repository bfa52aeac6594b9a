package testutil

import (
	"bytes"
	"fmt"
)

// PageSize is a page's MediaBox width and height in points.
type PageSize struct {
	Width, Height float64
}

// Letter is the US Letter page size.
var Letter = PageSize{612, 792}

// MinimalPDF builds a valid PDF with one empty page per size. The page tree
// carries the first size as an inherited MediaBox; other pages override it.
func MinimalPDF(sizes ...PageSize) []byte {
	if len(sizes) == 0 {
		sizes = []PageSize{Letter}
	}

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range sizes {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %g %g] >>",
		kids, len(sizes), sizes[0].Width, sizes[0].Height))

	for i, s := range sizes {
		if i == 0 {
			obj("<< /Type /Page /Parent 2 0 R >>")
			continue
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] >>", s.Width, s.Height))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// PDFPages builds a MinimalPDF of n Letter pages.
func PDFPages(n int) []byte {
	sizes := make([]PageSize, n)
	for i := range sizes {
		sizes[i] = Letter
	}
	return MinimalPDF(sizes...)
}
