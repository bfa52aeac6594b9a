package pdfdoc_test

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/starford/folio/internal/pdfdoc"
	"github.com/starford/folio/internal/testutil"
)

func TestFit(t *testing.T) {
	cases := []struct {
		name                 string
		natW, natH, css, dpr float64
		pw, ph               int
		cssW, cssH           float64
	}{
		{"identity", 600, 800, 600, 1, 600, 800, 600, 800},
		{"half", 600, 800, 300, 1, 300, 400, 300, 400},
		{"retina", 600, 800, 300, 2, 600, 800, 300, 400},
		{"floors", 612, 792, 300, 1.5, 450, 582, 300, 388},
		{"zero dpr defaults to one", 600, 800, 300, 0, 300, 400, 300, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := pdfdoc.Fit(tc.natW, tc.natH, tc.css, tc.dpr)
			if f.PixelWidth != tc.pw || f.PixelHeight != tc.ph {
				t.Errorf("pixels = %dx%d, want %dx%d", f.PixelWidth, f.PixelHeight, tc.pw, tc.ph)
			}
			if f.CSSWidth != tc.cssW || f.CSSHeight != tc.cssH {
				t.Errorf("css = %gx%g, want %gx%g", f.CSSWidth, f.CSSHeight, tc.cssW, tc.cssH)
			}
		})
	}
}

func TestFit_Empty(t *testing.T) {
	if !pdfdoc.Fit(600, 800, 0, 1).Empty() {
		t.Error("zero width should be empty")
	}
	if !pdfdoc.Fit(0, 800, 300, 1).Empty() {
		t.Error("zero natural width should be empty")
	}
}

func TestNewDecoder(t *testing.T) {
	if _, err := pdfdoc.NewDecoder("fitz"); err != nil {
		t.Errorf("fitz: %v", err)
	}
	if _, err := pdfdoc.NewDecoder("lite"); err != nil {
		t.Errorf("lite: %v", err)
	}
	if _, err := pdfdoc.NewDecoder("pdfjs"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLite_PageCountAndSizes(t *testing.T) {
	data := testutil.MinimalPDF(
		testutil.Letter,
		testutil.PageSize{Width: 300, Height: 400},
		testutil.Letter,
	)
	doc, err := pdfdoc.Lite{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer doc.Close()

	if doc.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3", doc.PageCount())
	}

	p, err := doc.Page(0)
	if err != nil {
		t.Fatalf("Page(0): %v", err)
	}
	if p.Width() != 612 || p.Height() != 792 {
		t.Errorf("inherited size = %gx%g", p.Width(), p.Height())
	}

	p, err = doc.Page(1)
	if err != nil {
		t.Fatalf("Page(1): %v", err)
	}
	if p.Width() != 300 || p.Height() != 400 {
		t.Errorf("own size = %gx%g", p.Width(), p.Height())
	}

	err = p.Render(context.Background(), 1, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if !errors.Is(err, pdfdoc.ErrRenderUnsupported) {
		t.Errorf("Render err = %v, want ErrRenderUnsupported", err)
	}

	if _, err := doc.Page(3); !errors.Is(err, pdfdoc.ErrPageRange) {
		t.Errorf("Page(3) err = %v, want ErrPageRange", err)
	}
}

func TestLite_Corrupt(t *testing.T) {
	_, err := pdfdoc.Lite{}.Decode([]byte("definitely not a pdf"))
	if !errors.Is(err, pdfdoc.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestFitz_RenderIntoBuffer(t *testing.T) {
	doc, err := pdfdoc.Fitz{}.Decode(testutil.PDFPages(2))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer doc.Close()

	if doc.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", doc.PageCount())
	}
	p, err := doc.Page(1)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	defer p.Close()
	if p.Width() != 612 || p.Height() != 792 {
		t.Errorf("size = %gx%g", p.Width(), p.Height())
	}

	f := pdfdoc.Fit(p.Width(), p.Height(), 153, 1)
	dst := image.NewRGBA(image.Rect(0, 0, f.PixelWidth, f.PixelHeight))
	if err := p.Render(context.Background(), f.Scale, dst); err != nil {
		t.Fatalf("Render: %v", err)
	}
	// An empty page renders white.
	if c := dst.RGBAAt(f.PixelWidth/2, f.PixelHeight/2); c.R != 0xff || c.G != 0xff || c.B != 0xff {
		t.Errorf("center pixel = %v, want white", c)
	}

	if err := doc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Render(context.Background(), f.Scale, dst); !errors.Is(err, pdfdoc.ErrClosed) {
		t.Errorf("render after close err = %v, want ErrClosed", err)
	}
}

func TestFitz_Corrupt(t *testing.T) {
	_, err := pdfdoc.Fitz{}.Decode([]byte("not a pdf at all"))
	if !errors.Is(err, pdfdoc.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}
