package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/ledongthuc/pdf"
)

// maxInheritDepth bounds the walk up the page tree for inherited attributes.
const maxInheritDepth = 32

// US Letter, used when a page tree carries no MediaBox at all.
const (
	defaultWidth  = 612
	defaultHeight = 792
)

// Lite is a pure-Go backend built on ledongthuc/pdf. It reads page counts and
// page sizes but cannot rasterise, so thumbnails fail with
// ErrRenderUnsupported while page counts work.
type Lite struct{}

// Decode parses data as a PDF.
func (Lite) Decode(data []byte) (doc Document, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &liteDocument{r: r, pages: r.NumPage()}, nil
}

type liteDocument struct {
	r     *pdf.Reader
	pages int
}

func (d *liteDocument) PageCount() int { return d.pages }

func (d *liteDocument) Page(index int) (page Page, err error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, index+1, d.pages)
	}
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("%w: page %d: %v", ErrDecode, index+1, r)
		}
	}()
	p := d.r.Page(index + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("%w: page %d missing", ErrDecode, index+1)
	}
	w, h := mediaBox(p.V)
	if rot := int(inherited(p.V, "Rotate").Int64()); rot%180 != 0 {
		w, h = h, w
	}
	return &litePage{width: w, height: h}, nil
}

func (d *liteDocument) Close() error { return nil }

// inherited returns key from the page dictionary or the nearest ancestor.
func inherited(v pdf.Value, key string) pdf.Value {
	for i := 0; i < maxInheritDepth && !v.IsNull(); i++ {
		if got := v.Key(key); !got.IsNull() {
			return got
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func mediaBox(page pdf.Value) (float64, float64) {
	box := inherited(page, "MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return defaultWidth, defaultHeight
	}
	w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
	h := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
	if w == 0 || h == 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

type litePage struct {
	width, height float64
}

func (p *litePage) Width() float64  { return p.width }
func (p *litePage) Height() float64 { return p.height }

func (p *litePage) Render(context.Context, float64, *image.RGBA) error {
	return ErrRenderUnsupported
}

func (p *litePage) Close() error { return nil }
