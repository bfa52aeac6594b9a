package pdfdoc

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"
)

// pointsPerInch is the resolution at which MuPDF reports page bounds.
const pointsPerInch = 72

// Fitz decodes and rasterises with MuPDF through go-fitz.
type Fitz struct{}

// Decode opens data as a PDF.
func (Fitz) Decode(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	n := doc.NumPage()
	if n < 1 {
		doc.Close()
		return nil, fmt.Errorf("%w: no pages", ErrDecode)
	}
	return &fitzDocument{doc: doc, pages: n}, nil
}

type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) PageCount() int { return d.pages }

func (d *fitzDocument) Page(index int) (Page, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, index+1, d.pages)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	bounds, err := d.doc.Bound(index)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: bound page %d: %w", index+1, err)
	}
	return &fitzPage{
		doc:    d,
		index:  index,
		width:  float64(bounds.Dx()),
		height: float64(bounds.Dy()),
	}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

// raster renders one page at dpi while holding the document lock; MuPDF
// contexts are not safe for concurrent use.
func (d *fitzDocument) raster(index int, dpi float64) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.doc.ImageDPI(index, dpi)
}

type fitzPage struct {
	doc           *fitzDocument
	index         int
	width, height float64

	mu     sync.Mutex
	closed bool
}

func (p *fitzPage) Width() float64  { return p.width }
func (p *fitzPage) Height() float64 { return p.height }

func (p *fitzPage) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	img, err := p.doc.raster(p.index, pointsPerInch*scale)
	if err != nil {
		return fmt.Errorf("pdfdoc: render page %d: %w", p.index+1, err)
	}
	// MuPDF rounds the pixmap outward; stretch it onto the exact buffer.
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

func (p *fitzPage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
