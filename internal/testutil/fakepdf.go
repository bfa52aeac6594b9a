package testutil

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/folio/internal/pdfdoc"
)

const fakeMagic = "%FAKEPDF pages="

// FakePDF returns bytes that FakeDecoder decodes into an n-page document.
func FakePDF(pages int) []byte {
	return []byte(fakeMagic + strconv.Itoa(pages))
}

// FakeDecoder implements pdfdoc.Decoder over FakePDF bytes and records every
// document it creates. Anything else fails with pdfdoc.ErrDecode.
type FakeDecoder struct {
	// Width and Height are the natural page size; 0 means 600x800.
	Width, Height float64
	// Gate, when non-nil, blocks Decode until it is closed.
	Gate chan struct{}
	// RenderHook, when non-nil, runs at the start of every page render.
	RenderHook func(ctx context.Context, page int, scale float64) error

	mu      sync.Mutex
	decodes int
	docs    []*FakeDocument
}

var _ pdfdoc.Decoder = (*FakeDecoder)(nil)

// Decode parses FakePDF bytes.
func (d *FakeDecoder) Decode(data []byte) (pdfdoc.Document, error) {
	d.mu.Lock()
	d.decodes++
	gate := d.Gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s := string(data)
	if !strings.HasPrefix(s, fakeMagic) {
		return nil, fmt.Errorf("%w: not a fake pdf", pdfdoc.ErrDecode)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, fakeMagic))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("%w: bad page count", pdfdoc.ErrDecode)
	}

	w, h := d.Width, d.Height
	if w == 0 || h == 0 {
		w, h = 600, 800
	}
	doc := &FakeDocument{dec: d, pages: n, width: w, height: h}
	d.mu.Lock()
	d.docs = append(d.docs, doc)
	d.mu.Unlock()
	return doc, nil
}

// Decodes returns how many times Decode was called.
func (d *FakeDecoder) Decodes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decodes
}

// Documents returns every successfully decoded document.
func (d *FakeDecoder) Documents() []*FakeDocument {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeDocument(nil), d.docs...)
}

// FakeDocument records close calls and page usage.
type FakeDocument struct {
	dec           *FakeDecoder
	pages         int
	width, height float64

	mu         sync.Mutex
	closes     int
	pageOpens  int
	pageCloses int
	renders    int
}

func (d *FakeDocument) PageCount() int { return d.pages }

func (d *FakeDocument) Page(index int) (pdfdoc.Page, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: %d of %d", pdfdoc.ErrPageRange, index+1, d.pages)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closes > 0 {
		return nil, pdfdoc.ErrClosed
	}
	d.pageOpens++
	return &FakePage{doc: d, index: index}, nil
}

func (d *FakeDocument) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	return nil
}

// Closes returns how many times Close was called.
func (d *FakeDocument) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// OpenPages returns pages opened and not yet closed.
func (d *FakeDocument) OpenPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageOpens - d.pageCloses
}

// Renders returns how many page renders completed.
func (d *FakeDocument) Renders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renders
}

// FakePage fills the target buffer with a shade derived from its index.
type FakePage struct {
	doc   *FakeDocument
	index int

	mu     sync.Mutex
	closed bool
}

func (p *FakePage) Width() float64  { return p.doc.width }
func (p *FakePage) Height() float64 { return p.doc.height }

// Index returns the zero-based page index.
func (p *FakePage) Index() int { return p.index }

func (p *FakePage) Render(ctx context.Context, scale float64, dst *image.RGBA) error {
	if hook := p.doc.dec.RenderHook; hook != nil {
		if err := hook(ctx, p.index, scale); err != nil {
			return err
		}
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return pdfdoc.ErrClosed
	}

	shade := color.RGBA{R: uint8(p.index * 40), G: 0x80, B: 0xff, A: 0xff}
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, shade)
		}
	}
	p.doc.mu.Lock()
	p.doc.renders++
	p.doc.mu.Unlock()
	return nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.doc.mu.Lock()
	p.doc.pageCloses++
	p.doc.mu.Unlock()
	return nil
}
