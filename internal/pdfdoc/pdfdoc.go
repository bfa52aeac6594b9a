// Package pdfdoc defines the capabilities the renderer needs from a PDF
// library and provides the go-fitz and ledongthuc/pdf backends.
package pdfdoc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrDecode wraps any failure to parse PDF bytes.
	ErrDecode = errors.New("pdfdoc: decode failed")
	// ErrRenderUnsupported is returned by backends that cannot rasterise.
	ErrRenderUnsupported = errors.New("pdfdoc: backend cannot render pages")
	// ErrPageRange is returned for a page index outside the document.
	ErrPageRange = errors.New("pdfdoc: page out of range")
	// ErrClosed is returned when a closed document or page is used.
	ErrClosed = errors.New("pdfdoc: closed")
)

// Decoder turns raw file bytes into a Document.
type Decoder interface {
	Decode(data []byte) (Document, error)
}

// Document is a decoded PDF. Implementations must be safe for concurrent use.
type Document interface {
	PageCount() int
	// Page opens the page at a zero-based index.
	Page(index int) (Page, error)
	Close() error
}

// Page is one opened page. Width and Height are in points (scale 1).
type Page interface {
	Width() float64
	Height() float64
	// Render rasterises the page at scale into dst, stretching to dst's bounds.
	Render(ctx context.Context, scale float64, dst *image.RGBA) error
	Close() error
}

// Backend names accepted by NewDecoder.
const (
	BackendFitz = "fitz"
	BackendLite = "lite"
)

// NewDecoder returns the decoder for a backend name.
func NewDecoder(backend string) (Decoder, error) {
	switch backend {
	case BackendFitz, "":
		return Fitz{}, nil
	case BackendLite:
		return Lite{}, nil
	default:
		return nil, fmt.Errorf("pdfdoc: unknown backend %q", backend)
	}
}

// Frame describes how a page is rasterised for a container width.
type Frame struct {
	Scale       float64
	PixelWidth  int
	PixelHeight int
	CSSWidth    float64
	CSSHeight   float64
}

// Fit computes the frame for drawing a page of the given natural size into
// cssWidth logical pixels on a display with device pixel ratio dpr. The pixel
// buffer is the floored natural size times scale times dpr; the CSS size is
// the buffer divided by dpr. Width is taken from cssWidth directly since
// natural width times scale is cssWidth.
func Fit(naturalWidth, naturalHeight, cssWidth, dpr float64) Frame {
	if dpr <= 0 {
		dpr = 1
	}
	if naturalWidth <= 0 || naturalHeight <= 0 || cssWidth <= 0 {
		return Frame{}
	}
	scale := cssWidth / naturalWidth
	pw := int(math.Floor(cssWidth * dpr))
	ph := int(math.Floor(naturalHeight * scale * dpr))
	return Frame{
		Scale:       scale,
		PixelWidth:  pw,
		PixelHeight: ph,
		CSSWidth:    float64(pw) / dpr,
		CSSHeight:   float64(ph) / dpr,
	}
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.PixelWidth <= 0 || f.PixelHeight <= 0
}
