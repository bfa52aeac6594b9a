package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/semaphore"

	"github.com/starford/folio/internal/directive"
	"github.com/starford/folio/internal/doccache"
	"github.com/starford/folio/internal/dom"
	"github.com/starford/folio/internal/pdfdoc"
)

// State is a thumbnail's lifecycle state.
type State int

const (
	Created State = iota
	Mounted
	Rendering
	Idle
	Unmounted
)

var stateNames = [...]string{"created", "mounted", "rendering", "idle", "unmounted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Releaser gives back a cache reference. *doccache.Cache satisfies it.
type Releaser interface {
	Release(path string)
}

// Options tune thumbnail rendering.
type Options struct {
	// Debounce delays every render after the first one.
	Debounce time.Duration
	// DevicePixelRatio is used when a resize report carries none.
	DevicePixelRatio float64
	// Renders bounds concurrent rasterisation; nil means unbounded.
	Renders *semaphore.Weighted
	// ImageURL formats the frame URL for a session and element.
	ImageURL func(sessionID, elementID string) string
}

// DefaultImageURL is the frame URL served by the HTTP API.
func DefaultImageURL(sessionID, elementID string) string {
	return "/api/render/sessions/" + sessionID + "/thumbnails/" + elementID
}

// Frame is one rasterised page.
type Frame struct {
	Version   uint64
	PNG       []byte
	Width     int
	Height    int
	CSSWidth  float64
	CSSHeight float64
}

// Thumbnail replaces a directive with an image of a PDF page and keeps it in
// step with the reported container width.
type Thumbnail struct {
	session   *Session
	container *html.Node
	dir       directive.Directive
	path      string
	fut       *doccache.Future
	cache     Releaser
	opts      Options
	elementID string
	logger    *slog.Logger

	timer Timer

	mu        sync.Mutex
	state     State
	page      pdfdoc.Page
	pageNum   int
	scheduled bool
	seq       uint64
	inflight  int
	frame     *Frame
	released  bool
}

// NewThumbnail creates a thumbnail controller. It takes over the cache
// reference behind fut: the reference is released exactly once, by Unmount
// or by a failed Mount.
func NewThumbnail(s *Session, container *html.Node, d directive.Directive, path string, fut *doccache.Future, cache Releaser, opts Options) *Thumbnail {
	if opts.DevicePixelRatio <= 0 {
		opts.DevicePixelRatio = 1
	}
	if opts.ImageURL == nil {
		opts.ImageURL = DefaultImageURL
	}
	id := s.NextElementID()
	return &Thumbnail{
		session:   s,
		container: container,
		dir:       d,
		path:      path,
		fut:       fut,
		cache:     cache,
		opts:      opts,
		elementID: id,
		logger:    s.logger.With(slog.String("element", id), slog.String("path", path)),
	}
}

// ElementID returns the identifier used in markup and API routes.
func (t *Thumbnail) ElementID() string { return t.elementID }

// Path returns the canonical PDF path.
func (t *Thumbnail) Path() string { return t.path }

// State returns the current lifecycle state.
func (t *Thumbnail) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PageNumber returns the 1-based page shown, after clamping. It is 0 before
// mount.
func (t *Thumbnail) PageNumber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageNum
}

// Frame returns the latest visible frame.
func (t *Thumbnail) Frame() (Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		return Frame{}, false
	}
	return *t.frame, true
}

// Mount waits for the document, opens the page and splices the thumbnail
// element into the container. A fixed-width thumbnail renders right away.
func (t *Thumbnail) Mount(ctx context.Context) error {
	doc, err := t.fut.Wait(ctx)
	if err != nil {
		t.Unmount()
		return err
	}
	if t.State() == Unmounted {
		return ErrSessionClosed
	}

	num := t.dir.Page
	if num > doc.PageCount() {
		num = 1
	}
	page, err := doc.Page(num - 1)
	if err != nil {
		t.Unmount()
		return fmt.Errorf("render: open page %d of %s: %w", num, t.path, err)
	}

	t.mu.Lock()
	if t.state == Unmounted {
		t.mu.Unlock()
		page.Close()
		return ErrSessionClosed
	}
	t.page = page
	t.pageNum = num
	t.mu.Unlock()

	el := t.element(page)
	var spliced bool
	t.session.Mutate(func() {
		spliced = dom.Splice(t.container, t.dir.Raw, el)
	})
	if !spliced {
		t.Unmount()
		return fmt.Errorf("%w: %q", ErrDirectiveNotFound, t.dir.Raw)
	}

	t.mu.Lock()
	if t.state == Unmounted {
		t.mu.Unlock()
		return ErrSessionClosed
	}
	t.state = Mounted
	t.mu.Unlock()

	if t.dir.HasFixedWidth() {
		t.request(float64(t.dir.Width), t.opts.DevicePixelRatio)
	}
	t.logger.Debug("render: thumbnail mounted", slog.Int("page", num))
	return nil
}

func (t *Thumbnail) element(page pdfdoc.Page) *html.Node {
	div := dom.NewElement(atom.Div,
		"class", "pdf-thumbnail",
		"data-session", t.session.ID(),
		"data-element", t.elementID,
		"data-path", t.path,
		"data-page", strconv.Itoa(t.pageNum),
	)
	if t.dir.HasFixedWidth() {
		f := pdfdoc.Fit(page.Width(), page.Height(), float64(t.dir.Width), t.opts.DevicePixelRatio)
		dom.SetAttr(div, "data-fixed-width", strconv.Itoa(t.dir.Width))
		dom.SetAttr(div, "style", fmt.Sprintf("width:%gpx;height:%gpx", f.CSSWidth, f.CSSHeight))
	} else {
		dom.SetAttr(div, "style", "width:100%")
	}
	div.AppendChild(dom.NewElement(atom.Img,
		"src", t.opts.ImageURL(t.session.ID(), t.elementID),
		"alt", t.path,
	))
	return div
}

// Resize reports the container's CSS width and device pixel ratio. The first
// report renders immediately, later ones are debounced and supersede any
// pending render. Reports are ignored for fixed-width thumbnails and before
// mount or after unmount.
func (t *Thumbnail) Resize(width, dpr float64) {
	if width <= 0 || t.dir.HasFixedWidth() {
		return
	}
	if dpr <= 0 {
		dpr = t.opts.DevicePixelRatio
	}
	t.request(width, dpr)
}

func (t *Thumbnail) request(width, dpr float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Created || t.state == Unmounted {
		return
	}
	delay := t.opts.Debounce
	if !t.scheduled {
		delay = 0
		t.scheduled = true
	}
	t.timer.Schedule(delay, func() { t.render(width, dpr) })
}

// render rasterises the page and keeps the result only if no newer render
// has started in the meantime.
func (t *Thumbnail) render(width, dpr float64) {
	t.mu.Lock()
	if t.state == Unmounted {
		t.mu.Unlock()
		return
	}
	t.seq++
	seq := t.seq
	t.inflight++
	t.state = Rendering
	page := t.page
	t.mu.Unlock()

	frame, err := t.rasterise(page, width, dpr)
	if err == nil {
		frame.Version = seq
	}

	t.mu.Lock()
	t.inflight--
	applied := false
	switch {
	case err != nil:
		t.logger.Warn("render: thumbnail render failed", slog.String("error", err.Error()))
	case seq == t.seq && t.state != Unmounted:
		t.frame = &frame
		applied = true
	default:
		t.logger.Debug("render: stale frame dropped", slog.Uint64("seq", seq))
	}
	if t.inflight == 0 && t.state == Rendering {
		t.state = Idle
	}
	finalize := t.state == Unmounted && t.inflight == 0 && !t.released
	if finalize {
		t.released = true
	}
	t.mu.Unlock()

	if applied {
		t.session.frameReady(t.elementID, frame)
	}
	if finalize {
		t.dispose(page)
	}
}

func (t *Thumbnail) rasterise(page pdfdoc.Page, width, dpr float64) (Frame, error) {
	f := pdfdoc.Fit(page.Width(), page.Height(), width, dpr)
	if f.Empty() {
		return Frame{}, fmt.Errorf("render: empty frame for width %g", width)
	}

	ctx := context.Background()
	if t.opts.Renders != nil {
		if err := t.opts.Renders.Acquire(ctx, 1); err != nil {
			return Frame{}, err
		}
		defer t.opts.Renders.Release(1)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.PixelWidth, f.PixelHeight))
	if err := page.Render(ctx, f.Scale, img); err != nil {
		return Frame{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Frame{}, fmt.Errorf("render: encode png: %w", err)
	}
	return Frame{
		PNG:       buf.Bytes(),
		Width:     f.PixelWidth,
		Height:    f.PixelHeight,
		CSSWidth:  f.CSSWidth,
		CSSHeight: f.CSSHeight,
	}, nil
}

// Unmount cancels any pending render, closes the page and releases the
// cache reference. With renders in flight the page is closed and the
// reference released when the last one returns.
func (t *Thumbnail) Unmount() {
	t.mu.Lock()
	if t.state == Unmounted {
		t.mu.Unlock()
		return
	}
	t.state = Unmounted
	t.timer.Stop()
	page := t.page
	t.frame = nil
	finalize := t.inflight == 0 && !t.released
	if finalize {
		t.released = true
	}
	t.mu.Unlock()

	if finalize {
		t.dispose(page)
	}
}

func (t *Thumbnail) dispose(page pdfdoc.Page) {
	if page != nil {
		if err := page.Close(); err != nil {
			t.logger.Warn("render: page close failed", slog.String("error", err.Error()))
		}
	}
	t.cache.Release(t.path)
	t.logger.Debug("render: thumbnail unmounted")
}
