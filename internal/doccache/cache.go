// Package doccache maps vault paths to decoded PDF documents shared by every
// render controller that displays them. Each path has at most one entry and
// at most one decode in flight; entries are reference counted and disposed
// when the last holder releases them.
package doccache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/folio/internal/pdfdoc"
)

// ErrClosed is returned by futures acquired after Close.
var ErrClosed = errors.New("doccache: closed")

// Reader reads whole files by vault path. storage.Provider satisfies it.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Future is the shared result of one decode.
type Future struct {
	done chan struct{}
	doc  pdfdoc.Document
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns an already settled future, for cache implementations that
// do not decode themselves.
func Resolved(doc pdfdoc.Document, err error) *Future {
	f := newFuture()
	f.settle(doc, err)
	return f
}

func (f *Future) settle(doc pdfdoc.Document, err error) {
	f.doc, f.err = doc, err
	close(f.done)
}

// Done is closed once the decode has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the decode settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (pdfdoc.Document, error) {
	select {
	case <-f.done:
		return f.doc, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type entry struct {
	fut  *Future
	refs int
}

// Cache is the process-wide decoded document cache. Create one per service
// and Close it at shutdown.
type Cache struct {
	store   Reader
	decoder pdfdoc.Decoder
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	// disposals tracks goroutines waiting to close a pending decode.
	disposals sync.WaitGroup
}

// New creates an empty cache.
func New(store Reader, decoder pdfdoc.Decoder, logger *slog.Logger) *Cache {
	return &Cache{
		store:   store,
		decoder: decoder,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Acquire takes a reference on path and returns its decode future. The first
// acquisition starts the read and decode; later ones share the same future,
// settled or not. Every Acquire must be matched by exactly one Release.
func (c *Cache) Acquire(path string) *Future {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Resolved(nil, ErrClosed)
	}
	if e, ok := c.entries[path]; ok {
		e.refs++
		return e.fut
	}

	fut := newFuture()
	c.entries[path] = &entry{fut: fut, refs: 1}
	go c.load(path, fut)
	return fut
}

func (c *Cache) load(path string, fut *Future) {
	data, err := c.store.Read(path)
	if err != nil {
		fut.settle(nil, fmt.Errorf("doccache: read %s: %w", path, err))
		return
	}
	doc, err := c.decoder.Decode(data)
	if err != nil {
		c.logger.Warn("doccache: decode failed", slog.String("path", path), slog.String("error", err.Error()))
		fut.settle(nil, fmt.Errorf("doccache: decode %s: %w", path, err))
		return
	}
	c.logger.Debug("doccache: decoded", slog.String("path", path), slog.Int("pages", doc.PageCount()))
	fut.settle(doc, nil)
}

// Release drops one reference on path. When the count reaches zero the entry
// is removed and the document is closed, immediately if the decode has
// settled or as soon as it does. Releasing an unknown path is a no-op.
func (c *Cache) Release(path string) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.entries, path)
	c.disposeLocked(path, e.fut)
	c.mu.Unlock()
}

// disposeLocked closes fut's document once settled. Must hold c.mu so that
// the disposal is registered before Close waits on it.
func (c *Cache) disposeLocked(path string, fut *Future) {
	if fut.settled() {
		c.closeDoc(path, fut)
		return
	}
	c.disposals.Add(1)
	go func() {
		defer c.disposals.Done()
		<-fut.done
		c.closeDoc(path, fut)
	}()
}

func (c *Cache) closeDoc(path string, fut *Future) {
	if fut.err != nil || fut.doc == nil {
		return
	}
	if err := fut.doc.Close(); err != nil {
		c.logger.Warn("doccache: close failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	c.logger.Debug("doccache: disposed", slog.String("path", path))
}

// Refs returns the current reference count for path, 0 if absent.
func (c *Cache) Refs(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close disposes every entry regardless of its count and waits for pending
// decodes to settle. Later Acquire calls fail with ErrClosed and Release
// calls are no-ops.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.disposals.Wait()
		return
	}
	c.closed = true
	for path, e := range c.entries {
		delete(c.entries, path)
		c.disposeLocked(path, e.fut)
	}
	c.mu.Unlock()
	c.disposals.Wait()
}
