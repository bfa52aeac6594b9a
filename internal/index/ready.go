package index

import (
	"context"
	"sync"
)

// Ready is a one-shot signal fired once the initial vault sync has finished.
// Field lookups issued before that point would see a partial index.
type Ready struct {
	once sync.Once
	ch   chan struct{}
}

// NewReady returns an unfired signal.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

// MarkReady fires the signal. Calling it more than once is harmless.
func (r *Ready) MarkReady() {
	r.once.Do(func() { close(r.ch) })
}

// Done returns a channel closed once the index is ready.
func (r *Ready) Done() <-chan struct{} {
	return r.ch
}

// Wait blocks until the index is ready or ctx is done.
func (r *Ready) Wait(ctx context.Context) error {
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
