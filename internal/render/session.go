// Package render owns the elements injected into a rendered note: thumbnail
// and page-count controllers, the per-render session that tears them down,
// and the registry that keeps sessions alive between HTTP requests.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
)

var (
	// ErrDirectiveNotFound is returned when a controller cannot locate its
	// directive text in the container it was given.
	ErrDirectiveNotFound = errors.New("render: directive text not found in container")
	// ErrSessionClosed is returned when a child is added to a closed session.
	ErrSessionClosed = errors.New("render: session closed")
)

// Child is an element whose lifetime is bound to a session.
type Child interface {
	// Mount attaches the element. On error the child has already released
	// everything it holds.
	Mount(ctx context.Context) error
	// Unmount detaches the element and releases its resources. It is
	// idempotent.
	Unmount()
}

// Notifier is told about every frame that becomes visible.
type Notifier func(sessionID, elementID string, f Frame)

// Session is the lifecycle context of one rendered fragment. Children added
// to it are unmounted, in reverse order, when it closes.
type Session struct {
	id       string
	notePath string
	created  time.Time
	notify   Notifier
	logger   *slog.Logger

	// tree serialises mutations of the rendered HTML tree.
	tree sync.Mutex

	mu        sync.Mutex
	children  []Child
	elements  map[string]*Thumbnail
	nextElem  int
	closed    bool
	lastTouch time.Time
}

// NewSession creates a standalone session. Registry.New creates registered
// ones.
func NewSession(id, notePath string, notify Notifier, logger *slog.Logger) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		notePath:  notePath,
		created:   now,
		notify:    notify,
		logger:    logger.With(slog.String("session", id)),
		elements:  make(map[string]*Thumbnail),
		lastTouch: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// NotePath returns the path of the note this session rendered.
func (s *Session) NotePath() string { return s.notePath }

// Mutate runs fn while holding the tree lock.
func (s *Session) Mutate(fn func()) {
	s.tree.Lock()
	defer s.tree.Unlock()
	fn()
}

// NextElementID allocates an element identifier unique within the session.
func (s *Session) NextElementID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextElem++
	return fmt.Sprintf("e%d", s.nextElem)
}

// AddChild registers c for teardown and mounts it. Closing the session
// while c mounts unmounts it. A child added to a closed session is
// unmounted and ErrSessionClosed is returned.
func (s *Session) AddChild(ctx context.Context, c Child) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Unmount()
		return ErrSessionClosed
	}
	s.children = append(s.children, c)
	s.mu.Unlock()

	if err := c.Mount(ctx); err != nil {
		s.remove(c)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if th, ok := c.(*Thumbnail); ok {
		s.elements[th.ElementID()] = th
	}
	return nil
}

func (s *Session) remove(c Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.children {
		if have == c {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Thumbnail returns a mounted thumbnail by element ID.
func (s *Session) Thumbnail(elementID string) (*Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.elements[elementID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrElementNotFound, elementID)
	}
	return th, nil
}

// Thumbnails returns the IDs of mounted thumbnails.
func (s *Session) Thumbnails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.elements))
	for id := range s.elements {
		ids = append(ids, id)
	}
	return ids
}

// Resize forwards a container size report to a thumbnail.
func (s *Session) Resize(elementID string, width, dpr float64) error {
	th, err := s.Thumbnail(elementID)
	if err != nil {
		return err
	}
	th.Resize(width, dpr)
	return nil
}

// Len returns the number of live children.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastTouch = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

// Close unmounts every child in reverse order of addition.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	children := s.children
	s.children = nil
	s.elements = make(map[string]*Thumbnail)
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Unmount()
	}
	s.logger.Debug("render: session closed", slog.Int("children", len(children)))
}

func (s *Session) frameReady(elementID string, f Frame) {
	if s.notify != nil {
		s.notify(s.id, elementID, f)
	}
}
