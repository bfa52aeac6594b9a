package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/apperr"
)

// Registry keeps render sessions alive between requests. Sessions that are
// not touched for the idle TTL are closed by Sweep.
type Registry struct {
	ttl    time.Duration
	notify Notifier
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. notify may be nil.
func NewRegistry(ttl time.Duration, notify Notifier, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		ttl:      ttl,
		notify:   notify,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// New creates and registers a session for notePath.
func (r *Registry) New(notePath string) *Session {
	s := NewSession(uuid.NewString(), notePath, r.notify, r.logger)
	s.touch(r.now())
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSessionNotFound, id)
	}
	s.touch(r.now())
	return s, nil
}

// Close unregisters and closes a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrSessionNotFound, id)
	}
	s.Close()
	return nil
}

// Replace closes the session being superseded by a re-render. Unknown IDs
// are ignored since the old session may already have expired.
func (r *Registry) Replace(oldID string) {
	if oldID == "" {
		return
	}
	if err := r.Close(oldID); err == nil {
		r.logger.Debug("render: session replaced", slog.String("session", oldID))
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes every session idle for longer than the TTL and returns how
// many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("render: expired sessions closed", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// Run sweeps every interval until ctx is cancelled, then closes all
// sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
