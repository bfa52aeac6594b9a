// Package noteservice reads notes from the vault and renders them through
// the PDF directive pipeline.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/markdown"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/postprocess"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Checksum    string            `json:"checksum"`
	Tags        []string          `json:"tags"`
	Frontmatter map[string]any    `json:"frontmatter,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Backlinks   []string          `json:"backlinks"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RenderedNote is a note rendered to HTML with its directives processed.
// Session identifies the render session that owns the injected thumbnails.
type RenderedNote struct {
	Path       string             `json:"path"`
	Title      string             `json:"title"`
	HTML       string             `json:"html"`
	Session    string             `json:"session"`
	Thumbnails []string           `json:"thumbnails"`
	Stats      postprocess.Result `json:"stats"`
}

// Service coordinates storage, index and render operations.
type Service struct {
	store    storage.Provider
	db       *index.DB
	sessions *render.Registry
	pipeline *postprocess.Orchestrator
	logger   *slog.Logger
}

// NewService creates a new note service. sessions and pipeline may be nil
// for a read-only service; RenderNote then fails.
func NewService(store storage.Provider, db *index.DB, sessions *render.Registry, pipeline *postprocess.Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, sessions: sessions, pipeline: pipeline, logger: logger}
}

// Sessions returns the render session registry.
func (s *Service) Sessions() *render.Registry { return s.sessions }

// GetNote reads a note from storage, parses it, and enriches with backlinks
// and indexed fields.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	fields, err := s.db.Fields(ctx, path)
	if err != nil {
		return nil, err
	}
	updated := time.Now()
	if meta, err := s.store.Stat(path); err == nil {
		updated = meta.UpdatedAt
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Fields:      fields,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   updated,
	}, nil
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Backlinks returns all note paths that link to the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(target)
}

// ReadFile returns the raw bytes of any vault file.
func (s *Service) ReadFile(_ context.Context, path string) ([]byte, error) {
	return s.read(path)
}

// RenderNote renders the note at path to HTML and runs the directive
// pipeline over it in a new render session. When replace names an earlier
// session of the same client, that session is closed once the new one is
// populated, so documents shared by both are never decoded twice.
func (s *Service) RenderNote(ctx context.Context, path, replace string) (*RenderedNote, error) {
	if s.sessions == nil || s.pipeline == nil {
		return nil, errors.New("noteservice: rendering not configured")
	}
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	root, err := markdown.Render(res.Body)
	if err != nil {
		return nil, err
	}

	sess := s.sessions.New(path)
	stats := s.pipeline.Process(ctx, root, postprocess.Context{
		SourcePath:  path,
		Frontmatter: res.Frontmatter,
		Session:     sess,
	})

	var out string
	sess.Mutate(func() {
		out, err = markdown.Serialize(root)
	})
	if err != nil {
		_ = s.sessions.Close(sess.ID())
		return nil, err
	}
	if replace != sess.ID() {
		s.sessions.Replace(replace)
	}

	s.logger.Debug("noteservice: rendered",
		slog.String("path", path),
		slog.String("session", sess.ID()),
		slog.Int("thumbnails", stats.Thumbnails),
		slog.Int("page_counts", stats.PageCounts),
		slog.Int("unresolved", stats.Unresolved),
		slog.Int("failed", stats.Failed))

	return &RenderedNote{
		Path:       path,
		Title:      res.Title,
		HTML:       out,
		Session:    sess.ID(),
		Thumbnails: nonNilSlice(sess.Thumbnails()),
		Stats:      stats,
	}, nil
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
