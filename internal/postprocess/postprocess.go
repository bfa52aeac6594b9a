// Package postprocess runs over a rendered note fragment, finds PDF
// directives and mounts a render controller for each one it can resolve.
package postprocess

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/directive"
	"github.com/starford/folio/internal/doccache"
	"github.com/starford/folio/internal/dom"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/resolver"
)

// candidates are the elements whose text may hold a directive.
var candidates = []atom.Atom{atom.P, atom.Th, atom.Td, atom.Span}

// Resolver turns a directive reference into a canonical vault path.
type Resolver interface {
	Resolve(ctx context.Context, raw, notePath string, frontmatter map[string]any) (string, error)
}

// DocumentCache hands out shared decoded documents. *doccache.Cache
// satisfies it.
type DocumentCache interface {
	Acquire(path string) *doccache.Future
	Release(path string)
}

// Context describes the fragment being processed.
type Context struct {
	SourcePath  string
	Frontmatter map[string]any
	Session     *render.Session
}

// Options tune processing.
type Options struct {
	Thumbnail render.Options
	// MaxParallel bounds how many nodes are processed at once; <= 0 means 8.
	MaxParallel int
}

// Result counts what happened to the directives found.
type Result struct {
	Thumbnails int `json:"thumbnails"`
	PageCounts int `json:"page_counts"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// Orchestrator is the post-processing hook.
type Orchestrator struct {
	resolver Resolver
	cache    DocumentCache
	opts     Options
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(r Resolver, cache DocumentCache, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	return &Orchestrator{resolver: r, cache: cache, opts: opts, logger: logger}
}

type job struct {
	el  *html.Node
	dir directive.Directive
	ref string
}

// Process handles every candidate element under root and returns once all
// of them are done. Nodes are independent: a failure on one is logged and
// never stops the others.
func (o *Orchestrator) Process(ctx context.Context, root *html.Node, pc Context) Result {
	jobs := o.collect(root)

	var (
		mu     sync.Mutex
		res    Result
		leases []string
	)
	// Page counts keep their lease until every node is done so a thumbnail
	// of the same document never waits on a second decode.
	hold := func(path string) {
		mu.Lock()
		leases = append(leases, path)
		mu.Unlock()
	}
	var g errgroup.Group
	g.SetLimit(o.opts.MaxParallel)
	for _, j := range jobs {
		g.Go(func() error {
			err := o.processNode(ctx, j, pc, hold)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && j.dir.Kind == directive.Thumbnail:
				res.Thumbnails++
			case err == nil:
				res.PageCounts++
			case errors.Is(err, resolver.ErrUnresolved):
				res.Unresolved++
				o.logger.Debug("postprocess: unresolved reference",
					slog.String("note", pc.SourcePath),
					slog.String("reference", j.ref))
			default:
				res.Failed++
				o.logger.Warn("postprocess: directive failed",
					slog.String("note", pc.SourcePath),
					slog.String("directive", j.dir.Raw),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
	for _, path := range leases {
		o.cache.Release(path)
	}
	return res
}

// collect parses every candidate up front, before any controller mutates
// the tree. An element is skipped when a nested candidate holds the same
// directive, so the innermost element handles it.
func (o *Orchestrator) collect(root *html.Node) []job {
	var found []job
	for _, el := range dom.Elements(root, candidates...) {
		d, ok := directive.Parse(dom.TextContent(el))
		if !ok {
			continue
		}
		ref := d.Reference
		if href, ok := dom.AnchorTarget(el, d.Reference); ok {
			if unescaped, err := url.PathUnescape(href); err == nil {
				href = unescaped
			}
			ref = href
		}
		found = append(found, job{el: el, dir: d, ref: ref})
	}

	jobs := found[:0:0]
	for i, j := range found {
		shadowed := false
		for k, other := range found {
			if k != i && other.el != j.el && dom.Contains(j.el, other.el) && other.dir.Raw == j.dir.Raw {
				shadowed = true
				break
			}
		}
		if !shadowed {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (o *Orchestrator) processNode(ctx context.Context, j job, pc Context, hold func(path string)) error {
	path, err := o.resolver.Resolve(ctx, j.ref, pc.SourcePath, pc.Frontmatter)
	if err != nil {
		return err
	}

	switch j.dir.Kind {
	case directive.PageCount:
		fut := o.cache.Acquire(path)
		hold(path)
		doc, err := fut.Wait(ctx)
		if err != nil {
			return err
		}
		count := doc.PageCount()
		return pc.Session.AddChild(ctx, render.NewPageCount(pc.Session, j.el, j.dir.Raw, count))

	case directive.Thumbnail:
		th := render.NewThumbnail(pc.Session, j.el, j.dir, path, o.cache.Acquire(path), o.cache, o.opts.Thumbnail)
		return pc.Session.AddChild(ctx, th)
	}
	return nil
}
