// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/doccache"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/noteservice"
	"github.com/starford/folio/internal/pdfdoc"
	"github.com/starford/folio/internal/postprocess"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
)

// components is the object graph shared by every entry point.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	ready    *index.Ready
	cache    *doccache.Cache
	resolver *resolver.Resolver
	sessions *render.Registry
	svc      *noteservice.Service
}

// close releases the render sessions first so that every document
// reference is returned before the cache shuts down.
func (c *components) close() {
	c.sessions.CloseAll()
	c.cache.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

// syncIndex runs the initial vault sync and fires the readiness signal even
// when the sync fails, so lookups fall back to whatever is indexed.
func (c *components) syncIndex() {
	start := time.Now()
	if err := index.Sync(c.db, c.store, c.logger); err != nil {
		c.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	c.ready.MarkReady()
	c.logger.Info("index ready", slog.Duration("took", time.Since(start)))
}

func setup(opts []Option, notify render.Notifier) (*components, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("render_backend", cfg.Render.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	decoder := app.decoder
	if decoder == nil {
		if decoder, err = pdfdoc.NewDecoder(cfg.Render.Backend); err != nil {
			return nil, fmt.Errorf("init pdf decoder: %w", err)
		}
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	ready := index.NewReady()
	cache := doccache.New(store, decoder, logger)
	res := resolver.New(db, db, ready)
	sessions := render.NewRegistry(cfg.Render.SessionTTL, notify, logger)
	pipeline := postprocess.New(res, cache, postprocess.Options{
		MaxParallel: cfg.Render.MaxParallel,
		Thumbnail: render.Options{
			Debounce:         cfg.Render.Debounce,
			DevicePixelRatio: cfg.Render.DevicePixelRatio,
			Renders:          semaphore.NewWeighted(int64(cfg.Render.MaxRenders)),
		},
	}, logger)

	return &components{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		db:       db,
		ready:    ready,
		cache:    cache,
		resolver: res,
		sessions: sessions,
		svc:      noteservice.NewService(store, db, sessions, pipeline, logger),
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := setup(opts, func(sessionID, elementID string, f render.Frame) {
		broker.PublishThumbnail(sse.ThumbnailUpdate{
			Session: sessionID,
			Element: elementID,
			Version: f.Version,
			Width:   f.Width,
			Height:  f.Height,
		})
	})
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		select {
		case <-c.ready.Done():
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"indexing"}`))
		}
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial sync runs alongside the server; resolvers wait for readiness.
	g.Go(func() error {
		c.syncIndex()
		return nil
	})

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := index.Watch(gCtx, c.db, c.store, cfg.Vault.Path, logger, broker.PublishVaultEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Expire idle render sessions.
	g.Go(func() error {
		return c.sessions.Run(gCtx, cfg.Render.SweepInterval)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher and sweeper stop
// once the HTTP server has shut down.
var errShutdown = errors.New("shutdown")

// RenderNote indexes the vault, renders one note and writes its HTML to w.
// Thumbnails stay placeholders since nothing reports a container size.
func RenderNote(ctx context.Context, notePath string, w io.Writer, opts ...Option) error {
	c, err := setup(opts, nil)
	if err != nil {
		return err
	}
	defer c.close()

	html, err := c.renderOnce(ctx, notePath)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, html)
	return err
}

// ExportNote renders one note and atomically writes the HTML into the vault
// at outPath.
func ExportNote(ctx context.Context, notePath, outPath string, opts ...Option) error {
	c, err := setup(opts, nil)
	if err != nil {
		return err
	}
	defer c.close()

	html, err := c.renderOnce(ctx, notePath)
	if err != nil {
		return err
	}
	if err := c.store.Write(outPath, []byte(html)); err != nil {
		return fmt.Errorf("export %s: %w", notePath, err)
	}
	c.logger.Info("note exported", slog.String("path", notePath), slog.String("out", outPath))
	return nil
}

func (c *components) renderOnce(ctx context.Context, notePath string) (string, error) {
	c.syncIndex()
	out, err := c.svc.RenderNote(ctx, notePath, "")
	if err != nil {
		return "", fmt.Errorf("render %s: %w", notePath, err)
	}
	_ = c.sessions.Close(out.Session)

	c.logger.Info("note rendered",
		slog.String("path", out.Path),
		slog.Int("thumbnails", out.Stats.Thumbnails),
		slog.Int("page_counts", out.Stats.PageCounts),
		slog.Int("unresolved", out.Stats.Unresolved),
		slog.Int("failed", out.Stats.Failed))
	return out.HTML, nil
}

// ServeMCP serves the MCP tools on stdin/stdout while the watcher keeps the
// index current. Logs must not go to stdout here; pass WithLogOutput.
func ServeMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(opts, nil)
	if err != nil {
		return err
	}
	defer c.close()

	c.syncIndex()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := index.Watch(ctx, c.db, c.store, c.cfg.Vault.Path, c.logger, nil); err != nil {
			c.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	srv := mcpserver.New(c.svc, c.store, c.resolver, c.cache)
	return srv.ServeStdio()
}
