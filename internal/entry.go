// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/sidenote/internal/api"
	"github.com/starford/sidenote/internal/editor"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/mcpserver"
	"github.com/starford/sidenote/internal/recent"
	"github.com/starford/sidenote/internal/sse"
	"github.com/starford/sidenote/internal/storage"
	"github.com/starford/sidenote/internal/watch"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.workspace != "" {
		app.config.Workspace.Root = app.workspace
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// resources are the workspace store and its index, shared by every command.
type resources struct {
	store  *storage.FS
	db     *index.DB
	recent *recent.Tracker
}

func (a *application) openResources(ctx context.Context, logger *slog.Logger, sync bool) (*resources, error) {
	cfg := a.config

	store, err := storage.NewFS(cfg.Workspace.Root, cfg.Workspace.Extensions)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if sync {
		if err := index.Sync(ctx, db, store, logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}

	return &resources{
		store: store,
		db:    db,
		recent: recent.New(db,
			recent.WithMax(cfg.Recent.Max),
			recent.WithLogger(logger)),
	}, nil
}

func (r *resources) Close() error {
	return r.db.Close()
}

// Run starts the editing server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace", cfg.Workspace.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Duration("autosave_delay", cfg.Editor.AutosaveDelay),
		slog.String("log_level", cfg.App.LogLevel.String()))

	res, err := app.openResources(ctx, logger, true)
	if err != nil {
		return err
	}
	defer res.Close()

	if _, err := res.recent.Add(res.store.Root(), ""); err != nil {
		logger.Warn("record recent workspace failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sess := editor.New(res.store,
		editor.WithIndex(res.db),
		editor.WithRecent(res.recent),
		editor.WithPublisher(broker),
		editor.WithLogger(logger),
		editor.WithAutosaveDelay(cfg.Editor.AutosaveDelay),
		editor.WithDefaultMode(cfg.Editor.Mode()))

	apiRouter := api.NewRouter(sess, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watcher := watch.New(res.store.Root(),
		watch.WithDebounce(cfg.Editor.WatchDebounce),
		watch.WithLogger(logger),
		watch.WithFilter(res.store.IsDocument))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Autosave scheduler; performs a final save on shutdown.
	g.Go(func() error {
		return sess.Run(gCtx)
	})

	// File watcher feeds the index, SSE clients and the open document.
	g.Go(func() error {
		return watcher.Run(gCtx, func(kind watch.Kind, path string) {
			sess.HandleFileEvent(gCtx, kind, path)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut the server down once a signal arrives or a component fails.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// RunMCP serves the MCP tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	res, err := app.openResources(ctx, logger, true)
	if err != nil {
		return err
	}
	defer res.Close()

	logger.Info("MCP server starting", slog.String("workspace", res.store.Root()))
	return mcpserver.New(res.store, res.db, logger).ServeStdio()
}
