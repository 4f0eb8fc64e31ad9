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

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lockchime/internal/api"
	"github.com/starford/lockchime/internal/catalog"
	"github.com/starford/lockchime/internal/downloader"
	"github.com/starford/lockchime/internal/index"
	"github.com/starford/lockchime/internal/library"
	"github.com/starford/lockchime/internal/mcpserver"
	"github.com/starford/lockchime/internal/soundservice"
	"github.com/starford/lockchime/internal/sse"
	"github.com/starford/lockchime/internal/storage"
)

// cacheSummaryThrottle bounds how often cache.updated is broadcast.
const cacheSummaryThrottle = time.Second

// App holds the components shared by every command.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Service *soundservice.Service
	Broker  *sse.Broker

	idx *index.DB
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(app *application) *slog.Logger {
	return slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
}

func newCatalogStore(cfg *Config, logger *slog.Logger) *catalog.Store {
	src := catalog.EmbeddedSource()
	if !cfg.Catalog.Embedded() {
		src = catalog.FileSource(cfg.Catalog.Path)
	}
	return catalog.NewStore(src, logger)
}

// OpenCatalog returns the configured catalog without touching the cache.
func OpenCatalog(opts ...Option) (*catalog.Store, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return newCatalogStore(app.config, newLogger(app)), nil
}

// Open wires storage, index, catalog and downloader. The cache directory is
// reconciled with the index before any download can start.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	logger := newLogger(app)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_dir", cfg.Cache.Dir),
		slog.String("sqlite_path", cfg.Cache.SQLitePath),
		slog.String("catalog", catalogName(cfg)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	audio, err := storage.NewFS(cfg.Cache.AudioDir())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.Cache.SQLitePath, audio)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	report, err := index.Reconcile(ctx, db, logger)
	if err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	} else if len(report.Pruned)+len(report.RemovedFiles) > 0 {
		logger.Info("cache reconciled",
			slog.Int("pruned", len(report.Pruned)),
			slog.Int("removed_files", len(report.RemovedFiles)))
	}
	if size, err := db.TotalSize(ctx); err == nil {
		logger.Info("cache ready", slog.String("size", humanize.IBytes(uint64(size))))
	}

	broker := sse.NewBroker(cacheSummaryThrottle)

	store := newCatalogStore(cfg, logger)
	if _, err := store.Load(ctx); err != nil {
		logger.Warn("catalog unavailable, serving bundled sounds only", slog.String("error", err.Error()))
	}

	mgr := downloader.NewManager(db, audio,
		downloader.WithLogger(logger),
		downloader.WithTimeout(cfg.Download.Timeout),
		downloader.WithConcurrency(cfg.Download.Concurrency),
		downloader.WithRateLimit(cfg.Download.RequestsPerSecond),
		downloader.WithUserAgent(cfg.Download.UserAgent),
		downloader.WithEventHandler(func(ev downloader.Event) {
			broker.PublishCacheEvent(ev.Type, ev)
		}),
	)
	view := library.NewView(store, mgr, library.Bundled())

	return &App{
		Config:  cfg,
		Logger:  logger,
		Service: soundservice.NewService(store, view, mgr, db),
		Broker:  broker,
		idx:     db,
	}, nil
}

// Close cancels in-flight downloads, stops the broker and closes the index.
func (a *App) Close() error {
	a.Service.CancelAllDownloads()
	a.Broker.Close()
	return a.idx.Close()
}

// Watch runs the cache directory watcher until ctx is done. Externally
// deleted files are pruned from the index and announced over SSE.
func (a *App) Watch(ctx context.Context) error {
	return index.Watch(ctx, a.idx, a.Logger, func(kind, soundID string) {
		a.Broker.PublishCacheEvent("cache."+kind, map[string]string{"soundId": soundID})
	})
}

func catalogName(cfg *Config) string {
	if cfg.Catalog.Embedded() {
		return "embedded"
	}
	return cfg.Catalog.Path
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	a, err := Open(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.Cache.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := a.Watch(watchCtx); err != nil {
				a.Logger.Warn("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	return mcpserver.New(a.Service).ServeStdio()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	a, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	apiRouter := api.NewRouter(a.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, a.Broker)

	// Build chi router.
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
		if err := a.Service.Catalog().Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded","reason":"catalog unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api (SSE at /api/events).
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Cache.Watch {
		g.Go(func() error {
			if err := a.Watch(gCtx); err != nil {
				logger.Warn("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

// errShutdown ends the run group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
