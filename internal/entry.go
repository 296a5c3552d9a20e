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

	"github.com/starford/itinera/internal/api"
	"github.com/starford/itinera/internal/imagecache"
	"github.com/starford/itinera/internal/jobs"
	"github.com/starford/itinera/internal/mcpserver"
	"github.com/starford/itinera/internal/optimizer"
	"github.com/starford/itinera/internal/planner"
	"github.com/starford/itinera/internal/snapshot"
	"github.com/starford/itinera/internal/spotstore"
	"github.com/starford/itinera/internal/sse"
)

// services are the long-lived components shared by the HTTP and MCP modes.
type services struct {
	db      *spotstore.DB
	snaps   *snapshot.FS
	writer  *snapshot.Writer
	broker  *sse.Broker
	cache   *imagecache.Cache
	images  *imagecache.Client
	planner *planner.Service
}

func (s *services) close() {
	s.planner.Wait()
	s.writer.Close()
	s.broker.Close()
	_ = s.db.Close()
}

func (app *application) init() (*slog.Logger, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger. MCP mode owns stdout, so it logs to stderr.
	out := os.Stdout
	if app.stdio {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("snapshots_path", cfg.Snapshots.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("optimizer_url", cfg.Optimizer.URL),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return logger, nil
}

func (app *application) build(logger *slog.Logger) (*services, error) {
	cfg := app.config

	snaps, err := snapshot.NewFS(cfg.Snapshots.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init snapshots: %w", err)
	}

	db, err := spotstore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init spot store: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)
	writer := snapshot.NewWriter(snaps, logger)

	var opt planner.Optimizer
	if cfg.Optimizer.URL != "" {
		opt = optimizer.New(optimizer.Config{
			BaseURL:       cfg.Optimizer.URL,
			Timeout:       cfg.Optimizer.Timeout,
			RatePerMinute: cfg.Optimizer.RatePerMinute,
		}, logger)
	}

	start, end := cfg.Schedule.Window()
	svc := planner.NewService(planner.Deps{
		Repo:      db,
		Snapshots: snaps,
		Saver:     writer,
		Optimizer: opt,
		Publisher: broker,
		Logger:    logger,
	}, planner.Config{DefaultStart: start, DefaultEnd: end})

	cache := imagecache.NewCache(cfg.Images.TTL)
	return &services{
		db:      db,
		snaps:   snaps,
		writer:  writer,
		broker:  broker,
		cache:   cache,
		images:  imagecache.NewClient(cfg.Images.URL, cache, logger),
		planner: svc,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	logger, err := app.init()
	if err != nil {
		return err
	}
	cfg := app.config

	svcs, err := app.build(logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	scheduler, err := jobs.New(ctx, logger,
		jobs.Job{Name: "pool_refresh", Spec: cfg.Jobs.PoolRefresh, Run: svcs.planner.RefreshAll},
		jobs.Job{Name: "cache_evict", Spec: cfg.Jobs.CacheEvict, Run: func(context.Context) {
			if n := svcs.cache.Evict(); n > 0 {
				logger.Debug("image cache evicted", slog.Int("entries", n))
			}
		}},
	)
	if err != nil {
		return err
	}

	apiRouter := api.NewRouter(svcs.planner, svcs.images, cfg.Auth.AuthEnabled(), cfg.Auth.Token, svcs.broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svcs.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload open days when their snapshot is edited on disk.
	g.Go(func() error {
		err := snapshot.Watch(gCtx, svcs.snaps, logger, func(room string, day int) {
			svcs.planner.ReloadDay(gCtx, room, day)
		})
		if err != nil {
			logger.Warn("snapshot watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Periodic jobs.
	g.Go(func() error {
		scheduler.Run(gCtx)
		return nil
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

// errShutdown cancels the group's context so the watcher and scheduler
// stop along with the HTTP server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{stdio: true}

	for _, opt := range opts {
		opt(app)
	}

	logger, err := app.init()
	if err != nil {
		return err
	}

	svcs, err := app.build(logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svcs.planner).ServeStdio()
}
