// Package internal provides the main application initialization and
// runtime logic.
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

	"github.com/thefounder-seb/btmg/internal/api"
	"github.com/thefounder-seb/btmg/internal/docs"
	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	"github.com/thefounder-seb/btmg/internal/scanner"
	"github.com/thefounder-seb/btmg/internal/schema"
	"github.com/thefounder-seb/btmg/internal/sse"
)

// System bundles the wired subsystems for one configuration.
type System struct {
	Registry *schema.Registry
	Store    *graph.Store
	Service  *memory.Service
	Engine   *reconcile.Engine
	Scanner  *scanner.Scanner
	Broker   *sse.Broker
}

// Close releases the store and broker.
func (s *System) Close() {
	if s.Broker != nil {
		s.Broker.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// Build compiles the schema, opens the store, and wires the service,
// reconciliation engine and scanner per the configuration. withEvents
// controls whether an SSE broker is attached.
func Build(cfg *Config, logger *slog.Logger, withEvents bool) (*System, error) {
	def, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	registry, err := schema.Compile(def)
	if err != nil {
		return nil, err
	}

	store, err := graph.Open(cfg.Storage.Path, registry.ConstraintStatements())
	if err != nil {
		return nil, err
	}

	sys := &System{Registry: registry, Store: store}
	if withEvents {
		sys.Broker = sse.NewBroker(2 * time.Second)
	}

	var events memory.EventPublisher
	if sys.Broker != nil {
		events = sys.Broker
	}
	sys.Service = memory.NewService(registry, store, events)

	if cfg.Docs.Enabled() {
		renderer := docs.NewRenderer(cfg.Docs.OutputDir, cfg.Docs.Framework, cfg.Docs.PathTemplate)
		sys.Engine = reconcile.NewEngine(sys.Service, renderer, logger)
	}

	scn, err := scanner.New(sys.Service, cfg.Scan.Options(), logger)
	if err != nil {
		sys.Close()
		return nil, err
	}
	sys.Scanner = scn

	return sys, nil
}

// Run starts the HTTP server (and doc watcher) with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("schema_path", cfg.Schema.Path),
		slog.String("docs_dir", cfg.Docs.OutputDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	sys, err := Build(cfg, logger, true)
	if err != nil {
		return err
	}
	defer sys.Close()

	// Build API handler and router.
	h := api.NewHandler(sys.Service, sys.Engine, sys.Scanner, cfg.Sync.Strategy())
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sys.Broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the docs tree for edits when the projection is enabled.
	if sys.Engine != nil && cfg.Docs.Watch {
		g.Go(func() error {
			return sys.Engine.Watch(gCtx, cfg.Sync.Strategy(), "watcher")
		})
	}

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
