// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Cartooli/math-boredgames-sub001/internal/api"
	"github.com/Cartooli/math-boredgames-sub001/internal/catalogue"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/mcpserver"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
	"github.com/Cartooli/math-boredgames-sub001/internal/source"
	"github.com/Cartooli/math-boredgames-sub001/internal/sse"
)

// statsThrottle bounds how often stats.updated reaches SSE clients.
const statsThrottle = 2 * time.Second

// components is the wired object graph shared by every command.
type components struct {
	cfg     *Config
	logger  *slog.Logger
	store   kv.Store
	cache   *catalogue.Cache
	svc     *problemservice.Service
	fetcher catalogue.Fetcher
}

func (c *components) Close() error {
	return c.store.Close()
}

// hooks carries the callbacks that only the long-running server needs.
type hooks struct {
	onRebuild catalogue.RebuildFunc
	onEvent   problemservice.EventCallback
}

func setup(app *application, out io.Writer, h hooks) (*components, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}

	var fetcher catalogue.Fetcher
	if cfg.Source.URL != "" {
		remote, err := source.NewHTTP(cfg.Source.URL, cfg.Source.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("init source: %w", err)
		}
		fetcher = remote
	} else {
		fetcher = source.NewFile(cfg.Source.Path)
	}

	store, err := kv.Open(cfg.Store.Driver, cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	seeds := rotation.NewSeedSource(store, time.Now, logger)
	c := &components{cfg: cfg, logger: logger, store: store, fetcher: fetcher}
	c.cache = catalogue.New(store, seeds, fetcher, logger,
		catalogue.WithTTL(cfg.Catalogue.TTL),
		catalogue.WithOnRebuild(h.onRebuild),
	)
	c.svc = problemservice.NewService(c.cache, store, logger,
		problemservice.WithLocation(loc),
		problemservice.WithDefaultProfile(cfg.Profiles.Default),
		problemservice.WithEventCallback(h.onEvent),
	)
	return c, nil
}

// Today resolves the problem for the given day offset and writes it to w as
// JSON, merged with the profile's annotations.
func Today(ctx context.Context, w io.Writer, profile string, offset int, opts ...Option) error {
	app := newApplication(opts)
	c, err := setup(app, os.Stderr, hooks{})
	if err != nil {
		return err
	}
	defer c.Close()

	daily, err := c.svc.DailyProblem(ctx, profile, offset)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(daily)
}

// ServeMCP runs the MCP server over stdio. Logs go to stderr so they do not
// corrupt the protocol stream.
func ServeMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	c, err := setup(app, os.Stderr, hooks{})
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	// SSE broker.
	broker := sse.NewBroker(statsThrottle)
	defer broker.Close()

	c, err := setup(app, os.Stdout, hooks{
		onRebuild: func(env *models.Envelope) {
			broker.PublishCatalogueRebuilt(len(env.Records), env.SourceChecksum, env.BuiltAt)
		},
		onEvent: broker.PublishAnnotationEvent,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source", fmt.Sprint(c.fetcher)),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("time_zone", cfg.App.TimeZone),
		slog.Duration("catalogue_ttl", c.svc.CatalogueTTL()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Warm the catalogue so the first request does not pay for the fetch.
	if env, err := c.cache.GetOrBuild(ctx); err != nil {
		logger.Warn("initial catalogue build failed", slog.String("error", err.Error()))
	} else {
		logger.Info("catalogue ready",
			slog.Int("records", len(env.Records)),
			slog.Time("built_at", env.BuiltAt))
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.svc.Envelope(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"catalogue unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the broker ends open event streams so Shutdown can finish.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild the catalogue when the local source file changes.
	if f, ok := c.fetcher.(*source.File); ok && cfg.Source.Watch {
		g.Go(func() error {
			return source.Watch(gCtx, f.Path(), cfg.Source.Debounce, logger, func(string) {
				if _, err := c.svc.Refresh(gCtx); err != nil {
					logger.Warn("catalogue refresh failed", slog.String("error", err.Error()))
				}
			})
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
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
