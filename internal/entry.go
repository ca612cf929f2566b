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

	"github.com/starford/annotree/internal/api"
	"github.com/starford/annotree/internal/mcpserver"
	"github.com/starford/annotree/internal/model"
	"github.com/starford/annotree/internal/session"
	"github.com/starford/annotree/internal/sse"
	"github.com/starford/annotree/internal/storage"
	"github.com/starford/annotree/internal/watch"
)

func (a *application) init(defaultOutput io.Writer) (*Config, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if a.logOutput == nil {
		a.logOutput = defaultOutput
	}
	return a.config, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// openSession loads the configured project. pub may be nil.
func openSession(cfg *Config, logger *slog.Logger, pub session.Publisher) (storage.Provider, *session.Session, error) {
	store, err := storage.NewFS(cfg.Project.BaseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	opts := []session.Option{session.WithLogger(logger)}
	if pub != nil {
		opts = append(opts, session.WithPublisher(pub))
	}
	if cfg.View.Enabled {
		opts = append(opts, session.WithView(model.NewDisplaySort(
			cfg.View.SortColumn, cfg.View.Descending, cfg.View.Filter, cfg.View.Tag())))
	}

	sess, err := session.Open(store, cfg.Project.File, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open project: %w", err)
	}
	return store, sess, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, err := app.init(os.Stdout)
	if err != nil {
		return err
	}

	// Initialize structured JSON logger.
	logger := newLogger(app.logOutput, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("base_dir", cfg.Project.BaseDir),
		slog.String("project_file", cfg.Project.File),
		slog.Bool("view", cfg.View.Enabled),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	store, sess, err := openSession(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer sess.Close()

	apiRouter := api.NewRouter(sess, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; /api/events is served by the broker.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)
	defer stopWatch()

	// Start project file watcher.
	if cfg.Watch.Enabled {
		g.Go(func() error {
			err := watch.Watch(watchCtx, store, cfg.Project.File, cfg.Watch.Debounce, logger, func() {
				if _, err := sess.Sync(watchCtx); err != nil {
					logger.Warn("project sync failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Warn("watcher unavailable", slog.String("error", err.Error()))
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stopWatch()

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

// RunMCP serves the project over MCP on stdin/stdout until the client
// disconnects. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, err := app.init(os.Stderr)
	if err != nil {
		return err
	}

	logger := newLogger(app.logOutput, cfg.App.LogLevel)

	_, sess, err := openSession(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	logger.Info("MCP server starting", slog.String("project_file", cfg.Project.File))
	return mcpserver.New(sess).ServeStdio()
}
