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
	"golang.org/x/sync/errgroup"

	"github.com/starford/dastan/internal/api"
	"github.com/starford/dastan/internal/fixtures"
	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/mcpserver"
	"github.com/starford/dastan/internal/prompt"
	"github.com/starford/dastan/internal/reader"
	"github.com/starford/dastan/internal/session"
	"github.com/starford/dastan/internal/settings"
	"github.com/starford/dastan/internal/sse"
)

// services are the components shared by every entry point.
type services struct {
	settings *settings.Store
	fixtures *fixtures.Store
	reader   *reader.Service
}

func (s *services) Close() error {
	return s.settings.Close()
}

func (app *application) setup() (*Config, *slog.Logger, error) {
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (app *application) buildServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*services, error) {
	store, err := settings.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	fx, err := fixtures.New(cfg.Fixtures.Dir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init fixtures: %w", err)
	}

	clientCfg := cfg.Provider.Client(app.getenv)
	if clientCfg.APIKey == "" && cfg.Tools.AnyLive() {
		logger.Warn("provider key is not set; live tools will fail",
			slog.String("api_key_env", cfg.Provider.APIKeyEnv))
	}
	client := llm.NewClient(clientCfg, llm.WithLogger(logger))

	svc := reader.NewService(client, fx, store, cfg.Tools.Reader(), logger)
	return &services{settings: store, fixtures: fx, reader: svc}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("provider_endpoint", cfg.Provider.Endpoint),
		slog.String("fixtures_dir", cfg.Fixtures.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svcs, err := app.buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	for _, tool := range svcs.reader.Tools() {
		logger.Info("tool configured",
			slog.String("tool", string(tool.Task)),
			slog.String("mode", string(tool.Mode)),
			slog.String("model", tool.Model))
	}

	// SSE broker.
	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(api.Deps{
		Reader:      svcs.reader,
		Settings:    svcs.settings,
		Tracker:     session.NewTracker(),
		Broker:      broker,
		Ready:       svcs.settings.Ping,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		AuthToken:   cfg.Auth.Token,
		Logger:      logger,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload fixture overrides and tell clients about it.
	if svcs.fixtures.Dir() != "" && cfg.Fixtures.Watch {
		g.Go(func() error {
			logger.Info("watching fixture overrides", slog.String("dir", svcs.fixtures.Dir()))
			err := svcs.fixtures.Watch(gCtx, func(changed []prompt.Task) {
				broker.Publish(sse.Event{Type: sse.TypeFixturesReloaded, Data: map[string]any{"tools": changed}})
			})
			if err != nil {
				logger.Warn("fixture watcher stopped", slog.String("error", err.Error()))
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the reading tools over MCP on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	svcs, err := app.buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	if err := mcpserver.New(svcs.reader, svcs.settings, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RunLookup performs a single word lookup and writes the WordInfo JSON to out.
func RunLookup(ctx context.Context, in reader.LookupInput, out io.Writer, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	svcs, err := app.buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	raw, err := svcs.reader.Lookup(ctx, in)
	if err != nil {
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			logger.Error("provider call failed", slog.Int("status", pe.Status), slog.String("detail", pe.Detail()))
		}
		return fmt.Errorf("lookup: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(raw)
}
