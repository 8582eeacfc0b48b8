// Package internal wires configuration, repository and note service
// together and runs the serving surfaces.
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/gitnotes/internal/api"
	"github.com/starford/gitnotes/internal/command"
	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/mcpserver"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/snippet"
	"github.com/starford/gitnotes/internal/sse"
	"github.com/starford/gitnotes/internal/vcs"
	"github.com/starford/gitnotes/internal/watcher"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", output: io.Discard}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = slog.Default()
	}
	return app, nil
}

// InitRepository creates the notes repository described by cfg. An
// existing repository is left as is.
func InitRepository(cfg *Config) (*vcs.Repository, error) {
	repo, err := vcs.Init(cfg.Repository.Path)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{notes.NotesDir, notes.ResourcesDir} {
		if err := os.MkdirAll(filepath.Join(repo.Root(), dir), 0o755); err != nil {
			return nil, fmt.Errorf("init: create %s: %w", dir, err)
		}
	}
	return repo, nil
}

// NewService opens the configured repository and builds the note service
// over it.
func NewService(opts ...Option) (*noteservice.Service, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return app.newService()
}

func (app *application) newService(extra ...noteservice.Option) (*noteservice.Service, error) {
	cfg := app.config

	repo, err := vcs.Open(cfg.Repository.Path)
	if err != nil {
		return nil, fmt.Errorf("open repository (run 'gitnotes init' first): %w", err)
	}

	runner := snippet.NewManager()
	for _, lang := range cfg.Snippet.Languages() {
		if err := runner.Configure(lang); err != nil {
			return nil, fmt.Errorf("configure %s runner: %w", lang.Language(), err)
		}
	}

	ed := app.editor
	if ed == nil {
		ed = editor.Command{Command: cfg.Editor.Command}
	}

	sig := vcs.Identity(cfg.Repository.UserName, cfg.Repository.UserEmail)
	in := command.New(repo, sig,
		command.WithEditor(ed),
		command.WithSnippetRunner(runner),
		command.WithOutput(app.output),
		command.WithLogger(app.logger),
	)

	svcOpts := []noteservice.Option{noteservice.WithLogger(app.logger)}
	if cfg.Repository.UseWorkingDir && app.cwd != "" {
		svcOpts = append(svcOpts, noteservice.WithWorkingDir(noteservice.InitialWorkingDir(cfg.Repository.BaseDir, app.cwd)))
	}
	svcOpts = append(svcOpts, app.service...)
	svcOpts = append(svcOpts, extra...)
	return noteservice.NewService(repo, in, svcOpts...), nil
}

func jsonLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Serve runs the HTTP API, the SSE stream and the file watcher until ctx
// is cancelled or a shutdown signal arrives.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := jsonLogger(cfg.App.LogLevel, os.Stdout)
	slog.SetDefault(logger)
	app.logger = logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("repository", cfg.Repository.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("auth", cfg.Auth.AuthEnabled()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, err := app.newService(noteservice.WithPublisher(broker.PublishChange))
	if err != nil {
		return err
	}
	if err := svc.UpdateLinks(ctx); err != nil {
		logger.Warn("initial link update failed", slog.String("error", err.Error()))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w := watcher.New(svc.Repository().Root(), svc,
			watcher.WithLogger(logger),
			watcher.WithPublisher(broker.PublishChange))
		if err := w.Run(gCtx); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher once the server is gone.
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout. Logs go to stderr since
// stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := jsonLogger(app.config.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	app.logger = logger

	svc, err := app.newService()
	if err != nil {
		return err
	}
	if err := svc.UpdateLinks(ctx); err != nil {
		logger.Warn("initial link update failed", slog.String("error", err.Error()))
	}

	logger.Info("Starting MCP server", slog.String("repository", app.config.Repository.Path))
	return mcpserver.New(svc, app.version).ServeStdio()
}
