package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"seraphix/internal/config"
	apperrors "seraphix/internal/errors"
	"seraphix/internal/infrastructure"
	custommw "seraphix/internal/middleware"
	"seraphix/internal/services"
	"seraphix/internal/store"
	handlers "seraphix/internal/transport/http"
)

// Version is set at compile time via -ldflags
var Version = "dev"

// Application is the main application container. Dependencies are built
// once here and injected downward; nothing reaches for ambient globals.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router *chi.Mux
	Server *http.Server
	Store  *store.Store

	validation *services.ValidationService
	keysystems *services.KeysystemService
}

// NewApplication wires the full dependency graph: config, logger, store,
// services, router. A store that cannot be reached is fatal; the caller is
// expected to exit.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", Version),
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Server.Port))

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open customer store: %w", err)
	}

	a := &Application{
		Config:     cfg,
		Logger:     logger,
		Store:      st,
		validation: services.NewValidationService(st, logger),
		keysystems: services.NewKeysystemService(st, logger),
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	if a.Config.Security.RateLimit.Enabled {
		global := custommw.NewGlobalRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger)
		r.Use(global.Handler)
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))

	auth := custommw.NewAuthenticator(a.Store, a.Logger)
	keyLimiter := custommw.NewFixedWindowLimiter(
		a.Config.Security.RateLimit.KeyRequestsPerSecond,
		a.Config.Security.RateLimit.WindowEviction,
		a.Logger)

	statusHandler := handlers.NewStatusHandler(Version, a.Config.Env)
	profileHandler := handlers.NewProfileHandler(a.Logger)
	keysystemHandler := handlers.NewKeysystemHandler(a.keysystems, a.Logger)
	keyHandler := handlers.NewKeyHandler(a.validation, a.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Status)

		r.With(auth.Handler).Get("/me", profileHandler.Me)

		r.Route("/keysystems", func(r chi.Router) {
			r.With(auth.Handler).Get("/", keysystemHandler.Detail)

			// public validation endpoint: rate-limited, no auth
			r.With(keyLimiter.Handler).Post("/keys", keyHandler.Validate)
			r.With(auth.Handler, keyLimiter.Handler).Patch("/keys/reset", keyHandler.Reset)

			r.With(auth.Handler).Get("/{keysystemID}", keysystemHandler.Detail)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apperrors.ErrEndpointNotFound.WithPath(r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apperrors.ErrEndpointNotFound.WithPath(r.URL.Path))
	})

	a.Router = r
}

// createServer creates the HTTP server with configured timeouts
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the server and blocks until a shutdown signal arrives
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	return a.Stop(context.Background())
}

// Stop gracefully shuts down the server and closes the store
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
		return err
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("store close failed", slog.String("error", err.Error()))
	}

	a.Logger.Info("shutdown complete",
		slog.String("duration", time.Since(start).String()))
	return nil
}
