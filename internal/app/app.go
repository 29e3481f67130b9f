// Package app assembles the web shell: configuration, logging, telemetry,
// the WebSocket hub, the validation runner and the HTTP server.
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
	"github.com/go-chi/chi/v5/middleware"

	"coursecheck/internal/config"
	"coursecheck/internal/infrastructure"
	"coursecheck/internal/runner"
	transport "coursecheck/internal/transport/http"
	"coursecheck/internal/websocket"
)

const AppName = "coursecheck"

// Application holds all wired components of the web shell.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	OTel    *infrastructure.OTelProviders
	Metrics *infrastructure.RunMetrics
	Hub     *websocket.Hub
	Runner  *runner.Runner
	Service *transport.RunService
	Handler *transport.Handler
	Router  chi.Router
	Server  *http.Server
}

// NewApplication builds the application from configuration.
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	metrics, err := infrastructure.NewRunMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create run metrics: %w", err)
	}

	hub := websocket.NewHub(logger)
	r := runner.New(cfg, logger, metrics)
	service := transport.NewRunService(cfg, r, hub, logger)
	handler := transport.NewHandler(service, hub, logger)

	app := &Application{
		Config:  cfg,
		Logger:  logger,
		OTel:    otelProviders,
		Metrics: metrics,
		Hub:     hub,
		Runner:  r,
		Service: service,
		Handler: handler,
	}
	app.setupRouter()
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// setupRouter configures the HTTP router. The WebSocket route stays outside
// the middleware group so nothing wraps its ResponseWriter before the
// upgrade.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.HandleFunc("/ws", a.Handler.ServeWS)

	if a.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTel.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		r.Mount("/api", a.Handler.Routes())
	})

	a.Router = r
}

// Run starts the server and blocks until an interrupt arrives, then shuts
// down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Hub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(ctx)
}

// Stop shuts the server, hub and telemetry down within the configured
// shutdown timeout.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(ctx, "Shutting down")

	a.Runner.Cancel()

	var firstErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Server shutdown error", slog.String("error", err.Error()))
		firstErr = err
	}

	a.Hub.Stop()

	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Telemetry shutdown error", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	infrastructure.CloseLogFile()
	return firstErr
}
