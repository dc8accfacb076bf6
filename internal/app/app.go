package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"matchstage/internal/augment"
	"matchstage/internal/config"
	"matchstage/internal/infrastructure"
	"matchstage/internal/services"
	"matchstage/internal/stage"
	"matchstage/internal/statsapi"
	handlers "matchstage/internal/transport/http"
	ws "matchstage/internal/websocket"
)

const Version = "1.0.0"

// Application is the dependency container for the web server.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Hub           *ws.Hub
	Sessions      *stage.Manager
	Pipeline      *services.PipelineService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication creates a fully wired application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting", slog.String("version", Version))

	otelCfg := infrastructure.DefaultOTelConfig()
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	hub := ws.NewHub(logger)

	client := statsapi.NewClient(statsapi.Options{
		BaseURL: cfg.StatsAPI.BaseURL,
		Timeout: cfg.StatsAPI.Timeout,
		RPS:     cfg.StatsAPI.RPS,
		Burst:   cfg.StatsAPI.Burst,
	}, logger)

	orchestrator := augment.NewOrchestrator(client, hub, augment.Options{
		Concurrency:  cfg.Augment.Concurrency,
		BatchTimeout: cfg.Augment.BatchTimeout,
	}, logger)

	sessions := stage.NewManager(client, logger)
	pipeline := services.NewPipelineService(client, orchestrator, hub, metrics, logger)

	app := &Application{
		Config:        cfg,
		Hub:           hub,
		Sessions:      sessions,
		Pipeline:      pipeline,
		Logger:        logger,
		OTelProviders: providers,
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

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Keep the middleware stack ahead of the websocket route minimal so the
	// upgrade handshake is not wrapped.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(a.Hub, w, req)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(a.Config.Server.WriteTimeout))

		handler := handlers.NewPipelineHandler(
			a.Pipeline, a.Sessions, a.Config.Server.MaxUploadBytes, a.Logger)
		r.Mount("/api", handler.Routes())
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// Run starts the application and blocks until the context is cancelled or a
// termination signal arrives.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.Hub.Start()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down telemetry", slog.String("error", err.Error()))
		}
	}

	infrastructure.CloseLogFile()
	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}
