package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/regionocr/internal/config"
	"github.com/psantana5/regionocr/pkg/api"
	"github.com/psantana5/regionocr/pkg/export"
	"github.com/psantana5/regionocr/pkg/jobs"
	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/metrics"
	"github.com/psantana5/regionocr/pkg/pipeline"
	"github.com/psantana5/regionocr/pkg/ratelimit"
	"github.com/psantana5/regionocr/pkg/store"
	"github.com/psantana5/regionocr/pkg/tracing"
)

// Version is reported as the tracing service version
var Version = "dev"

// App holds every long-lived component of the server
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Layout  *store.Layout
	Store   store.Store
	Service *jobs.Service
	Metrics *metrics.Metrics // nil when metrics are disabled
	Tracing *tracing.Provider
	Limiter *ratelimit.Limiter // nil when upload rate limiting is disabled

	Router        *mux.Router
	MetricsRouter *mux.Router // nil unless metrics.port selects a separate listener
}

// New wires the store, pipeline, exporter and HTTP routers from cfg
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Data.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data root %s: %w", cfg.Data.Root, err)
	}
	layout := store.NewLayout(cfg.Data.Root)

	tpl, err := export.LoadTemplate(cfg.Export.Template)
	if err != nil {
		return nil, err
	}
	if cfg.Export.Template != "" {
		logger.Info("Loaded export template", map[string]interface{}{"path": cfg.Export.Template})
	}

	st, err := store.NewStore(store.Config{
		Type:            cfg.Store.Type,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Store.Type, err)
	}
	logger.Info("Job store ready", map[string]interface{}{
		"type":      cfg.Store.Type,
		"data_root": cfg.Data.Root,
	})

	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "regionocr",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Layout:  layout,
		Store:   st,
		Tracing: tp,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Metrics.Registry().MustRegister(metrics.NewStoreCollector(st))
	}

	a.Service = jobs.NewService(jobs.Options{
		Store:    st,
		Layout:   layout,
		Runner:   pipeline.NewRunner(st, layout, pipeline.MockRecognizer{}, cfg.Pipeline.Concurrency, logger),
		Exporter: export.New(layout, tpl),
		Metrics:  a.Metrics,
		Tracing:  tp,
		Logger:   logger,
	})

	handler := api.NewJobHandler(a.Service, logger)
	handler.SetMaxUploadBytes(cfg.Upload.MaxBytes)
	if cfg.RateLimit.RPS > 0 {
		a.Limiter = ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		handler.SetUploadLimiter(a.Limiter)
	}

	opts := api.RouterOptions{
		Logger:       logger,
		Metrics:      a.Metrics,
		ServeMetrics: a.Metrics != nil && cfg.Metrics.Port == 0,
	}
	if cfg.Tracing.Enabled {
		opts.Tracing = tp
	}
	a.Router = api.NewRouter(handler, opts)

	if a.Metrics != nil && cfg.Metrics.Port > 0 {
		a.MetricsRouter = mux.NewRouter()
		a.MetricsRouter.Handle("/metrics", a.Metrics.Handler()).Methods("GET")
		a.MetricsRouter.HandleFunc("/health", handler.Health).Methods("GET")
	}
	return a, nil
}

// StartBackground launches housekeeping goroutines bound to ctx
func (a *App) StartBackground(ctx context.Context) {
	if a.Limiter != nil {
		a.Limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	}
}

// Close flushes traces and closes the store
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Tracing.Shutdown(ctx), a.Store.Close())
}

// HTTPServer returns the API server for the configured port and timeouts
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

// MetricsServer returns the separate metrics listener, or nil
func (a *App) MetricsServer() *http.Server {
	if a.MetricsRouter == nil {
		return nil
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Metrics.Port),
		Handler:      a.MetricsRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
