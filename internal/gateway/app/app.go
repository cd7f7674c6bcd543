package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"kiri/internal/config"
	"kiri/internal/gateway/handler"
	"kiri/internal/gateway/server"
	"kiri/internal/telemetry"
)

type App struct {
	server   *server.Server
	pipeline *Pipeline
	tracing  telemetry.ShutdownFunc
	logger   *zap.Logger

	sweepCtx    context.Context
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	started     atomic.Bool
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	tracing, err := telemetry.Init(ctx, "kiri-gateway", cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	p, err := NewPipeline(ctx, cfg, ExecutorAuto, logger)
	if err != nil {
		_ = tracing(ctx)
		return nil, err
	}

	// Handlers
	projectHandler := handler.NewProjectHandler(p.Projects, p.Dispatcher, logger.Named("http")).
		WithInvalidator(p.Introspector)
	previewHandler := handler.NewPreviewHandler(p.Runner)
	watchHandler := handler.NewWatchHandler(p.Projects, p.Hub, logger.Named("watch"))
	healthHandler := handler.NewHealthHandler(p.stores.pingers)

	// Routing & Server
	mux := server.NewMux(server.Handlers{
		Projects:          projectHandler,
		Preview:           previewHandler,
		Watch:             watchHandler,
		Health:            healthHandler,
		Metrics:           p.Metrics.Handler(),
		RequestsPerMinute: 120,
	})
	srv := server.New(cfg.Port, mux, logger)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	return &App{
		server:      srv,
		pipeline:    p,
		tracing:     tracing,
		logger:      logger,
		sweepCtx:    sweepCtx,
		sweepCancel: sweepCancel,
		sweepDone:   make(chan struct{}),
	}, nil
}

// Start runs the sweeper in the background and serves HTTP until Shutdown.
func (a *App) Start() error {
	a.started.Store(true)
	go func() {
		defer close(a.sweepDone)
		_ = a.pipeline.Sweeper.Run(a.sweepCtx)
	}()
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	errs = append(errs, a.server.Shutdown(ctx))
	a.sweepCancel()
	if a.started.Load() {
		<-a.sweepDone
	}
	errs = append(errs, a.pipeline.Close())
	errs = append(errs, a.tracing(ctx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
