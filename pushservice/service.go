// Package pushservice assembles the push dispatch subsystem into a
// runnable microservice: the ingestion pipeline, the token registration
// API, and the periodic feedback sweep.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch/internal/api"
	"github.com/tinywideclouds/go-push-dispatch/internal/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
	"github.com/tinywideclouds/go-push-dispatch/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.Event]
	notifier        *dispatch.Dispatcher
	sweepInterval   time.Duration
	sweepStop       chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	notifier *dispatch.Dispatcher,
	tokenStore push.TokenStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline
	processor := pipeline.NewProcessor(notifier, logger)
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.EventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 3. API (Token Registration)
	tokenAPI := api.NewTokenAPI(tokenStore, cfg.APNS.AppID, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/register/apns", tokenAPI.RegisterAPNS)
	handle("POST /api/v1/register/gcm", tokenAPI.RegisterGCM)
	handle("POST /api/v1/unregister/apns", tokenAPI.UnregisterAPNS)
	handle("POST /api/v1/unregister/gcm", tokenAPI.UnregisterGCM)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		notifier:        notifier,
		sweepInterval:   cfg.SweepInterval,
		sweepStop:       make(chan struct{}),
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	go w.runSweepLoop()
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	w.stopOnce.Do(func() { close(w.sweepStop) })
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}

// runSweepLoop is the external-scheduler collaborator for the feedback
// sweep: it ticks on a fixed interval and invokes one sweep per tick.
func (w *Wrapper) runSweepLoop() {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.notifier.RunFeedbackSweep(context.Background()); err != nil {
				w.logger.Error("Feedback sweep failed.", "err", err)
			}
		case <-w.sweepStop:
			return
		}
	}
}
