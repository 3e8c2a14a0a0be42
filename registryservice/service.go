// Package registryservice assembles the token registry: the device
// registration API and the Pub/Sub driven delivery pipeline.
package registryservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-crowdship-push/internal/api"
	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/internal/pipeline"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/registryservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.DeliveryRequest]
	logger          *slog.Logger
}

// New assembles the service. m may be nil when metrics are disabled.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatchers map[push.Platform]dispatch.Dispatcher,
	store dispatch.DeviceStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Wrapper, error) {
	if consumer == nil {
		return nil, fmt.Errorf("a message consumer is required")
	}
	if len(dispatchers) == 0 {
		return nil, fmt.Errorf("at least one dispatcher is required")
	}

	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	processor := pipeline.NewProcessor(store, dispatchers, m, logger)

	streamingService, err := messagepipeline.NewStreamingService[pipeline.DeliveryRequest](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.NewDeliveryTransformer(cfg.SubscriptionDLQTopicID != "", m, logger),
		processor.Process,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	tokenAPI := api.NewTokenAPI(store, m, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	handle("POST "+push.PathRegister, tokenAPI.Register)
	handle("DELETE "+push.PathUnregister, tokenAPI.Unregister)
	handle("PUT "+push.PathRefresh, tokenAPI.Refresh)

	// CORS preflight for the API namespace.
	mux.Handle("OPTIONS /api/fcm/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger.With("component", "RegistryService"),
	}, nil
}

// Start launches the delivery pipeline and then serves HTTP until shutdown.
func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Delivery pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start delivery pipeline: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Delivery pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
