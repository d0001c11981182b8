// Package floristservice assembles the HTTP API and the broadcast pipeline
// into one runnable service.
package floristservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-florist-service/floristservice/config"
	"github.com/tinywideclouds/go-florist-service/internal/api"
	"github.com/tinywideclouds/go-florist-service/internal/localstore"
	"github.com/tinywideclouds/go-florist-service/internal/pipeline"
	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/internal/registry"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// DeviceGates are the permission gates of the configured platform. At most
// one is set; both are nil when no platform is configured.
type DeviceGates struct {
	Web   *platform.Gate[notification.WebPushSubscription]
	Token *platform.Gate[string]
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.BroadcastRequest]
	registry        *registry.Store
	logger          *slog.Logger
}

// New assembles the service. A nil consumer disables the broadcast pipeline.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	gateway storage.Gateway,
	localStore *localstore.Store,
	notifier api.Notifier,
	gates DeviceGates,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[pipeline.BroadcastRequest]
	if consumer != nil {
		processor := pipeline.NewProcessor(gateway, notifier, logger)

		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.BroadcastRequestTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API
	reg := registry.New(gateway, logger)
	adminAPI := api.NewAdminAPI(reg, logger)
	tenantAPI := api.NewTenantAPI(gateway, notifier, logger)
	localAPI := api.NewLocalAPI(localStore, notifier, logger)
	deviceAPI := api.NewDeviceAPI(notifier, gates.Web, gates.Token, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}
	public := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	// 1. Admin registry
	handle("GET /api/v1/admin/florists", adminAPI.ListFlorists)
	handle("POST /api/v1/admin/florists", adminAPI.CreateFlorist)
	handle("PATCH /api/v1/admin/florists/{id}", adminAPI.UpdateFlorist)
	handle("DELETE /api/v1/admin/florists/{id}", adminAPI.DeleteFlorist)
	handle("POST /api/v1/admin/florists/{id}/toggle", adminAPI.ToggleFlorist)
	handle("GET /api/v1/admin/florists/{id}/stats", adminAPI.FloristStats)

	// 2. Tenant pages
	public("GET /api/v1/florists/{id}", tenantAPI.CustomerView)
	public("POST /api/v1/florists/{id}/subscribers", tenantAPI.Subscribe)
	handle("GET /api/v1/florists/{id}/subscribers", tenantAPI.ListSubscribers)
	handle("GET /api/v1/florists/{id}/promotions", tenantAPI.ListPromotions)
	handle("POST /api/v1/florists/{id}/promotions", tenantAPI.CreatePromotion)
	handle("PATCH /api/v1/florists/{id}/promotions/{promotionID}", tenantAPI.UpdatePromotion)
	handle("DELETE /api/v1/florists/{id}/promotions/{promotionID}", tenantAPI.DeletePromotion)

	// 3. Single-tenant mode
	handle("GET /api/v1/local/state", localAPI.State)
	public("GET /api/v1/local/promotions/active", localAPI.ActivePromotions)
	handle("POST /api/v1/local/promotions", localAPI.CreatePromotion)
	handle("PATCH /api/v1/local/promotions/{id}", localAPI.UpdatePromotion)
	handle("DELETE /api/v1/local/promotions/{id}", localAPI.DeletePromotion)
	public("POST /api/v1/local/subscribers", localAPI.Subscribe)
	handle("PATCH /api/v1/local/florist", localAPI.UpdateFlorist)

	// 4. Operator device
	handle("GET /api/v1/notifications/permission", deviceAPI.Permission)
	handle("PUT /api/v1/notifications/device/web", deviceAPI.RegisterWeb)
	handle("PUT /api/v1/notifications/device/token", deviceAPI.RegisterToken)
	handle("DELETE /api/v1/notifications/device", deviceAPI.Unregister)

	// 5. Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Just returns 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		registry:        reg,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Broadcast pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	w.registry.Close()

	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
