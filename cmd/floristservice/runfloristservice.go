package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"

	"github.com/tinywideclouds/go-florist-service/floristservice"
	"github.com/tinywideclouds/go-florist-service/floristservice/config"
	"github.com/tinywideclouds/go-florist-service/internal/localstore"
	"github.com/tinywideclouds/go-florist-service/internal/notify"
	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/internal/platform/apns"
	"github.com/tinywideclouds/go-florist-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-florist-service/internal/platform/web"
	"github.com/tinywideclouds/go-florist-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-florist-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-florist-service/internal/storage/kv"
	"github.com/tinywideclouds/go-florist-service/internal/storage/postgres"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

const gatewayCacheTTL = 5 * time.Minute

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-florist-service")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Redis (shared by the gateway cache and the local store) ---
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		logger.Info("Connecting to Redis...", "addr", cfg.Redis.Addr)
		rdb, err = cache.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	// --- Remote Gateway (Decorated) ---
	gateway, closeGateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("Gateway initialization failed", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer closeGateway()

	if rdb != nil {
		gateway = cache.NewCachedGateway(gateway, cache.NewRedisClient(rdb), gatewayCacheTTL, logger)
		logger.Info("Gateway upgraded", "type", "redis_cached_"+cfg.Backend)
	}

	// --- Local Store ---
	var kvStore storage.KeyValue
	switch cfg.Local.Store {
	case config.LocalStoreFile:
		kvStore, err = kv.NewFileStore(cfg.Local.Dir)
		if err != nil {
			logger.Error("Failed to open local store directory", "err", err)
			os.Exit(1)
		}
	case config.LocalStoreRedis:
		kvStore = kv.NewRedisStore(rdb, "florist:kv:")
	default:
		kvStore = kv.NewMemoryStore()
	}
	localStore := localstore.New(ctx, kvStore, logger)
	logger.Info("Local store initialized", "type", cfg.Local.Store)

	// --- Notification Platform ---
	devicePlatform, gates, err := newPlatform(ctx, cfg, kvStore, logger)
	if err != nil {
		logger.Error("Notification platform initialization failed", "platform", cfg.Notifications.Platform, "err", err)
		os.Exit(1)
	}
	location, err := time.LoadLocation(cfg.Notifications.Timezone)
	if err != nil {
		logger.Error("Unknown notification timezone", "timezone", cfg.Notifications.Timezone, "err", err)
		os.Exit(1)
	}
	helper := notify.New(devicePlatform, notify.Options{
		Icon:     cfg.Notifications.Icon,
		Badge:    cfg.Notifications.Badge,
		Location: location,
	}, logger)

	// --- Auth ---
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.IdentityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("Failed to discover JWT config", "identity_url", cfg.IdentityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Failed to create auth middleware", "err", err)
		os.Exit(1)
	}

	// --- Consumer (optional) & Service ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PipelineEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newBroadcastConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Consumer creation failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := floristservice.New(
		cfg,
		consumer,
		gateway,
		localStore,
		helper,
		gates,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...")
		errCh <- service.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("Service shutdown with error", "err", err)
		}
	}
}

// newGateway opens the configured backend. The returned func releases it.
func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Gateway, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		gw := postgres.NewGateway(db)
		if err := gw.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("Gateway initialized", "type", "postgres")
		return gw, func() { _ = db.Close() }, nil
	default:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client failed: %w", err)
		}
		logger.Info("Gateway initialized", "type", "firestore")
		return fsStore.NewGateway(fsClient), func() { _ = fsClient.Close() }, nil
	}
}

// newPlatform builds the configured device platform around a persisted
// permission gate. With no platform the helper never grants.
func newPlatform(ctx context.Context, cfg *config.Config, kvStore storage.KeyValue, logger *slog.Logger) (dispatch.Platform, floristservice.DeviceGates, error) {
	switch cfg.Notifications.Platform {
	case config.PlatformWeb:
		gate := platform.NewGate[notification.WebPushSubscription](kvStore, logger)
		if err := gate.Restore(ctx); err != nil {
			logger.Warn("Could not restore notification permission", "err", err)
		}
		logger.Info("Web Push platform enabled", "public_key", cfg.Vapid.PublicKey)
		return web.NewPlatform(cfg.Vapid, gate, logger), floristservice.DeviceGates{Web: gate}, nil

	case config.PlatformFCM:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, floristservice.DeviceGates{}, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, floristservice.DeviceGates{}, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		gate := platform.NewGate[string](kvStore, logger)
		if err := gate.Restore(ctx); err != nil {
			logger.Warn("Could not restore notification permission", "err", err)
		}
		logger.Info("FCM platform enabled")
		return fcm.NewPlatform(fcmMessaging, gate, logger), floristservice.DeviceGates{Token: gate}, nil

	case config.PlatformAPNS:
		gate := platform.NewGate[string](kvStore, logger)
		if err := gate.Restore(ctx); err != nil {
			logger.Warn("Could not restore notification permission", "err", err)
		}
		p, err := apns.NewPlatform(cfg.APNS, gate, logger)
		if err != nil {
			return nil, floristservice.DeviceGates{}, err
		}
		logger.Info("APNs platform enabled", "bundle_id", cfg.APNS.BundleID)
		return p, floristservice.DeviceGates{Token: gate}, nil

	default:
		logger.Warn("No notification platform configured. Notifications will be reported as denied.")
		return nil, floristservice.DeviceGates{}, nil
	}
}

// newBroadcastConsumer ensures the broadcast subscription exists, with its
// dead-letter topic, and returns a consumer reading from it.
func newBroadcastConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	subName := resourceName(cfg.ProjectID, "subscriptions", cfg.PubsubConsumerConfig.SubscriptionID)
	if err := ensureSubscription(ctx, psClient, &pubsubpb.Subscription{
		Name:               subName,
		Topic:              resourceName(cfg.ProjectID, "topics", cfg.TopicID),
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     resourceName(cfg.ProjectID, "topics", cfg.SubscriptionDLQTopicID),
			MaxDeliveryAttempts: 5,
		},
	}, logger); err != nil {
		return nil, err
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subName), psClient, logger,
	)
}

func ensureSubscription(ctx context.Context, psClient *pubsub.Client, sub *pubsubpb.Subscription, logger *slog.Logger) error {
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	switch {
	case err == nil:
		logger.Info("Created broadcast subscription", "sub", sub.Name, "topic", sub.Topic)
	case status.Code(err) == codes.AlreadyExists:
		logger.Debug("Broadcast subscription already exists", "sub", sub.Name)
	default:
		return fmt.Errorf("could not create subscription %s: %w", sub.Name, err)
	}
	return nil
}

func resourceName(project, kind, id string) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, id)
}
