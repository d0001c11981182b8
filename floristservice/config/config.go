package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Data backends for the remote gateway.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Local snapshot stores.
const (
	LocalStoreMemory = "memory"
	LocalStoreFile   = "file"
	LocalStoreRedis  = "redis"
)

// Notification platforms.
const (
	PlatformNone = "none"
	PlatformWeb  = "web"
	PlatformFCM  = "fcm"
	PlatformAPNS = "apns"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

// APNSConfig holds the credentials required to sign APNs tokens.
type APNSConfig struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
}

// LocalConfig selects where the single-tenant snapshot lives.
type LocalConfig struct {
	Store string
	Dir   string
}

// NotificationsConfig selects and dresses the operator device notifications.
type NotificationsConfig struct {
	Platform string
	Icon     string
	Badge    string
	// Timezone is the IANA zone used to print promotion deadlines.
	Timezone string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID   string
	ListenAddr  string
	IdentityURL string

	Backend     string
	PostgresDSN string

	CorsConfig    middleware.CorsConfig
	Redis         RedisConfig
	Local         LocalConfig
	Notifications NotificationsConfig
	Vapid         VapidConfig
	APNS          APNSConfig

	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether broadcast requests are consumed from Pub/Sub.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*target = val
		}
	}

	override("PROJECT_ID", &cfg.ProjectID)
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	override("IDENTITY_SERVICE_URL", &cfg.IdentityURL)
	override("DATA_BACKEND", &cfg.Backend)
	override("DATABASE_URL", &cfg.PostgresDSN)
	override("LOCAL_STORE", &cfg.Local.Store)
	override("LOCAL_STORE_DIR", &cfg.Local.Dir)
	override("NOTIFY_PLATFORM", &cfg.Notifications.Platform)
	override("NOTIFY_TIMEZONE", &cfg.Notifications.Timezone)
	override("TOPIC_ID", &cfg.TopicID)
	override("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)

	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Push credentials
	override("VAPID_PUBLIC_KEY", &cfg.Vapid.PublicKey)
	override("VAPID_PRIVATE_KEY", &cfg.Vapid.PrivateKey)
	override("VAPID_SUB_EMAIL", &cfg.Vapid.SubscriberEmail)
	override("APNS_KEY_ID", &cfg.APNS.KeyID)
	override("APNS_TEAM_ID", &cfg.APNS.TeamID)
	override("APNS_BUNDLE_ID", &cfg.APNS.BundleID)
	override("APNS_P8_KEY", &cfg.APNS.P8KeyContent)

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = "http://localhost:3000"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendFirestore
	}
	if cfg.Local.Store == "" {
		cfg.Local.Store = LocalStoreMemory
	}
	if cfg.Notifications.Platform == "" {
		cfg.Notifications.Platform = PlatformNone
	}
	if cfg.Notifications.Timezone == "" {
		cfg.Notifications.Timezone = "Europe/Paris"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	// 3. Final Validation
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required for the firestore backend (set via YAML or PROJECT_ID env var)")
		}
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend (set via YAML or DATABASE_URL env var)")
		}
	default:
		return fmt.Errorf("unknown data backend %q", cfg.Backend)
	}

	switch cfg.Local.Store {
	case LocalStoreMemory:
	case LocalStoreFile:
		if cfg.Local.Dir == "" {
			return fmt.Errorf("local.dir is required for the file store (set via YAML or LOCAL_STORE_DIR env var)")
		}
	case LocalStoreRedis:
		if !cfg.Redis.Enabled {
			return fmt.Errorf("the redis local store requires redis to be enabled")
		}
	default:
		return fmt.Errorf("unknown local store %q", cfg.Local.Store)
	}

	switch cfg.Notifications.Platform {
	case PlatformNone, PlatformFCM:
	case PlatformWeb:
		if cfg.Vapid.PublicKey == "" || cfg.Vapid.PrivateKey == "" {
			return fmt.Errorf("vapid keys are required for the web platform")
		}
	case PlatformAPNS:
		if cfg.APNS.P8KeyContent == "" || cfg.APNS.BundleID == "" {
			return fmt.Errorf("apns key and bundle id are required for the apns platform")
		}
	default:
		return fmt.Errorf("unknown notification platform %q", cfg.Notifications.Platform)
	}

	if cfg.PipelineEnabled() {
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required when subscription_id is set")
		}
		if cfg.TopicID == "" {
			return fmt.Errorf("topic_id is required when subscription_id is set (set via YAML or TOPIC_ID env var)")
		}
		if cfg.SubscriptionDLQTopicID == "" {
			return fmt.Errorf("subscription_dlq_topic_id is required when subscription_id is set (set via YAML or SUBSCRIPTION_DLQ_TOPIC_ID env var)")
		}
	}
	return nil
}
