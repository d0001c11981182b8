package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
}

type YamlLocalConfig struct {
	Store string `yaml:"store"`
	Dir   string `yaml:"dir"`
}

type YamlNotificationsConfig struct {
	Platform string `yaml:"platform"`
	Icon     string `yaml:"icon"`
	Badge    string `yaml:"badge"`
	Timezone string `yaml:"timezone"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                  `yaml:"project_id"`
	ListenAddr             string                  `yaml:"listen_addr"`
	IdentityURL            string                  `yaml:"identity_url"`
	Backend                string                  `yaml:"backend"`
	PostgresDSN            string                  `yaml:"postgres_dsn"`
	TopicID                string                  `yaml:"topic_id"`
	SubscriptionID         string                  `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                  `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig          `yaml:"cors"`
	RedisConfig            YamlRedisConfig         `yaml:"redis"`
	LocalConfig            YamlLocalConfig         `yaml:"local"`
	NotificationsConfig    YamlNotificationsConfig `yaml:"notifications"`
	VapidConfig            YamlVapidConfig         `yaml:"vapid"`
	APNSConfig             YamlAPNSConfig          `yaml:"apns"`
	NumPipelineWorkers     int                     `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// The APNs signing key only arrives through the environment.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:   baseCfg.ProjectID,
		ListenAddr:  baseCfg.ListenAddr,
		IdentityURL: baseCfg.IdentityURL,
		Backend:     baseCfg.Backend,
		PostgresDSN: baseCfg.PostgresDSN,
		TopicID:     baseCfg.TopicID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Local: LocalConfig{
			Store: baseCfg.LocalConfig.Store,
			Dir:   baseCfg.LocalConfig.Dir,
		},
		Notifications: NotificationsConfig{
			Platform: baseCfg.NotificationsConfig.Platform,
			Icon:     baseCfg.NotificationsConfig.Icon,
			Badge:    baseCfg.NotificationsConfig.Badge,
			Timezone: baseCfg.NotificationsConfig.Timezone,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		APNS: APNSConfig{
			KeyID:    baseCfg.APNSConfig.KeyID,
			TeamID:   baseCfg.APNSConfig.TeamID,
			BundleID: baseCfg.APNSConfig.BundleID,
		},
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"backend", cfg.Backend,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
