package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// APNSConfig describes the binary push gateway endpoints and the client
// certificate used to authenticate against them.
type APNSConfig struct {
	Enabled              bool
	GatewayAddr          string
	SecondaryGatewayAddr string
	FeedbackAddr         string
	CertFile             string
	KeyFile              string
	AppID                string
	CorrelationTTL       time.Duration
}

type GCMConfig struct {
	Enabled bool
}

// Config defines the single, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	SweepInterval          time.Duration

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	APNS       APNSConfig
	GCM        GCMConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("SWEEP_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil && interval > 0 {
			logger.Debug("Overriding config value", "key", "SWEEP_INTERVAL", "source", "env")
			cfg.SweepInterval = interval
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

	// APNS Overrides
	if val := os.Getenv("APNS_GATEWAY_ADDR"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_GATEWAY_ADDR", "source", "env")
		cfg.APNS.GatewayAddr = val
		cfg.APNS.Enabled = true
	}
	if val := os.Getenv("APNS_SECONDARY_GATEWAY_ADDR"); val != "" {
		cfg.APNS.SecondaryGatewayAddr = val
	}
	if val := os.Getenv("APNS_FEEDBACK_ADDR"); val != "" {
		cfg.APNS.FeedbackAddr = val
	}
	if val := os.Getenv("APNS_CERT_FILE"); val != "" {
		cfg.APNS.CertFile = val
	}
	if val := os.Getenv("APNS_KEY_FILE"); val != "" {
		cfg.APNS.KeyFile = val
	}
	if val := os.Getenv("APNS_APP_ID"); val != "" {
		cfg.APNS.AppID = val
	}

	// GCM Overrides
	if val := os.Getenv("GCM_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.GCM.Enabled = enabled
	}

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

	// Final validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.APNS.CorrelationTTL <= 0 {
		cfg.APNS.CorrelationTTL = 15 * time.Minute
	}
	if cfg.APNS.Enabled && (cfg.APNS.CertFile == "" || cfg.APNS.KeyFile == "") {
		return nil, fmt.Errorf("apns cert_file and key_file are required when apns is enabled")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
