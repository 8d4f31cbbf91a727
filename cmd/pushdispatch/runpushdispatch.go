package main

import (
	"context"
	"crypto/tls"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch/internal/correlation"
	"github.com/tinywideclouds/go-push-dispatch/internal/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/internal/gateway/apns"
	"github.com/tinywideclouds/go-push-dispatch/internal/gateway/fcm"
	"github.com/tinywideclouds/go-push-dispatch/internal/gateway/gcm"
	fsStore "github.com/tinywideclouds/go-push-dispatch/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"

	"github.com/tinywideclouds/go-push-dispatch/pushservice"
	"github.com/tinywideclouds/go-push-dispatch/pushservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

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
	})).With("service", "go-push-dispatch")
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

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	var tokenStore push.TokenStore = fsStore.NewTokenStore(fsClient)
	logger.Info("TokenStore initialized", "type", "firestore")

	// --- Correlation Cache ---
	var corrCache correlation.Cache
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis correlation cache...", "addr", cfg.Redis.Addr)
		redisCache, err := correlation.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		corrCache = redisCache
	} else {
		logger.Warn("Redis disabled; correlation cache is in-process only")
		corrCache = correlation.NewMemoryCache()
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, _ := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	authMiddleware, _ := middleware.NewJWKSAuthMiddleware(jwksURL, logger)

	// --- Binary push path (APNs) ---
	listener := apns.NewListener(corrCache, tokenStore, logger)
	var primaryConn, secondaryConn apns.GatewayConnection
	var feedbackConn apns.FeedbackConnection
	if cfg.APNS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.APNS.CertFile, cfg.APNS.KeyFile)
		if err != nil {
			logger.Error("Failed to load APNs client certificate", "err", err)
			os.Exit(1)
		}
		tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
		onError := func(identifier uint32, st uint8) {
			listener.HandleError(context.Background(), identifier, st)
		}
		primaryConn, err = apns.Dial(cfg.APNS.GatewayAddr, tlsConfig, onError, logger)
		if err != nil {
			logger.Warn("Primary APNs gateway unavailable", "err", err)
			primaryConn = nil
		}
		if cfg.APNS.SecondaryGatewayAddr != "" {
			secondaryConn, err = apns.Dial(cfg.APNS.SecondaryGatewayAddr, tlsConfig, onError, logger)
			if err != nil {
				logger.Warn("Secondary APNs gateway unavailable", "err", err)
				secondaryConn = nil
			}
		}
		if cfg.APNS.FeedbackAddr != "" {
			feedbackConn = apns.NewFeedbackConn(cfg.APNS.FeedbackAddr, tlsConfig)
		}
	} else {
		logger.Warn("APNs disabled in configuration. Binary push sends will be skipped.")
	}
	apnsClient := apns.NewClient(corrCache, primaryConn, secondaryConn, cfg.APNS.CorrelationTTL, logger)
	sweeper := apns.NewSweeper(feedbackConn, tokenStore, logger)

	// --- JSON push path (GCM over FCM transport) ---
	var jsonGateway push.JSONGateway
	if cfg.GCM.Enabled {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			os.Exit(1)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			os.Exit(1)
		}
		jsonGateway = fcm.NewGateway(fcmMessaging, logger)
	} else {
		logger.Warn("GCM disabled in configuration. JSON push sends will be skipped.")
	}
	gcmClient := gcm.NewClient(jsonGateway, tokenStore, logger)

	// --- Facade, Consumer & Service ---
	notifier := dispatch.New(tokenStore, apnsClient, gcmClient, sweeper, logger)

	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := pushservice.New(
		cfg,
		consumer,
		notifier,
		tokenStore,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
