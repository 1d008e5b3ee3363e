package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"reachflow/analytics"
	"reachflow/channel"
	"reachflow/config"
	"reachflow/engine"
	"reachflow/middleware"
	"reachflow/routes"
	"reachflow/store"
	"reachflow/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if config.AppConfig.Environment == "development" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	st := store.NewGormStore(config.DB)

	// Redis backs the sweep lease and the webhook rate limiter when enabled;
	// otherwise both fall back to in-process implementations.
	var locker worker.Locker = worker.NewMemoryLocker()
	var rateStorage fiber.Storage
	if config.AppConfig.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		locker = worker.NewRedisLocker(redisClient)
		rateStorage = middleware.NewRedisStorage(redisClient)
	}

	senders := &channel.Registry{
		Email:         channel.NewSMTPSender(),
		FallbackEmail: channel.NewFallbackSMTPSender(),
		SMS:           channel.NewHTTPSMSSender(config.AppConfig.SMSAPIBaseURL),
		Professional:  channel.NewOAuthProfessionalSender(config.AppConfig.ProfessionalAPIBaseURL),
		Tasks:         channel.NewStoreTaskCreator(st),
	}

	aggregator := analytics.NewAggregator(st, logger.WithField("component", "analytics"))

	eng := engine.New(st, senders, aggregator, engine.RealClock(), logger.WithField("component", "engine"))
	eng.TrackingSecret = config.AppConfig.TrackingSecret
	eng.CredentialKey = config.AppConfig.EncryptionKey

	sweeper := worker.NewSweeper(st, eng, locker, logger)
	sweeper.Interval = config.AppConfig.SweepInterval

	reconciler := analytics.NewReconciler(st, logger.WithField("component", "reconciler"))
	reconciler.Interval = config.AppConfig.ReconcileInterval

	replyWatcher := worker.NewReplyWatcher(st, eng, logger)
	replyWatcher.Interval = config.AppConfig.ReplyPollInterval
	replyWatcher.CredentialKey = config.AppConfig.EncryptionKey

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)
	go reconciler.Start(ctx)
	go replyWatcher.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName: "reachflow",
	})
	app.Use(recover.New())
	app.Use(middleware.CORS())

	routes.Setup(app, routes.Deps{
		Store:          st,
		Engine:         eng,
		Sweeper:        sweeper,
		Logger:         logger,
		TrackingSecret: config.AppConfig.TrackingSecret,
		EncryptionKey:  config.AppConfig.EncryptionKey,
		InternalToken:  config.AppConfig.InternalToken,
		WebhookRateMax: config.AppConfig.RateLimitWebhooks,
		RateStorage:    rateStorage,
	})

	// Shut the workers down before the listener exits
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down")
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
