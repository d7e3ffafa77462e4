package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/telavo/telavo/internal/billing"
	"github.com/telavo/telavo/internal/handlers"
	"github.com/telavo/telavo/internal/repository"
	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/cache"
	"github.com/telavo/telavo/pkg/config"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
	"github.com/telavo/telavo/pkg/middleware"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logFormat := "json"
	if cfg.App.Debug {
		logFormat = "text"
	}
	log := logger.New(cfg.App.LogLevel, logFormat)
	logger.SetDefault(log)

	log.Info("starting telavo server",
		logger.Field{Key: "env", Value: cfg.App.Env},
		logger.Field{Key: "port", Value: cfg.App.Port})

	db, err := database.NewMongoDB(cfg.Database.URI, cfg.Database.DBName, 10*time.Second)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", logger.Field{Key: "error", Value: err})
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("failed to connect to Redis", logger.Field{Key: "error", Value: err})
	}
	defer redisCache.Close()

	mq, err := messaging.NewClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ", logger.Field{Key: "error", Value: err})
	}
	defer mq.Close()

	gateway, err := billing.NewStripeGateway(
		cfg.Stripe.SecretKey,
		cfg.Stripe.WebhookSecret,
		cfg.Stripe.SuccessURL,
		cfg.Stripe.CancelURL,
	)
	if err != nil {
		log.Fatal("failed to configure payment gateway", logger.Field{Key: "error", Value: err})
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	smsRepo := repository.NewSMSRepository(db)
	deviceRepo := repository.NewDeviceSessionRepository(db)
	tx := repository.NewTx(db)

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelIndexes()
	ensureIndexes(indexCtx, log, userRepo, slotRepo, subRepo, smsRepo, deviceRepo)

	// Services
	metrics := service.NewMetricsCollector("telavo")
	cacheSvc := service.NewCacheService(redisCache, log)
	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.ExpiresIn)

	authSvc := service.NewAuthService(userRepo, authMW, cfg.JWT.ExpiresIn, log)
	checkoutSvc := service.NewCheckoutService(
		userRepo, slotRepo, subRepo, gateway, tx, mq,
		cacheSvc, metrics, log,
		cfg.Stripe.TrialDays, cfg.Checkout.DefaultCurrency,
	)
	activationSvc := service.NewActivationService(
		subRepo, cacheSvc, mq, metrics, log,
		cfg.Activation.MaxAttempts, cfg.Activation.PollInterval,
	)
	inboxSvc := service.NewInboxService(slotRepo, subRepo, smsRepo, mq, cacheSvc, metrics, log)
	lifecycleSvc := service.NewLifecycleService(slotRepo, subRepo, tx, mq, metrics, log)
	deviceSvc := service.NewDeviceService(deviceRepo, log)
	usageSvc := service.NewUsageService(subRepo, smsRepo, log)

	var telegram service.TelegramSender
	if cfg.Telegram.BotToken != "" {
		notifier, err := service.NewTelegramNotifier(cfg.Telegram.BotToken)
		if err != nil {
			log.Error("telegram notifier disabled", logger.Field{Key: "error", Value: err})
		} else {
			telegram = notifier
		}
	}
	forwarder := service.NewForwarder(userRepo, slotRepo, telegram, nil, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := forwarder.Start(ctx, mq); err != nil && ctx.Err() == nil {
			log.Error("forwarder stopped", logger.Field{Key: "error", Value: err})
		}
	}()
	go func() {
		if err := forwarder.StartLifecycle(ctx, mq); err != nil && ctx.Err() == nil {
			log.Error("lifecycle notifier stopped", logger.Field{Key: "error", Value: err})
		}
	}()

	// HTTP
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())

	var rateLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		rateLimit = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window).Middleware()
	}

	handler := handlers.NewHTTPHandler(
		authSvc, checkoutSvc, activationSvc, inboxSvc, lifecycleSvc,
		deviceSvc, usageSvc, authMW, rateLimit, log,
	)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
		// The activation endpoint long-polls; leave headroom above the
		// maximum watcher budget.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.Activation.MaxAttempts)*cfg.Activation.PollInterval + 30*time.Second,
	}

	go func() {
		log.Info("http server listening", logger.Field{Key: "addr", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", logger.Field{Key: "error", Value: err})
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Field{Key: "error", Value: err})
	}
}

type indexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, log logger.Logger, repos ...indexEnsurer) {
	for _, repo := range repos {
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Fatal("failed to create indexes", logger.Field{Key: "error", Value: err})
		}
	}
}
