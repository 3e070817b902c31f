package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/cache"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/logger"
	commonmw "github.com/Luisfeliz3/sporty-urban-ecommerce/common/middleware"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/config"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/controllers"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/database"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/events"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/middleware"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
	awspkg "github.com/Luisfeliz3/sporty-urban-ecommerce/pkg/aws"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/repository"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/routes"
	"github.com/Luisfeliz3/sporty-urban-ecommerce/services"
)

const serviceName = "checkout"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- 1. AWS, secrets and logging ---

	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		panic(err)
	}

	if cfg.AWSUseSecrets {
		cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg))
	}

	if cfg.CloudWatchEnabled {
		cwWriter, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			logger.Initialize(cfg.Env)
			logger.Log.Warn("CloudWatch logs unavailable, logging to stdout only", zap.Error(err))
		} else {
			logger.InitializeWithWriter(cfg.Env, cwWriter)
		}
	} else {
		logger.Initialize(cfg.Env)
	}
	log := logger.Log
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	metrics := awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	// --- 2. Datastores ---

	mongoClient, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, log)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	var (
		ledger     repository.PaymentLedger
		postgresDB *gorm.DB
	)
	if cfg.Postgres.Enabled() {
		postgresDB, err = database.ConnectPostgres(cfg.Postgres.DSN(), log, &models.PaymentAttempt{})
		if err != nil {
			log.Fatal("Failed to connect to payment ledger", zap.Error(err))
		}
		ledger = repository.NewGormPaymentLedger(postgresDB)
	} else {
		log.Info("POSTGRES_HOST not set, payment ledger disabled")
	}

	// --- 3. Dependency Injection ---

	productRepo := repository.NewMongoProductRepository(db)
	orderRepo := repository.NewMongoOrderRepository(db)
	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		log.Warn("Failed to ensure order indexes", zap.Error(err))
	}
	cartRepo := repository.NewMongoCartRepository(db)
	accountRepo := repository.NewMongoAccountRepository(db)
	idem := repository.NewRedisIdempotencyStore(redisClient)
	cartCache := cache.NewRedisCartCache(redisClient, cfg.CartCacheTTL)

	var inventory repository.InventoryStore = productRepo
	if cfg.InventoryBackend == config.InventoryBackendDynamoDB {
		inventory = repository.NewDynamoInventoryStore(dynamodb.NewFromConfig(awsCfg), cfg.InventoryTable)
		log.Info("Using DynamoDB inventory", zap.String("table", cfg.InventoryTable))
	}

	publisher := events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg, log), cfg.OrderEventsTopicARN, log)
	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeTimeout, log)

	cartService := services.NewCartService(cartRepo, cartCache, productRepo, inventory, idem, cfg.IdempotencyTTL, log, metrics)
	orderService := services.NewOrderService(
		orderRepo, productRepo,
		services.NewInventoryGuard(inventory, log, metrics),
		cartService, idem, cfg.IdempotencyTTL, publisher, cfg.Currency, log, metrics,
	)
	paymentService := services.NewPaymentService(
		orderRepo, accountRepo, stripeService, ledger, idem, cfg.IdempotencyTTL,
		publisher, cfg.Currency, log, metrics,
	)

	validator := controllers.NewRequestValidator()
	cartController := controllers.NewCartController(cartService, validator)
	orderController := controllers.NewOrderController(orderService, validator)
	paymentController := controllers.NewPaymentController(paymentService, validator, log)

	// --- 4. HTTP Server & Middleware ---

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(metrics, serviceName))
	r.Use(apperrors.ErrorMiddleware(log))

	authMiddleware := middleware.AuthMiddleware(auth.NewVerifier(cfg.JWTSecret), cfg.TrustGatewayHeaders, log)
	rateLimit := commonmw.RateLimitMiddleware(commonmw.NewRateLimiter(ctx, rate.Limit(20), 40, 5*time.Minute))
	routes.RegisterRoutes(r, rateLimit, authMiddleware, cartController, orderController, paymentController)

	// --- 5. Graceful Shutdown ---

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Checkout service starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down checkout service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		log.Error("Failed to close Redis", zap.Error(err))
	}
	if postgresDB != nil {
		if err := database.ClosePostgres(postgresDB); err != nil {
			log.Error("Failed to close payment ledger", zap.Error(err))
		}
	}
	if err := database.DisconnectMongo(mongoClient); err != nil {
		log.Error("Failed to disconnect MongoDB", zap.Error(err))
	}

	log.Info("Checkout service stopped gracefully")
}
