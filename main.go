package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/idempotency"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/notification"
	"ms-storefront/internal/order"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/order_api"
	rediswrap "ms-storefront/internal/order/redis"
	"ms-storefront/internal/paymaya"
	"ms-storefront/internal/reconcile"
	"ms-storefront/internal/sse"
	"ms-storefront/internal/storage"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func openPostgres(cfg config.DatabaseConfig, logger *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var bunDB *bun.DB
	switch cfg.Database.Driver {
	case "sqlite":
		var err error
		bunDB, err = database.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			logger.Fatal("DATABASE", err.Error())
		}
		if err := bunDB.PingContext(ctx); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("SQLite connection error: %v", err))
		}
		logger.Info("DATABASE", fmt.Sprintf("✅ SQLite database ready at %s", cfg.Database.SQLitePath))
	default:
		bunDB = openPostgres(cfg.Database, logger)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func tokenVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.TokenVerifier {
	if cfg.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("Failed to initialize OIDC verifier for %s: %v", cfg.OIDCIssuer, err))
		}
		logger.Info("AUTH", fmt.Sprintf("Verifying tokens against OIDC issuer %s", cfg.OIDCIssuer))
		return verifier
	}
	if cfg.JWTSecret != "" {
		logger.Info("AUTH", "Verifying HS256 tokens with JWT_SECRET")
		return auth.NewHMACVerifier(cfg.JWTSecret)
	}
	logger.Warn("AUTH", "No OIDC_ISSUER or JWT_SECRET configured, every caller is a guest")
	return nil
}

func newMailer(cfg config.EmailConfig, logger *logger.Logger) notification.Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("EMAIL", "SMTP_HOST not set, confirmation emails are logged instead of sent")
		return &notification.LogMailer{Logger: logger}
	}
	logger.Info("EMAIL", fmt.Sprintf("Sending mail through %s:%s", cfg.SMTPHost, cfg.SMTPPort))
	return notification.NewSMTPMailer(cfg)
}

func main() {
	logger := logger.NewLogger("storefront")
	defer logger.Close()

	logger.Info("APP", "Starting Storefront Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	loc, ok := utils.LoadLocation(cfg.App.Timezone)
	if !ok {
		logger.Warn("CONFIG", fmt.Sprintf("Unknown APP_TIMEZONE %q, order numbers use UTC", cfg.App.Timezone))
	}

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if err := prepareSchema(ctx, bunDB, cfg.Database, logger); err != nil {
		logger.Fatal("MIGRATION", err.Error())
	}

	store := db.New(bunDB)
	lock := rediswrap.NewRedis(redisClient, cfg.Redis.OrderLockTTL, logger)
	emitter := sse.NewOrderEventEmitter()

	// Without Kafka the emitter is fed directly; with it, every instance relays the topics
	// into its own emitter so SSE clients see events from all instances.
	var events order.EventPublisher = emitter
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.AllTopics(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		defer producer.Close()
		events = order.Publishers{producer}

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.AllTopics(), "storefront-sse-"+uuid.NewString(), logger)
		defer consumer.Close()
		go consumer.Start(ctx, func(event models.OrderEvent) {
			emitter.Emit(event)
		})
		logger.Info("KAFKA", "Kafka producer and SSE relay initialized successfully")
	} else {
		logger.Warn("KAFKA", "KAFKA_ENABLED=false, order events stay in this process")
	}

	keys := idempotency.NewStore(bunDB, logger)
	go keys.RunSweeper(ctx, cfg.Idempotency.SweepInterval)

	gateway := paymaya.NewClient(cfg.PayMaya, logger)
	if gateway.PublicKey == "" || gateway.SecretKey == "" {
		logger.Warn("PAYMENT", "PayMaya credentials missing, checkout requests will be rejected")
	}
	if cfg.PayMaya.WebhookSecret == "" {
		logger.Warn("WEBHOOK", "PAYMAYA_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	orderService := order.NewOrderService(store, lock, events, gateway, loc, logger)
	downloads := entitlement.NewService(store, storage.NewLocal(cfg.Storage.Root), cfg.App.URL, logger)

	dispatcher := notification.NewDispatcher(store, keys, newMailer(cfg.Email, logger), cfg.App, cfg.Idempotency.NotificationTTL, logger)
	dispatcher.Location = loc

	webhooks := reconcile.NewReconciler(store, lock, entitlement.NewGenerator(store, logger), dispatcher, events, cfg.PayMaya.WebhookSecret, logger)

	handler := order_api.NewHandler(orderService, downloads, webhooks, emitter, logger)
	resolver := auth.NewResolver(tokenVerifier(ctx, cfg.Auth, logger), logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	handler.Routes(r, resolver)
	logger.Info("ROUTER", "Order, payment, webhook and download routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Storefront Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelBackground()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Storefront Service shutdown complete")
	}
}
