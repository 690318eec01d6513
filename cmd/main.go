/**
 * @description
 * This is the main entry point for the billing-service. It initializes and
 * wires together all the components of the application: configuration, the
 * database pool, the Stripe client, the RabbitMQ producer, the Redis rate
 * limiter, the service layer, and the HTTP router.
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Degrades gracefully when RabbitMQ or Redis are unavailable at startup.
 * - Implements graceful shutdown to ensure clean resource cleanup.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: HTTP routing (via internal/api).
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 */
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pawsuite/billing-service/internal/api"
	"github.com/pawsuite/billing-service/internal/app"
	"github.com/pawsuite/billing-service/internal/config"
	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/internal/store"
	"github.com/pawsuite/billing-service/pkg/rabbitmq"
	"github.com/pawsuite/billing-service/pkg/stripeclient"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		log.Fatal("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}

	// Set up the database connection pool.
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()
	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(dbCtx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Database connection established")

	// Set up the RabbitMQ producer. Billing events are advisory, so fall back
	// to a no-op publisher when the broker is unreachable.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=main msg=\"rabbitmq unavailable; billing events disabled\" err=%v", err)
			producer = &rabbitmq.NopPublisher{}
		} else {
			log.Println("RabbitMQ producer connected")
			producer = p
		}
	} else {
		producer = &rabbitmq.NopPublisher{}
	}
	defer producer.Close()

	// Set up the Redis client for checkout rate limiting, if configured.
	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("level=warn component=main msg=\"invalid REDIS_URL; rate limiting disabled\" err=%v", err)
		} else {
			redisClient = redis.NewClient(opts)
			defer redisClient.Close()
		}
	}
	limiter := app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)

	// Wire the service layer.
	repo := store.NewPostgresRepository(dbpool)
	provider := stripeclient.NewClient(cfg.StripeSecretKey)
	plans := domain.NewPlanCatalog(cfg.StripePriceIDMonthly, cfg.StripePriceIDYearly)
	service := app.NewService(repo, provider, producer, app.BcryptHasher{}, plans, cfg.PublicBaseURL, cfg.CustomerPortalURL)

	// Set up router and handlers.
	handler := api.NewHandler(service)
	webhookHandler := api.NewWebhookHandler(service, cfg.StripeWebhookSecret)
	router := api.NewRouter(handler, webhookHandler, api.RouterConfig{
		AdminJWTSecret:         cfg.AdminJWTSecret,
		RateLimiter:            limiter,
		CheckoutLimitPerMinute: cfg.CheckoutLimitPerMinute,
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	// Graceful shutdown logic.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
