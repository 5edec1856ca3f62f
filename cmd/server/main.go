/**
 * @description
 * This is the main entry point for the marketplace HTTP server. It is responsible
 * for initializing all components of the service, including configuration, database
 * connection, the payment provider client, the message broker producer, repositories,
 * the application services, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads .env files in local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rentloop/marketplace-service/internal/api"
	"github.com/rentloop/marketplace-service/internal/app"
	"github.com/rentloop/marketplace-service/internal/config"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/rabbitmq"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

func main() {
	// Load .env for local development; in deployment the environment is real.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, using environment\"")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting marketplace-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish domain events. Broker
	// unavailability degrades to a no-op producer rather than blocking boot.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; events disabled\" err=%v", err)
		producer = &rabbitmq.NoopProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis for distributed rate limiting; absent config fails open.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the Stripe client.
	stripeClient := stripeclient.NewClient(cfg.StripeSecretKey)

	// Initialize the data access layer.
	profiles := store.NewPostgresProfileRepository(dbpool)
	listings := store.NewPostgresListingRepository(dbpool)
	bookings := store.NewPostgresBookingRepository(dbpool)
	payments := store.NewPostgresPaymentRepository(dbpool)
	messages := store.NewPostgresMessageRepository(dbpool)
	webhookEvents := store.NewPostgresWebhookEventRepository(dbpool)

	// Initialize the application services.
	accountSync := app.NewAccountSyncService(profiles, stripeClient, producer, cfg.SiteURL)
	finalize := app.NewFinalizeService(bookings, listings, profiles, stripeClient, producer)
	sessionGate := app.NewSessionGateService(bookings, listings, stripeClient)
	webhookSvc := app.NewWebhookService(payments, bookings, profiles, webhookEvents, producer)
	listingSvc := app.NewListingService(listings, profiles)
	bookingSvc := app.NewBookingService(bookings, listings, profiles, stripeClient, cfg.SiteURL)
	messageSvc := app.NewMessageService(messages, bookings, listings, profiles)

	limiter := app.NewRedisRateLimiter(redisClient, "marketplace:rate_limit")

	// The bulk sync job logs structured JSON even when triggered over HTTP.
	jobsLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(profiles, accountSync, jobsLogger)

	handlers := api.NewHandlers(
		accountSync,
		finalize,
		sessionGate,
		webhookSvc,
		listingSvc,
		bookingSvc,
		messageSvc,
		jobs,
		limiter,
		cfg.StripeWebhookSecret,
	)

	router := api.NewRouter(handlers, cfg.AuthJWKSURL, cfg.CronSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
