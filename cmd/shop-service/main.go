package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
	shophttp "github.com/vasiliy-maslov/ecommerce-backend/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/idempotency"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/outbox"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/payment"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Str("env", cfg.App.Env).Msg("Shop service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	if cfg.Postgres.RunMigrations {
		if err := db.ApplyMigrations(dbConn.Pool, cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	sqlxDB := dbConn.SQLX()
	defer sqlxDB.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	tx := db.NewTransactor(dbConn.Pool)

	var events outbox.Recorder = outbox.Noop()
	var relay *outbox.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		writer := outbox.NewWriter(cfg.Kafka.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close kafka writer")
			}
		}()
		events = outbox.NewRecorder(dbConn.Pool, cfg.Kafka.Topic)
		relay = outbox.NewRelay(outbox.NewStore(dbConn.Pool), writer, tx, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Domain events enabled")
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, domain events are disabled")
	}

	var idempotencyMW func(http.Handler) http.Handler
	if cfg.Redis.Addr != "" {
		redisClient, err := idempotency.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer closeRedis(redisClient)
		idempotencyMW = idempotency.Middleware(idempotency.NewRedisStore(redisClient), cfg.Redis.IdempotencyTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.IdempotencyTTL).Msg("Idempotency keys enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, Idempotency-Key header is ignored")
	}

	productRepository := catalog.NewRepository(dbConn.Pool)
	ledger := catalog.NewLedger(productRepository)
	catalogSvc := catalog.NewService(productRepository, ledger, tx)

	cartRepository := cart.NewRepository(dbConn.Pool)
	cartSvc := cart.NewService(cartRepository, productRepository, tx)

	orderRepository := order.NewRepository(dbConn.Pool)
	orderSvc := order.NewService(order.Dependencies{
		Repo:       orderRepository,
		Stats:      order.NewStatsReader(sqlxDB),
		Carts:      cartRepository,
		CartFiller: cartSvc,
		Products:   productRepository,
		Ledger:     ledger,
		Tx:         tx,
		Events:     events,
		Metrics:    appMetrics,
	})

	paymentSvc := payment.NewService(payment.Dependencies{
		Repo:     payment.NewRepository(dbConn.Pool),
		Stats:    payment.NewStatsReader(sqlxDB),
		Orders:   orderRepository,
		Workflow: orderSvc,
		Carts:    cartRepository,
		Tx:       tx,
		Events:   events,
		Metrics:  appMetrics,
	})

	router := shophttp.NewRouter(shophttp.Handlers{
		Catalog: shophttp.NewCatalogHandler(catalogSvc),
		Cart:    shophttp.NewCartHandler(cartSvc),
		Order:   shophttp.NewOrderHandler(orderSvc),
		Payment: shophttp.NewPaymentHandler(paymentSvc),
	}, shophttp.RouterOptions{
		Verifier:    auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:     appMetrics,
		Gatherer:    registry,
		DB:          dbConn.Pool,
		Idempotency: idempotencyMW,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	var wg sync.WaitGroup
	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Outbox relay stopped with error")
			}
		}()
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	wg.Wait()

	log.Info().Msg("Shop service stopped gracefully")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "shop-service").Logger()
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close redis client")
	}
}
