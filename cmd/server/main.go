package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/config"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/database"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/handlers"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/idempotency"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/middleware"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/outbox"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories/memory"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories/postgres"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/server"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Env: cfg.Server.Env})
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	checks := map[string]handlers.HealthCheck{}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks["database"] = pinger.Ping
	}

	// Create session store
	sessionStore := sessions.NewCookieStore([]byte(cfg.Session.Secret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		idempotencyStore = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("idempotency keys stored in redis", zap.String("addr", cfg.Redis.Addr))
	}

	var verifier services.GatewayVerifier
	if cfg.Paystack.Enabled() {
		verifier = services.NewPaystackVerifier(services.PaystackConfig{
			SecretKey:        cfg.Paystack.SecretKey,
			BaseURL:          cfg.Paystack.BaseURL,
			Timeout:          cfg.Paystack.Timeout,
			BreakerFailures:  cfg.Paystack.BreakerFailures,
			BreakerOpenFor:   cfg.Paystack.BreakerOpenFor,
			BreakerHalfOpen:  cfg.Paystack.BreakerHalfOpen,
			BreakerResetSpan: cfg.Paystack.BreakerResetSpan,
		}, logger)
		logger.Info("payment gateway verification enabled", zap.String("base_url", cfg.Paystack.BaseURL))
	}

	// Initialize services
	carts := services.NewCartManager(store, logger)
	orders := services.NewOrderAssembler(store, logger)
	payments := services.NewPaymentReconciler(store, verifier, logger)
	ledger := services.NewLoyaltyLedger(store, logger)
	redemption := services.NewRedemptionEngine(store, logger)

	router := server.NewRouter(server.Dependencies{
		Logger:      logger,
		Auth:        middleware.NewAuthMiddleware(sessionStore, cfg.Session.Name, logger),
		Idempotency: idempotencyStore,
		CORS:        middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
		Carts:       handlers.NewCartHandler(carts, orders, logger),
		Orders:      handlers.NewOrderHandler(orders, payments, logger),
		Loyalty:     handlers.NewLoyaltyHandler(ledger, redemption, logger),
		Health:      handlers.NewHealthHandler(checks, logger),
	})

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled() {
		writer := outbox.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()

		relay := outbox.NewRelay(logger, store, outbox.NewDispatcher(logger, writer, cfg.Kafka.Topic), outbox.Config{
			BatchSize:   cfg.Kafka.OutboxBatch,
			Interval:    cfg.Kafka.OutboxInterval,
			Lease:       cfg.Kafka.OutboxLease,
			MaxAttempts: cfg.Kafka.MaxAttempts,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
		logger.Info("outbox relay started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	wg.Wait()

	return nil
}

// openStore returns the configured store and a function releasing it
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Store, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		store := memory.New()
		seedDemoData(store)
		logger.Warn("using the in-memory store; data is lost on restart")
		return store, func() {}, nil
	}

	db, err := database.NewConnection(ctx, database.Config{
		URL:             cfg.Database.URL,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connection established", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
	return postgres.NewStore(db.DB), closeDB, nil
}
