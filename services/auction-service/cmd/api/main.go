package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/lotmarket/pkg/auth"
	pkgdb "github.com/floroz/lotmarket/pkg/database"
	pkgevents "github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/api"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/database"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/locks"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/memory"
	"github.com/floroz/lotmarket/services/auction-service/internal/config"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/migrations"
)

// storage is the set of ports the services need, backed by Postgres or memory
type storage struct {
	txManager pkgdb.TransactionManager
	itemRepo  interface {
		items.Repository
		bids.ItemRepository
	}
	bidRepo    bids.BidRepository
	outboxRepo interface {
		items.OutboxRepository
		bids.OutboxRepository
		pkgevents.OutboxRepository
	}
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Storage: Postgres when configured, otherwise the in-memory store
	var store storage
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := pkgdb.Migrate(ctx, cfg.DatabaseURL, migrations.FS); err != nil {
				logger.Error("Failed to run migrations", "error", err)
				os.Exit(1)
			}
			logger.Info("Migrations applied")
		}

		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Unable to parse database config", "error", err)
			os.Exit(1)
		}
		pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
		if err != nil {
			logger.Error("Unable to create connection pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.Error("Unable to ping database", "error", pingErr)
			os.Exit(1)
		}
		logger.Info("Postgres Connected")

		store = storage{
			txManager:  pkgdb.NewPostgresTransactionManager(pool, cfg.DBLockTimeout),
			itemRepo:   database.NewPostgresItemRepository(pool),
			bidRepo:    database.NewPostgresBidRepository(pool),
			outboxRepo: database.NewPostgresOutboxRepository(pool),
		}
	} else {
		logger.Warn("AUCTION_DB_URL is not set, using the in-memory store")
		mem := memory.NewStore()
		store = storage{txManager: mem, itemRepo: mem, bidRepo: mem, outboxRepo: mem}

		// With no database there is no worker either, so relay from here when a broker is configured
		if cfg.RabbitMQURL != "" {
			amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
			if err != nil {
				logger.Error("Failed to connect to RabbitMQ", "error", err)
				os.Exit(1)
			}
			defer amqpConn.Close()

			producer, err := events.NewAuctionEventsProducer(mem, mem, amqpConn, events.ProducerConfig{
				BatchSize: cfg.OutboxBatchSize,
				Interval:  cfg.OutboxInterval,
			}, logger)
			if err != nil {
				logger.Error("Failed to create producer", "error", err)
				os.Exit(1)
			}
			defer producer.Close()

			go func() {
				logger.Info("Starting in-process outbox relay...")
				if err := producer.Run(ctx); err != nil {
					logger.Error("Outbox relay stopped", "error", err)
				}
			}()
		}
	}

	// 2. Per-item admission lock: Redis across replicas, in process otherwise
	var locker bids.Locker = locks.NewKeyedMutex(cfg.ItemLockWait)
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Redis connection failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Redis Connected")
		locker = locks.NewRedisLocker(rdb, cfg.ItemLockTTL, cfg.ItemLockWait, logger)
	}

	// 3. Identity provider
	if cfg.JWTPublicKeyPath == "" {
		logger.Error("JWT_PUBLIC_KEY_PATH is not set")
		os.Exit(1)
	}
	pubPEM, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Error("Failed to read public key", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSignerFromPublicKey(pubPEM, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to load public key", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Services (Domain Layer)
	itemService := items.NewService(store.txManager, store.itemRepo, store.outboxRepo, logger)
	bidService := bids.NewService(store.txManager, store.bidRepo, store.itemRepo, store.outboxRepo, logger,
		bids.WithLocker(locker),
		bids.WithRetryPolicy(pkgdb.RetryPolicy{
			MaxAttempts:     cfg.BidAdmissionRetries,
			InitialInterval: pkgdb.DefaultRetryPolicy.InitialInterval,
			MaxInterval:     pkgdb.DefaultRetryPolicy.MaxInterval,
		}),
	)

	// 5. Initialize API Handler (ConnectRPC)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)
	path, handler := api.NewAuctionServiceHandler(
		api.NewAuctionHandler(itemService, bidService),
		connect.WithInterceptors(metrics.Interceptor(), auth.NewAuthInterceptor(signer)),
	)
	router := api.NewRouter(path, handler, promhttp.Handler())

	// 6. Start Server
	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Auction Service API", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("API stopped")
}
