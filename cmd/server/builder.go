package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"orderflow/cmd/server/config"
	"orderflow/internal/audit"
	auditdb "orderflow/internal/audit/db"
	"orderflow/internal/cache"
	"orderflow/internal/clients"
	"orderflow/internal/messaging"
	"orderflow/internal/messaging/kafka"
	"orderflow/internal/messaging/noop"
	"orderflow/internal/orders"
	ordersdb "orderflow/internal/orders/db"
	"orderflow/internal/payments"
	paymentsdb "orderflow/internal/payments/db"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// stores bundles the persistence layer with its cleanup.
type stores struct {
	orders   orders.OrderStore
	payments payments.Store
	audit    audit.Store
	cleanup  func()
}

// buildStores opens Postgres when DATABASE_URL is set and initializes the
// schemas. An empty or failing DSN falls back to in-memory stores.
func buildStores(ctx context.Context, logger *slog.Logger) stores {
	memory := stores{
		orders:   orders.NewInMemoryOrderStore(),
		payments: payments.NewInMemoryStore(),
		audit:    audit.NewInMemoryStore(),
		cleanup:  func() {},
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Info("no DATABASE_URL, using in-memory stores")
		return memory
	}

	db, err := openDB("pgx", dsn)
	if err != nil {
		logger.Error("postgres open failed, falling back to in-memory stores", "error", err)
		return memory
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	orderStore, err := ordersdb.NewOrderStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Error("postgres init failed, falling back to in-memory stores", "error", err)
		_ = db.Close()
		return memory
	}
	paymentStore, err := paymentsdb.NewPostgresStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Error("postgres init failed, falling back to in-memory stores", "error", err)
		_ = db.Close()
		return memory
	}
	auditStore, err := auditdb.NewPostgresStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Error("postgres init failed, falling back to in-memory stores", "error", err)
		_ = db.Close()
		return memory
	}

	logger.Info("postgres stores enabled")
	return stores{
		orders:   orderStore,
		payments: paymentStore,
		audit:    auditStore,
		cleanup: func() {
			if err := db.Close(); err != nil {
				logger.Error("close postgres", "error", err)
			}
		},
	}
}

// buildCache connects the Redis cache when REDIS_URL is set. Returns a nil
// cache when disabled.
func buildCache(ctx context.Context, logger *slog.Logger) (cache.Cache, time.Duration, func(), error) {
	if !config.RedisEnabled() {
		return nil, 0, func() {}, nil
	}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, 0, nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, 0, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, 0, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, 0, nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, 0, nil, err
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("close redis", "error", err)
		}
	}
	logger.Info("redis cache enabled", "namespace", cfg.Namespace)
	return cache.NewRedisCache(client, cfg.Namespace), cfg.CacheTTL, cleanup, nil
}

// buildCollaborators wires the customer directory and inventory. HTTP-backed
// clients get rate limit, retry, and circuit breaker wrappers, and customer
// lookups a read-through cache when one is available. Missing URLs select
// the demo in-memory collaborators.
func buildCollaborators(logger *slog.Logger, c cache.Cache, cacheTTL time.Duration) (orders.CustomerDirectory, orders.Inventory, error) {
	cfg := config.LoadCollaborators()
	if cfg.CustomerBaseURL == "" && cfg.ProductBaseURL == "" {
		logger.Info("no collaborator URLs, using demo in-memory directory and inventory")
		return clients.DemoDirectory(), clients.DemoInventory(), nil
	}

	relCfg, err := orders.LoadReliabilityConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}

	var directory orders.CustomerDirectory = clients.DemoDirectory()
	if cfg.CustomerBaseURL != "" {
		directory = orders.NewReliableCustomerDirectory(
			clients.NewCustomerClient(cfg.CustomerBaseURL, nil),
			relCfg.Limiter(), relCfg.Breaker(), relCfg.Retry())
		if c != nil {
			directory = clients.NewCachedCustomerDirectory(directory, c, cacheTTL, logger)
		}
	}

	var inventory orders.Inventory = clients.DemoInventory()
	if cfg.ProductBaseURL != "" {
		inventory = orders.NewReliableInventory(
			clients.NewProductClient(cfg.ProductBaseURL, nil),
			relCfg.Limiter(), relCfg.Breaker(), relCfg.Retry())
	}

	return directory, inventory, nil
}

// messagingParts bundles the queue side of the system.
type messagingParts struct {
	publisher messaging.TransactionPublisher
	queue     audit.Queue
	cleanup   func()
}

// buildMessaging wires the Kafka publisher and consumer when KAFKA_BROKERS
// is set. Without brokers the publisher is a no-op and there is no queue to
// consume.
func buildMessaging(logger *slog.Logger) (messagingParts, error) {
	if !config.KafkaEnabled() {
		logger.Info("no KAFKA_BROKERS, transaction publishing disabled")
		return messagingParts{publisher: noop.Publisher{}, cleanup: func() {}}, nil
	}

	cfg, err := config.LoadKafka()
	if err != nil {
		return messagingParts{}, err
	}

	publisher := kafka.NewPublisher(cfg.Brokers, cfg.Topic)
	queue := kafka.NewQueue(cfg.Brokers, cfg.Topic, cfg.GroupID)
	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logger.Error("close kafka publisher", "error", err)
		}
		if err := queue.Close(); err != nil {
			logger.Error("close kafka queue", "error", err)
		}
	}

	logger.Info("kafka transactions enabled", "topic", cfg.Topic, "group", cfg.GroupID)
	return messagingParts{publisher: publisher, queue: queue, cleanup: cleanup}, nil
}
