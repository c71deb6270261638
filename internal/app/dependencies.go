package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/health"
	"github.com/vladislavdragonenkov/customers/internal/storage/memory"
	"github.com/vladislavdragonenkov/customers/internal/storage/postgres"
	"github.com/vladislavdragonenkov/customers/internal/storage/redis"
)

// runtimeDependencies содержит репозитории выбранного хранилища.
type runtimeDependencies struct {
	customers      domain.CustomerRepository
	outbox         domain.OutboxRepository
	storageChecker health.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	rules := cfg.BusinessRules()
	aggregateLogger := logger.WithField("component", "customer-aggregate")
	entry := logger.WithField("storage", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		entry.Info("using in-memory storage")
		return &runtimeDependencies{
			customers:      memory.NewCustomerRepository(store, rules, domain.WithLogger(aggregateLogger)),
			outbox:         memory.NewOutboxRepository(store),
			storageChecker: health.NewSimpleChecker("storage", func(context.Context) error { return nil }),
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		entry.Info("using postgres storage")
		return &runtimeDependencies{
			customers:      postgres.NewCustomerRepository(store, rules, domain.WithLogger(aggregateLogger)),
			outbox:         postgres.NewOutboxRepository(store),
			storageChecker: health.NewPingChecker("storage", store),
			closeFn:        store.Close,
		}, nil

	case StorageDriverRedis:
		store, err := redis.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		entry.WithField("addr", cfg.RedisAddr).Info("using redis storage")
		return &runtimeDependencies{
			customers:      redis.NewCustomerRepository(store, rules, domain.WithLogger(aggregateLogger)),
			outbox:         redis.NewOutboxRepository(store),
			storageChecker: health.NewPingChecker("storage", store),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", domain.ErrValidation, cfg.StorageDriver)
	}
}
