package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

// StorageDriver выбирает реализацию репозиториев.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverRedis    StorageDriver = "redis"
)

// Config описывает настройки запуска сервиса клиентов.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	// PostgresMaxConns — 0 оставляет размер пула по умолчанию.
	PostgresMaxConns int
	RedisAddr        string

	// KafkaBrokers — список через запятую; пустой отключает outbox relay.
	KafkaBrokers string

	MaxOutstandingOrders  int
	OutstandingOrderDays  int
	RequireOrderAddresses bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxAge — возраст самого старого события, после которого health становится degraded.
	OutboxMaxAge time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска на memory storage.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		GRPCAddr:             ":50051",
		StorageDriver:        StorageDriverMemory,
		PostgresAutoMigrate:  true,
		RedisAddr:            "localhost:6379",
		MaxOutstandingOrders: domain.DefaultMaxOutstandingOrders,
		OutstandingOrderDays: domain.DefaultOutstandingOrderDays,
		OutboxPollInterval:   time.Second,
		OutboxBatchSize:      100,
		OutboxMaxAttempts:    3,
		OutboxRetryDelay:     100 * time.Millisecond,
		OutboxMaxAge:         5 * time.Minute,
		ShutdownTimeout:      5 * time.Second,
	}
}

// BusinessRules собирает правила агрегата из конфигурации.
func (c Config) BusinessRules() domain.CustomerBusinessRules {
	return domain.CustomerBusinessRules{
		MaxOutstandingOrders:  c.MaxOutstandingOrders,
		OutstandingOrderDays:  c.OutstandingOrderDays,
		RequireOrderAddresses: c.RequireOrderAddresses,
	}
}

// Validate проверяет согласованность настроек до старта компонентов.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%w: postgres dsn is required for storage driver %q", domain.ErrValidation, c.StorageDriver)
		}
	case StorageDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("%w: redis addr is required for storage driver %q", domain.ErrValidation, c.StorageDriver)
		}
	default:
		return fmt.Errorf("%w: unsupported storage driver %q", domain.ErrValidation, c.StorageDriver)
	}

	if c.PostgresMaxConns < 0 {
		return fmt.Errorf("%w: postgres max conns must not be negative", domain.ErrValidation)
	}
	if err := c.BusinessRules().Validate(); err != nil {
		return err
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("%w: outbox poll interval must be positive", domain.ErrValidation)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", domain.ErrValidation)
	}
	return nil
}
