// Package postgres хранит клиентов, их заказы и outbox событий в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultConnTimeout = 5 * time.Second

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolConfig — параметры пула соединений.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig рассчитан на один инстанс customer-service.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Option настраивает Store при открытии.
type Option func(*PoolConfig)

// WithMaxOpenConns ограничивает число открытых соединений.
// Idle-соединений не бывает больше, чем открытых.
func WithMaxOpenConns(n int) Option {
	return func(c *PoolConfig) {
		if n <= 0 {
			return
		}
		c.MaxOpenConns = n
		c.MaxIdleConns = min(c.MaxIdleConns, n)
	}
}

// WithConnMaxLifetime задаёт время жизни соединения.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *PoolConfig) {
		if d > 0 {
			c.ConnMaxLifetime = d
		}
	}
}

func newPoolConfig(opts ...Option) PoolConfig {
	cfg := DefaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Store держит пул соединений. DSN сохраняется для мигратора,
// которому нужно собственное соединение.
type Store struct {
	db   *sql.DB
	dsn  string
	pool PoolConfig
}

// Open открывает пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	pool := newPoolConfig(opts...)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{db: db, dsn: dsn, pool: pool}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает пул для репозиториев и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Pool возвращает применённые параметры пула.
func (s *Store) Pool() PoolConfig {
	return s.pool
}

// Ping используется health-check'ом storage.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx выполняет fn в транзакции: commit при nil, иначе rollback.
func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
