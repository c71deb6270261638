// Package redis хранит агрегаты клиентов как JSON-снимки в Redis,
// а события outbox в sorted set по времени появления.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultConnTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second

	customerKeyPrefix = "customer:"
	outboxPendingKey  = "customer-events:outbox"
	outboxMessagesKey = "customer-events:messages"
	defaultPullLimit  = 100
)

// Store оборачивает клиент Redis.
type Store struct {
	client *goredis.Client
}

// Open подключается к Redis и проверяет доступность сервера.
func Open(ctx context.Context, addr string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStore оборачивает уже созданный клиент.
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Client возвращает raw-клиент.
func (s *Store) Client() *goredis.Client {
	return s.client
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// Close закрывает клиент.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func customerKey(id string) string {
	return customerKeyPrefix + id
}
