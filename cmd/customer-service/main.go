package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if strings.TrimSpace(level) == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("CUSTOMERS_LOG_LEVEL: %w", err)
	}
	log.SetLevel(parsed)
	return nil
}

// readConfig формирует конфигурацию приложения, позволяя переопределить значения через переменные окружения.
func readConfig(getenv func(string) string) (app.Config, error) {
	cfg := app.DefaultConfig()
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := env("CUSTOMERS_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := env("CUSTOMERS_GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := env("CUSTOMERS_STORAGE"); v != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(v))
	}
	if v := env("CUSTOMERS_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := env("CUSTOMERS_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.KafkaBrokers = env("KAFKA_BROKERS")

	var err error
	if cfg.MaxOutstandingOrders, err = intEnv(env, "CUSTOMERS_MAX_OUTSTANDING_ORDERS", cfg.MaxOutstandingOrders); err != nil {
		return app.Config{}, err
	}
	if cfg.OutstandingOrderDays, err = intEnv(env, "CUSTOMERS_OUTSTANDING_ORDER_DAYS", cfg.OutstandingOrderDays); err != nil {
		return app.Config{}, err
	}
	if v := env("CUSTOMERS_REQUIRE_ORDER_ADDRESSES"); v != "" {
		if cfg.RequireOrderAddresses, err = strconv.ParseBool(v); err != nil {
			return app.Config{}, fmt.Errorf("CUSTOMERS_REQUIRE_ORDER_ADDRESSES: %w", err)
		}
	}
	if cfg.PostgresMaxConns, err = intEnv(env, "CUSTOMERS_POSTGRES_MAX_CONNS", cfg.PostgresMaxConns); err != nil {
		return app.Config{}, err
	}
	if cfg.OutboxPollInterval, err = durationEnv(env, "CUSTOMERS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return app.Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv(env, "CUSTOMERS_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return app.Config{}, err
	}

	return cfg, cfg.Validate()
}

func intEnv(env func(string) string, key string, fallback int) (int, error) {
	v := env(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationEnv(env func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func main() {
	if err := setupLogger(os.Getenv("CUSTOMERS_LOG_LEVEL")); err != nil {
		log.WithError(err).Fatal("некорректный уровень логирования")
	}
	cfg, err := readConfig(os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"storage":   cfg.StorageDriver,
	}).Info("запускаем CustomerService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("CustomerService остановлен")
}
