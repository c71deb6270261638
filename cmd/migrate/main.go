// Команда migrate применяет встроенные миграции схемы клиентов к PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/customers/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
)

type config struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var cfg config

	fs.StringVar(&cfg.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: CUSTOMERS_POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.direction = strings.ToLower(strings.TrimSpace(cfg.direction))
	switch cfg.direction {
	case "up", "down", "status":
	default:
		return config{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", cfg.direction)
	}
	if cfg.steps < 0 {
		return config{}, fmt.Errorf("steps must be non-negative, got %d", cfg.steps)
	}

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(getenv("CUSTOMERS_POSTGRES_DSN"))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("CUSTOMERS_POSTGRES_DSN (or -dsn) is required")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, out io.Writer) error {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch cfg.direction {
	case "up":
		if err := store.MigrateUp(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d dirty=%t available=%d\n",
		cfg.direction, state.Version, state.Dirty, state.Available)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
