package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	migrationsDir   = "sql/migrations"
	migrationsTable = "customers_schema_migrations"
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

// MigrationState описывает текущее состояние схемы.
type MigrationState struct {
	Version uint
	Dirty   bool
	// Available — число версий, встроенных в бинарник.
	Available int
}

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	})
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг для безопасного поведения.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

// MigrationStatus возвращает текущую версию схемы и число доступных миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	versions, err := checkMigrationPairs(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}
	state := MigrationState{Available: len(versions)}

	err = s.withMigrator(ctx, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return err
		}
		state.Version = version
		state.Dirty = dirty
		return nil
	})
	if err != nil {
		return MigrationState{}, err
	}
	return state, nil
}

// withMigrator открывает отдельное подключение: migrate закрывает свою БД вместе с собой,
// а общий пул Store должен жить дальше. Блокировку от параллельных запусков
// берёт сам драйвер (pg_advisory_lock).
func (s *Store) withMigrator(ctx context.Context, run func(*migrate.Migrate) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	if _, err := checkMigrationPairs(migrationsFS); err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("init migration source: %w", err)
	}

	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return ctx.Err()
}

// checkMigrationPairs проверяет, что у каждой версии есть и up, и down файл,
// и возвращает отсортированный список версий.
func checkMigrationPairs(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	type pair struct{ up, down bool }
	pairs := make(map[string]*pair)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name %q", entry.Name())
		}
		p, ok := pairs[match[1]]
		if !ok {
			p = &pair{}
			pairs[match[1]] = p
		}
		if match[3] == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	versions := make([]string, 0, len(pairs))
	for version, p := range pairs {
		if !p.up || !p.down {
			return nil, fmt.Errorf("migration %s must have both up and down files", version)
		}
		versions = append(versions, version)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", migrationsDir)
	}
	sort.Strings(versions)
	return versions, nil
}
