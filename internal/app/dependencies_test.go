package app

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/health"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

// roundTrip сохраняет клиента со случайным именем и проверяет, что он читается обратно вместе с событием в outbox.
func roundTrip(t *testing.T, deps *runtimeDependencies, rules domain.CustomerBusinessRules) {
	t.Helper()
	ctx := context.Background()

	name := gofakeit.Name()
	c, err := domain.NewCustomer(gofakeit.UUID(), name, &rules)
	require.NoError(t, err)
	require.NoError(t, deps.customers.Save(ctx, c))

	loaded, err := deps.customers.GetByID(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, name, loaded.Name())

	stats, err := deps.outbox.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.PendingCount, 1)

	check := deps.storageChecker.Check(ctx)
	assert.Equal(t, health.StatusHealthy, check.Status, check.Message)
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer deps.close(quietLogger())

	roundTrip(t, deps, cfg.BusinessRules())
}

func TestInitRuntimeDependencies_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverRedis
	cfg.RedisAddr = mr.Addr()

	deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer deps.close(quietLogger())

	roundTrip(t, deps, cfg.BusinessRules())
}

func TestInitRuntimeDependencies_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverRedis
	cfg.RedisAddr = addr

	_, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestInitRuntimeDependencies_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CUSTOMERS_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("CUSTOMERS_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(quietLogger())

	roundTrip(t, deps, cfg.BusinessRules())
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	_, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestRuntimeDependencies_CloseIsNilSafe(t *testing.T) {
	var deps *runtimeDependencies
	deps.close(quietLogger())
	(&runtimeDependencies{}).close(quietLogger())
}
