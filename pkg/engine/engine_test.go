package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/config"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
	"github.com/platinummonkey/membership/pkg/orgs"
	"github.com/platinummonkey/membership/pkg/store/memory"
	"github.com/platinummonkey/membership/pkg/store/sqlstore"
	"github.com/platinummonkey/membership/pkg/users"
)

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

// exercise runs one organization lifecycle through the wired services
func exercise(t *testing.T, e *Engine) *models.Organization {
	t.Helper()
	ctx := context.Background()

	created, err := e.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	created, err = e.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	require.NoError(t, e.Directory.UpsertUser(ctx, &models.User{ID: "alice", Email: "alice@example.com"}))
	org, err := e.Organizations.CreateOrganization(ctx, orgs.CreateOrganizationInput{
		Name:    "Acme",
		OwnerID: "alice",
		Type:    models.OrganizationTypeEnterprise,
	}, models.Actor{ID: "alice"})
	require.NoError(t, err)

	allowed, err := e.Roles.HasPermission(ctx, "alice", org.ID, models.ResourceBilling, models.ActionManage, "")
	require.NoError(t, err)
	assert.True(t, allowed)

	user, err := e.Directory.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, org.ID, user.DefaultOrganizationID)
	return org
}

func TestNewMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.FileDir = t.TempDir()
	e := newEngine(t, cfg)

	assert.IsType(t, &memory.Store{}, e.Store)
	assert.IsType(t, &users.MemoryDirectory{}, e.Directory)
	assert.IsType(t, &cache.LRUPermissionCache{}, e.Cache)
	assert.IsType(t, &locks.MemoryLocker{}, e.Locker)
	require.NotNil(t, e.Registry)
	assert.Equal(t, []string{"store"}, e.Health.Names())

	org := exercise(t, e)

	sink, ok := e.Sink.(*audit.FileSink)
	require.True(t, ok)
	entries, err := sink.ReadEntries(0)
	require.NoError(t, err)
	actions := map[string]string{}
	for _, entry := range entries {
		actions[entry.Action] = entry.OrganizationID
	}
	assert.Contains(t, actions, "roles.seeded")
	assert.Equal(t, org.ID, actions["organization.created"])
}

func TestNewSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.DSN = "file:" + filepath.Join(t.TempDir(), "membership.db")
	cfg.Cache.Backend = config.BackendNone
	e := newEngine(t, cfg)

	assert.IsType(t, &sqlstore.Store{}, e.Store)
	assert.IsType(t, &users.SQLDirectory{}, e.Directory)
	assert.Nil(t, e.Cache)
	assert.IsType(t, audit.NewNoOpSink(), e.Sink)

	exercise(t, e)
	status := e.Health.Check(context.Background())
	assert.Equal(t, observability.StatusHealthy, status.Status)
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Locks.Backend = config.BackendRedis
	cfg.Audit.FileDir = t.TempDir()
	cfg.Audit.Async = true
	cfg.Observability.MetricsEnabled = false
	e := newEngine(t, cfg)

	assert.IsType(t, &cache.RedisPermissionCache{}, e.Cache)
	assert.IsType(t, &locks.RedisLocker{}, e.Locker)
	assert.IsType(t, &audit.MultiSink{}, e.Sink)
	assert.Nil(t, e.Metrics)
	assert.Equal(t, []string{"redis", "store"}, e.Health.Names())

	exercise(t, e)
}

func TestNewErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = "mongo"
		_, err := New(context.Background(), cfg, WithLogger(observability.NopLogger()))
		assert.ErrorContains(t, err, "invalid store driver")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := config.Default()
		cfg.Redis.Addr = addr
		cfg.Cache.Backend = config.BackendRedis
		_, err := New(context.Background(), cfg, WithLogger(observability.NopLogger()))
		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}

func TestWithDirectory(t *testing.T) {
	dir := users.NewMemoryDirectory()
	e, err := New(context.Background(), config.Default(),
		WithLogger(observability.NopLogger()),
		WithDirectory(dir),
	)
	require.NoError(t, err)
	defer e.Close()

	assert.Same(t, dir, e.Directory)
}
