//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/store/storetest"
)

// setupPostgres starts a postgres testcontainer and returns its connection string
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("membership"),
		postgres.WithUsername("membership"),
		postgres.WithPassword("membership"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStoreConformance_Integration(t *testing.T) {
	dsn := setupPostgres(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := Open(context.Background(), "postgres", dsn, Options{MaxOpenConns: 4})
		require.NoError(t, err)
		_, err = st.DB().Exec(`TRUNCATE organizations, memberships, membership_roles, roles, invitations`)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		return st
	})
}
