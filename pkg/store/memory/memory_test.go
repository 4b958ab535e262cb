package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/store/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := storetest.NewMembership("u1", "o1", "r1")
	require.NoError(t, s.Memberships().CreateMembership(ctx, m))

	m.Roles[0] = "mutated"
	got, err := s.Memberships().GetMembership(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.Roles[0])

	got.Roles[0] = "mutated-again"
	again, err := s.Memberships().GetMembership(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", again.Roles[0])
}

func TestConcurrentBatchesSerialize(t *testing.T) {
	ctx := context.Background()
	s := New()
	org := storetest.NewOrganization("acme", "u1")
	require.NoError(t, s.Organizations().CreateOrganization(ctx, org))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
				cur, err := tx.Organizations().GetOrganization(ctx, org.ID)
				if err != nil {
					return err
				}
				cur.Settings.MaxUsers++
				return tx.Organizations().UpdateOrganization(ctx, cur)
			})
		}()
	}
	wg.Wait()

	got, err := s.Organizations().GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettingsForType(models.OrganizationTypeEnterprise).MaxUsers+20, got.Settings.MaxUsers)
	assert.Equal(t, int64(21), got.Version)
}

func TestClosedStorePingFails(t *testing.T) {
	s := New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
