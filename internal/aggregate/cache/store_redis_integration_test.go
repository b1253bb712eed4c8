//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konkurs/internal/aggregate/models"
	"konkurs/pkg/testutil/containers"
)

func TestRedisCacheIntegration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	c := NewRedisCache(rc.Client)
	ctx := context.Background()

	profile := &models.AggregatedProfile{
		RegistryNumber: "DK123",
		Name:           "Foo A/S",
		Status:         "under konkurs",
		Assets:         []models.Asset{{ID: "vehicles", Value: 100000}},
		Events:         []models.InsolvencyEvent{{ID: "ev-1", Date: "2024-05-01"}},
		Lawyers:        []models.Lawyer{},
		Sources:        map[models.Source]models.Status{models.SourceRegistry: models.StatusOK},
	}

	t.Run("profile round trip", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		_, ok, err := c.GetProfile(ctx, EntityKey("DK123"))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.PutProfile(ctx, EntityKey("DK123"), profile, time.Minute))

		got, ok, err := c.GetProfile(ctx, EntityKey("DK123"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, profile.RegistryNumber, got.RegistryNumber)
		assert.Equal(t, profile.Assets, got.Assets)
		assert.Equal(t, profile.Sources, got.Sources)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		require.NoError(t, c.PutProfile(ctx, EntityKey("DK123"), profile, time.Second))
		time.Sleep(1500 * time.Millisecond)

		_, ok, err := c.GetProfile(ctx, EntityKey("DK123"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("listing round trip", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		require.NoError(t, c.PutListing(ctx, DateKey("2024-05-01"), []*models.AggregatedProfile{profile}, time.Minute))

		got, ok, err := c.GetListing(ctx, DateKey("2024-05-01"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Equal(t, "DK123", got[0].RegistryNumber)
	})

	t.Run("invalidate", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		require.NoError(t, c.PutProfile(ctx, EntityKey("DK123"), profile, time.Minute))
		require.NoError(t, c.Invalidate(ctx, EntityKey("DK123")))

		_, ok, err := c.GetProfile(ctx, EntityKey("DK123"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt entry reads as miss", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		require.NoError(t, rc.Client.Set(ctx, "konkurs:profile:"+EntityKey("DK123"), "not json", time.Minute).Err())

		_, ok, err := c.GetProfile(ctx, EntityKey("DK123"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
