package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
)

func newCachedSchedulingHarness(now time.Time, sessions ...models.Session) (*schedulingHarness, *memoryCache) {
	h := newSchedulingHarness(now, sessions...)
	store := newMemoryCache()
	h.scheduling.cache = NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	return h, store
}

func TestSetIfCurrentDropsFillsOlderThanAnInvalidation(t *testing.T) {
	store := newMemoryCache()
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	generation := cache.Generation()
	cache.InvalidateSessionViews(ctx, "S", "T")
	require.NoError(t, cache.SetIfCurrent(ctx, "sessions:admin::::", []string{"stale"}, generation))
	assert.Empty(t, store.keys())

	require.NoError(t, cache.SetIfCurrent(ctx, "sessions:admin::::", []string{"fresh"}, cache.Generation()))
	assert.Len(t, store.keys(), 1)
}

func TestListForViewerServesCacheUntilInvalidated(t *testing.T) {
	h, store := newCachedSchedulingHarness(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	views, err := h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Len(t, store.keys(), 1)

	_, err = h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, h.sessions.listCalls)

	_, err = h.scheduling.ScheduleSession(ctx, physicsRequest("2024-03-10"), adminClaims())
	require.NoError(t, err)
	views, err = h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Equal(t, 2, h.sessions.listCalls)
}

func TestListForViewerDoesNotCacheAListThatRacedAWrite(t *testing.T) {
	h, _ := newCachedSchedulingHarness(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// the write commits after the listing was read but before it is cached
	h.sessions.listHook = func() {
		_, err := h.scheduling.ScheduleSession(ctx, physicsRequest("2024-03-10"), adminClaims())
		require.NoError(t, err)
	}
	views, err := h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestFreshReadBypassesCache(t *testing.T) {
	h, store := newCachedSchedulingHarness(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	key := SessionListKey(models.RoleAdmin, "admin-1", models.SessionFilter{})
	require.NoError(t, store.Set(ctx, key, []models.Session{{ID: "stale", Subject: "Physics"}}, time.Minute))

	views, err := h.scheduling.ListForViewer(ctx, adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "stale", views[0].ID)

	views, err = h.scheduling.ListForViewer(withFreshRead(ctx), adminClaims(), dto.SessionListFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)
}
