package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/interndocs/internal/database/testutil"
	"github.com/campusworks/interndocs/internal/models"
)

func TestDatabaseStoreIncrementWithinWindow(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "login:203.0.113.7", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, 50*time.Second)

	count, _, err = store.IncrementWithTTL(ctx, "login:203.0.113.7", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// A different key is its own counter.
	count, _, err = store.IncrementWithTTL(ctx, "login:198.51.100.1", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStorePeekDoesNotIncrement(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	count, ttl, err := store.PeekWithTTL(ctx, "absent")
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, ttl)

	_, _, err = store.IncrementWithTTL(ctx, "seen", time.Minute)
	require.NoError(t, err)

	count, ttl, err = store.PeekWithTTL(ctx, "seen")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.PeekWithTTL(ctx, "seen")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStoreWindowReset(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t))
	ctx := context.Background()

	count, _, err := store.IncrementWithTTL(ctx, "short", 30*time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	_, _, err = store.IncrementWithTTL(ctx, "short", 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// Expired counters peek as zero and restart on increment.
	count, _, err = store.PeekWithTTL(ctx, "short")
	require.NoError(t, err)
	require.Zero(t, count)

	count, _, err = store.IncrementWithTTL(ctx, "short", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStoreCleanup(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := NewDatabaseStore(db)
	ctx := context.Background()

	_, _, err := store.IncrementWithTTL(ctx, "stale", time.Millisecond)
	require.NoError(t, err)
	_, _, err = store.IncrementWithTTL(ctx, "fresh", time.Minute)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Cleanup(ctx))

	var keys []string
	require.NoError(t, db.Model(&models.RateCounter{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"fresh"}, keys)
}

func TestDatabaseStoreJanitorEvictsExpiredRows(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	store := &DatabaseStore{db: db, interval: 20 * time.Millisecond, stop: make(chan struct{})}
	go store.cleanupLoop()
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, _, err := store.IncrementWithTTL(ctx, "stale", time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var count int64
		if err := db.Model(&models.RateCounter{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 0
	}, 2*time.Second, 20*time.Millisecond)
}
