package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset
func newTestStore(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, pool, err := NewWithPool(ctx, url)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE submit_session")
	require.NoError(t, err, "Failed to truncate submit_session table")
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", "v1"))
	require.NoError(t, store.Set(ctx, "k", "v2"))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is not an error")
}

func TestStore_PurgeOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "old", "v"))
	cutoff := time.Now().Add(time.Minute)

	n, err := store.PurgeOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, found, err := store.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "fresh", "v"))
	n, err = store.PurgeOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_StartJanitorRejectsBadSchedule(t *testing.T) {
	store := New(nil)
	_, err := store.StartJanitor("not a schedule", time.Hour, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid purge schedule")

	stop, err := store.StartJanitor("@every 1h", time.Hour, nil)
	require.NoError(t, err)
	stop()
}
