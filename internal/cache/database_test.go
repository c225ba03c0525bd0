package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/database/testutil"
)

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "limiter:key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Positive(t, ttl)

	count, _, err = store.IncrementWithTTL(ctx, "limiter:key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// A separate key starts its own counter
	count, _, err = store.IncrementWithTTL(ctx, "limiter:other", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// After the window lapses the counter starts over
	count, _, err = store.IncrementWithTTL(ctx, "limiter:short", 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	time.Sleep(20 * time.Millisecond)

	count, _, err = store.IncrementWithTTL(ctx, "limiter:short", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "greeting", []byte("hello"), 0))

	value, found, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello"), value)

	// Upsert replaces the stored value
	require.NoError(t, store.Set(ctx, "greeting", []byte("hi"), 0))
	value, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hi"), value)

	require.NoError(t, store.Delete(ctx, "greeting"))
	_, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreGetRespectsExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, found, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	require.False(t, found)
}
