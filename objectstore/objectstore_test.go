// backend/objectstore/objectstore_test.go
package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLandingPath(t *testing.T) {
	now := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	path := LandingPath("restaurant_board", now, "run-abc", "S001", "2026-08-22_2026-08-30")
	assert.Equal(t,
		"landing/restaurant_board/2026/08/30/run_run-abc/S001_2026-08-22_2026-08-30.csv",
		path)
}

func TestManualPath(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	path := ManualPath("restaurant_board", now, "fix.csv")
	assert.Equal(t, "manual/restaurant_board/2026/01/05/fix.csv", path)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	t.Run("Put Then Get", func(t *testing.T) {
		_, err := store.Put(ctx, "landing/a/b.csv", []byte("data"), map[string]string{"k": "v"})
		require.NoError(t, err)

		got, err := store.Get(ctx, "landing/a/b.csv")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), got)

		exists, err := store.Exists(ctx, "landing/a/b.csv")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Get Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "landing/missing.csv")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := store.Exists(ctx, "landing/missing.csv")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("List By Prefix", func(t *testing.T) {
		_, err := store.Put(ctx, "manual/c.csv", []byte("x"), nil)
		require.NoError(t, err)

		objects, err := store.List(ctx, "landing/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "landing/a/b.csv", objects[0].Path)
		assert.Equal(t, int64(4), objects[0].Size)
	})

	t.Run("Delete Is Idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "manual/c.csv"))
		require.NoError(t, store.Delete(ctx, "manual/c.csv"))
	})
}

func TestSweepBefore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "landing/old.csv", []byte("old"), nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "landing/new.csv", []byte("new"), nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "manual/keep.csv", []byte("keep"), nil)
	require.NoError(t, err)

	t.Run("Future Cutoff Sweeps The Prefix Only", func(t *testing.T) {
		deleted, err := SweepBefore(ctx, store, "landing/", time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		exists, err := store.Exists(ctx, "manual/keep.csv")
		require.NoError(t, err)
		assert.True(t, exists, "objects outside the prefix must survive")
	})

	t.Run("Past Cutoff Deletes Nothing", func(t *testing.T) {
		_, err := store.Put(ctx, "landing/fresh.csv", []byte("fresh"), nil)
		require.NoError(t, err)

		deleted, err := SweepBefore(ctx, store, "landing/", time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}
