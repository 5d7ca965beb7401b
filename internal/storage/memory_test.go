package storage_test

import (
	"context"
	"testing"

	"github.com/conceptkit/ckit/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	require.NoError(t, store.Put(ctx, "users", "1", storage.Record{"name": "ada"}))
	require.NoError(t, store.Put(ctx, "users", "1", storage.Record{"name": "ada"}))

	got, ok, err := store.Get(ctx, "users", "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, storage.Record{"name": "ada"}, got)
}

func TestMemoryDelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "users", "1", storage.Record{"name": "ada"}))

	require.NoError(t, store.Del(ctx, "users", "1"))
	require.NoError(t, store.Del(ctx, "users", "1"))

	_, ok, err := store.Get(ctx, "users", "1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryConflictHookShape(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "users", "1", storage.Record{"name": "ada"}))

	var captured storage.ConflictInfo
	calls := 0
	store.OnConflict = func(info storage.ConflictInfo) storage.ConflictDecision {
		calls++
		captured = info
		return storage.ConflictDecision{Resolution: storage.AcceptIncoming}
	}

	require.NoError(t, store.Put(ctx, "users", "1", storage.Record{"name": "grace"}))
	require.Equal(t, 1, calls)
	require.Equal(t, "users", captured.Relation)
	require.Equal(t, "1", captured.Key)
	require.Equal(t, "ada", captured.Existing.Fields["name"])
	require.Equal(t, "grace", captured.Incoming.Fields["name"])

	got, _, err := store.Get(ctx, "users", "1")
	require.NoError(t, err)
	require.Equal(t, "grace", got["name"])
}

func TestMemoryFindAppliesCriteriaConjunction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "comments", "1", storage.Record{"articleId": "a", "author": "x"}))
	require.NoError(t, store.Put(ctx, "comments", "2", storage.Record{"articleId": "a", "author": "y"}))
	require.NoError(t, store.Put(ctx, "comments", "3", storage.Record{"articleId": "b", "author": "x"}))

	rows, err := store.Find(ctx, "comments", storage.Record{"articleId": "a"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	n, err := store.DelMany(ctx, "comments", storage.Record{"articleId": "a"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err = store.Find(ctx, "comments", storage.Record{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
