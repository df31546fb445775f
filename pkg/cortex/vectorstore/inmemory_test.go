package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreQueryOrdersByDistance(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{ID: "a", MemoryID: "m1", Vector: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "b", MemoryID: "m2", Vector: []float32{0, 1}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "c", MemoryID: "m3", Vector: []float32{0.9, 0.1}}))

	matches, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "a", matches[0].Record.ID)
	require.Equal(t, "c", matches[1].Record.ID)
}

func TestInMemoryStoreQueryExcludingSkipsOwnMemory(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{ID: "a", MemoryID: "m1", Vector: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "b", MemoryID: "m1", Vector: []float32{0.99, 0.01}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "c", MemoryID: "m2", Vector: []float32{0, 1}}))

	matches, err := s.QueryExcluding(ctx, []float32{1, 0}, 5, "m1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "c", matches[0].Record.ID)
}

func TestInMemoryStoreDeleteByMemory(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{ID: "a", MemoryID: "m1", Vector: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "b", MemoryID: "m1", Vector: []float32{0, 1}}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "c", MemoryID: "m2", Vector: []float32{1, 1}}))

	require.NoError(t, s.DeleteByMemory(ctx, "m1"))

	matches, err := s.Query(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "c", matches[0].Record.ID)
}
