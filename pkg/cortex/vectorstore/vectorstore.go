// Package vectorstore stores chunk embeddings and answers nearest-
// neighbor queries. Treated as an external service per spec §6: a
// separate Postgres+pgvector instance from the primary SQLite database.
package vectorstore

import "context"

// Record is one embedded chunk.
type Record struct {
	ID       string
	MemoryID string
	Chunk    string
	Vector   []float32
}

// Match is one nearest-neighbor search result.
type Match struct {
	Record   Record
	Distance float64 // cosine distance: 0 = identical, 2 = opposite
}

// Store embeds and searches chunk vectors.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	DeleteByMemory(ctx context.Context, memoryID string) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	// QueryExcluding is Query restricted to exclude chunks belonging to
	// excludeMemoryID, used by connection synthesis to find neighbors of
	// a memory other than itself.
	QueryExcluding(ctx context.Context, vector []float32, topK int, excludeMemoryID string) ([]Match, error)
}
