package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGStore is a Postgres+pgvector-backed Store. Grounded on the pack's own
// use of jackc/pgx/v5 + pgvector/pgvector-go (other_examples/manifests/
// MrWong99-glyphoxa, other_examples/manifests/and161185-goph-keeper).
type PGStore struct {
	pool *pgxpool.Pool
}

// Open connects to a Postgres instance with the pgvector extension
// enabled and ensures the chunk_embeddings table/index exist for the
// given vector dimension.
func Open(ctx context.Context, dsn string, dim int) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.migrate(ctx, dim); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: migrate: %w", err)
	}
	return s, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) migrate(ctx context.Context, dim int) error {
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_embeddings (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			chunk TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, dim))
	if err != nil {
		return fmt.Errorf("create chunk_embeddings table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_cosine
		ON chunk_embeddings USING ivfflat (embedding vector_cosine_ops)`)
	if err != nil {
		return fmt.Errorf("create cosine index: %w", err)
	}
	return nil
}

func (s *PGStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chunk_embeddings (id, memory_id, chunk, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET chunk = excluded.chunk, embedding = excluded.embedding`,
		rec.ID, rec.MemoryID, rec.Chunk, pgvector.NewVector(rec.Vector))
	if err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteByMemory(ctx context.Context, memoryID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM chunk_embeddings WHERE memory_id = $1", memoryID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete by memory: %w", err)
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	return s.query(ctx, vector, topK, "")
}

func (s *PGStore) QueryExcluding(ctx context.Context, vector []float32, topK int, excludeMemoryID string) ([]Match, error) {
	return s.query(ctx, vector, topK, excludeMemoryID)
}

func (s *PGStore) query(ctx context.Context, vector []float32, topK int, excludeMemoryID string) ([]Match, error) {
	q := `
		SELECT id, memory_id, chunk, embedding, embedding <=> $1 AS distance
		FROM chunk_embeddings`
	args := []any{pgvector.NewVector(vector)}
	if excludeMemoryID != "" {
		q += " WHERE memory_id != $2"
		args = append(args, excludeMemoryID)
	}
	q += " ORDER BY distance LIMIT " + fmt.Sprint(topK)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var rec Record
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(&rec.ID, &rec.MemoryID, &rec.Chunk, &vec, &distance); err != nil {
			return nil, fmt.Errorf("vectorstore: scan match: %w", err)
		}
		rec.Vector = vec.Slice()
		out = append(out, Match{Record: rec, Distance: distance})
	}
	return out, rows.Err()
}
