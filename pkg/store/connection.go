package store

import (
	"context"
	"fmt"

	"github.com/mnemos/mnemos/pkg/domain"
)

// UpsertConnection inserts c, or is a no-op if a Connection already
// exists for (SourceMemoryID, TargetMemoryID, Kind, Provenance) — the
// idempotency the connection-synthesis job relies on to avoid duplicate
// edges across repeated runs.
func (s *Store) UpsertConnection(ctx context.Context, c domain.Connection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, source_memory_id, target_memory_id, kind, provenance, confidence, explanation, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (source_memory_id, target_memory_id, kind, provenance) DO NOTHING`,
		c.ID, c.SourceMemoryID, c.TargetMemoryID, string(c.Kind), string(c.Provenance), c.Confidence, c.Explanation, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert connection: %w", err)
	}
	return nil
}

// ListConnectionsForMemory returns every Connection where memoryID is
// either endpoint.
func (s *Store) ListConnectionsForMemory(ctx context.Context, memoryID string) ([]domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_memory_id, target_memory_id, kind, provenance, confidence, explanation, created_at
		FROM connections WHERE source_memory_id = ? OR target_memory_id = ?`, memoryID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("store: list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		var c domain.Connection
		var kind, prov string
		if err := rows.Scan(&c.ID, &c.SourceMemoryID, &c.TargetMemoryID, &kind, &prov, &c.Confidence, &c.Explanation, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan connection: %w", err)
		}
		c.Kind, c.Provenance = domain.ConnectionKind(kind), domain.Provenance(prov)
		out = append(out, c)
	}
	return out, rows.Err()
}
