package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// InsertMemory inserts a new Memory row inside tx. Callers run this as
// part of the ingestion transaction (pkg/ingest) alongside the Source and
// SearchToken inserts so a Memory never exists without its tokens.
func InsertMemory(ctx context.Context, tx *sql.Tx, m domain.Memory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, owner_id,
			title_envelope_id, title_ciphertext, title_wrapped_dek, title_algo_tag, title_version,
			body_envelope_id, body_ciphertext, body_wrapped_dek, body_algo_tag, body_version,
			latitude, longitude, captured_at, created_at, updated_at, archived_at
		) VALUES (?,?, ?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?,?)`,
		m.ID, m.OwnerID,
		m.Title.ID, m.Title.Ciphertext, m.Title.WrappedDEK, m.Title.AlgoTag, m.Title.Version,
		m.Body.ID, m.Body.Ciphertext, m.Body.WrappedDEK, m.Body.AlgoTag, m.Body.Version,
		nullFloat(m.Latitude), nullFloat(m.Longitude), m.CapturedAt, m.CreatedAt, m.UpdatedAt, nullTime(m.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert memory: %w", err)
	}
	return nil
}

func scanMemory(row interface {
	Scan(dest ...any) error
}) (domain.Memory, error) {
	var m domain.Memory
	var lat, lon sql.NullFloat64
	var archivedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.OwnerID,
		&m.Title.ID, &m.Title.Ciphertext, &m.Title.WrappedDEK, &m.Title.AlgoTag, &m.Title.Version,
		&m.Body.ID, &m.Body.Ciphertext, &m.Body.WrappedDEK, &m.Body.AlgoTag, &m.Body.Version,
		&lat, &lon, &m.CapturedAt, &m.CreatedAt, &m.UpdatedAt, &archivedAt,
	)
	if err != nil {
		return domain.Memory{}, err
	}
	m.Latitude = floatPtr(lat)
	m.Longitude = floatPtr(lon)
	m.ArchivedAt = timePtr(archivedAt)
	return m, nil
}

const memoryColumns = `
	id, owner_id,
	title_envelope_id, title_ciphertext, title_wrapped_dek, title_algo_tag, title_version,
	body_envelope_id, body_ciphertext, body_wrapped_dek, body_algo_tag, body_version,
	latitude, longitude, captured_at, created_at, updated_at, archived_at`

// GetMemory fetches one Memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (domain.Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id = ?", id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Memory{}, fmt.Errorf("store: get memory %s: %w", id, merr.ErrNotFound)
	}
	if err != nil {
		return domain.Memory{}, fmt.Errorf("store: get memory %s: %w", id, err)
	}
	return m, nil
}

// ListMemories returns memories matching f, most recently captured first.
func (s *Store) ListMemories(ctx context.Context, f domain.ListFilter) ([]domain.Memory, error) {
	var b strings.Builder
	b.WriteString("SELECT " + memoryColumns + " FROM memories WHERE owner_id = ?")
	args := []any{f.OwnerID}

	if f.HasLocation != nil {
		if *f.HasLocation {
			b.WriteString(" AND latitude IS NOT NULL AND longitude IS NOT NULL")
		} else {
			b.WriteString(" AND NOT (latitude IS NOT NULL AND longitude IS NOT NULL)")
		}
	}
	if f.From != nil {
		b.WriteString(" AND captured_at >= ?")
		args = append(args, *f.From)
	}
	if f.Until != nil {
		b.WriteString(" AND captured_at <= ?")
		args = append(args, *f.Until)
	}
	for _, tagID := range f.TagIDs {
		b.WriteString(" AND id IN (SELECT memory_id FROM memory_tags WHERE tag_id = ?)")
		args = append(args, tagID)
	}
	for _, personID := range f.PersonIDs {
		b.WriteString(" AND id IN (SELECT memory_id FROM memory_persons WHERE person_id = ?)")
		args = append(args, personID)
	}
	b.WriteString(" ORDER BY captured_at DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
		if f.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer rows.Close()

	var out []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMemoryTitle atomically replaces a Memory's title envelope and its
// title search tokens in one transaction — there is no API to update one
// without the other (DESIGN.md Open Question decision #4).
func (s *Store) UpdateMemoryTitle(ctx context.Context, memoryID string, newTitle domain.Envelope, newTokens []domain.SearchToken) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memories SET
				title_envelope_id = ?, title_ciphertext = ?, title_wrapped_dek = ?,
				title_algo_tag = ?, title_version = ?, updated_at = ?
			WHERE id = ?`,
			newTitle.ID, newTitle.Ciphertext, newTitle.WrappedDEK, newTitle.AlgoTag, newTitle.Version, time.Now(), memoryID)
		if err != nil {
			return fmt.Errorf("update title: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return merr.ErrNotFound
		}
		return replaceSearchTokensTx(ctx, tx, memoryID, domain.FieldTitle, newTokens)
	})
}

// UpdateMemoryBody atomically replaces a Memory's body envelope and its
// body search tokens in one transaction.
func (s *Store) UpdateMemoryBody(ctx context.Context, memoryID string, newBody domain.Envelope, newTokens []domain.SearchToken) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memories SET
				body_envelope_id = ?, body_ciphertext = ?, body_wrapped_dek = ?,
				body_algo_tag = ?, body_version = ?, updated_at = ?
			WHERE id = ?`,
			newBody.ID, newBody.Ciphertext, newBody.WrappedDEK, newBody.AlgoTag, newBody.Version, time.Now(), memoryID)
		if err != nil {
			return fmt.Errorf("update body: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return merr.ErrNotFound
		}
		return replaceSearchTokensTx(ctx, tx, memoryID, domain.FieldBody, newTokens)
	})
}

// UpdateMemoryLocation sets or clears a Memory's coordinates.
func (s *Store) UpdateMemoryLocation(ctx context.Context, memoryID string, lat, lon *float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
		nullFloat(lat), nullFloat(lon), time.Now(), memoryID)
	if err != nil {
		return fmt.Errorf("store: update memory location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: update memory location: %w", merr.ErrNotFound)
	}
	return nil
}

// ArchiveMemory sets ArchivedAt to now.
func (s *Store) ArchiveMemory(ctx context.Context, memoryID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE memories SET archived_at = ? WHERE id = ?", time.Now(), memoryID)
	if err != nil {
		return fmt.Errorf("store: archive memory: %w", err)
	}
	return nil
}

// DeleteMemory removes a Memory and, via ON DELETE CASCADE, every Source,
// SearchToken, Connection, MemoryTag, MemoryPerson, and Suggestion row
// that references it.
func (s *Store) DeleteMemory(ctx context.Context, memoryID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", memoryID)
	if err != nil {
		return fmt.Errorf("store: delete memory: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
