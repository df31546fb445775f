package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// palette is the fixed set of colors assigned to tags in creation order,
// so a tag's color stays stable once assigned instead of being re-rolled.
var palette = []string{
	"#e07a5f", "#3d405b", "#81b29a", "#f2cc8f", "#6b705c",
	"#b56576", "#355070", "#6d597a", "#eaac8b", "#355c7d",
}

// GetOrCreateTag returns the Tag named name for owner, normalizing the
// name (trim + lowercase) and creating it with the next palette color if
// it doesn't already exist.
func (s *Store) GetOrCreateTag(ctx context.Context, ownerID, name string) (domain.Tag, error) {
	normalized := blindindex.Normalize(name)
	if normalized == "" {
		return domain.Tag{}, fmt.Errorf("store: get or create tag: %w: empty name", merr.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, "SELECT id, owner_id, name, color, created_at FROM tags WHERE owner_id = ? AND name = ?", ownerID, normalized)
	var t domain.Tag
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Color, &t.CreatedAt)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Tag{}, fmt.Errorf("store: get tag: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags WHERE owner_id = ?", ownerID).Scan(&count); err != nil {
		return domain.Tag{}, fmt.Errorf("store: count tags: %w", err)
	}
	color := palette[count%len(palette)]

	t = domain.Tag{ID: newULID(), OwnerID: ownerID, Name: normalized, Color: color, CreatedAt: nowUTC()}
	_, err = s.db.ExecContext(ctx, "INSERT INTO tags (id, owner_id, name, color, created_at) VALUES (?,?,?,?,?)",
		t.ID, t.OwnerID, t.Name, t.Color, t.CreatedAt)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("store: insert tag: %w", err)
	}
	return t, nil
}

// ListTags returns every Tag for owner.
func (s *Store) ListTags(ctx context.Context, ownerID string) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, owner_id, name, color, created_at FROM tags WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	defer rows.Close()
	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LinkMemoryTag attaches tagID to memoryID, idempotently.
func (s *Store) LinkMemoryTag(ctx context.Context, memoryID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_tags (memory_id, tag_id, created_at) VALUES (?,?,?)
		ON CONFLICT (memory_id, tag_id) DO NOTHING`, memoryID, tagID, nowUTC())
	if err != nil {
		return fmt.Errorf("store: link memory tag: %w", err)
	}
	return nil
}

// UnlinkMemoryTag detaches tagID from memoryID.
func (s *Store) UnlinkMemoryTag(ctx context.Context, memoryID, tagID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memory_tags WHERE memory_id = ? AND tag_id = ?", memoryID, tagID)
	if err != nil {
		return fmt.Errorf("store: unlink memory tag: %w", err)
	}
	return nil
}

// CreatePerson inserts a new Person. isSelf marks the owner's own row,
// created exactly once by pkg/store's owner-profile setup.
func (s *Store) CreatePerson(ctx context.Context, ownerID, name string, isSelf bool) (domain.Person, error) {
	p := domain.Person{ID: newULID(), OwnerID: ownerID, Name: name, IsSelf: isSelf, CreatedAt: nowUTC()}
	_, err := s.db.ExecContext(ctx, "INSERT INTO persons (id, owner_id, name, is_self, created_at) VALUES (?,?,?,?,?)",
		p.ID, p.OwnerID, p.Name, boolToInt(p.IsSelf), p.CreatedAt)
	if err != nil {
		return domain.Person{}, fmt.Errorf("store: create person: %w", err)
	}
	return p, nil
}

// ListPersons returns every Person for owner.
func (s *Store) ListPersons(ctx context.Context, ownerID string) ([]domain.Person, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, owner_id, name, is_self, created_at FROM persons WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list persons: %w", err)
	}
	defer rows.Close()
	var out []domain.Person
	for rows.Next() {
		var p domain.Person
		var isSelf int
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &isSelf, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan person: %w", err)
		}
		p.IsSelf = isSelf != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// LinkMemoryPersonResult reports whether LinkMemoryPerson created a new
// row or found the (memoryID, personID, provenance) triple already
// present.
type LinkMemoryPersonResult struct {
	Created bool
}

// LinkMemoryPerson attaches personID to memoryID under provenance.
// Re-linking an already-existing (memoryID, personID, provenance) triple
// is idempotent success, not a conflict — DESIGN.md Open Question
// decision #3.
func (s *Store) LinkMemoryPerson(ctx context.Context, memoryID, personID string, provenance domain.Provenance) (LinkMemoryPersonResult, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_persons (memory_id, person_id, provenance, created_at) VALUES (?,?,?,?)
		ON CONFLICT (memory_id, person_id, provenance) DO NOTHING`,
		memoryID, personID, string(provenance), nowUTC())
	if err != nil {
		return LinkMemoryPersonResult{}, fmt.Errorf("store: link memory person: %w", err)
	}
	n, _ := res.RowsAffected()
	return LinkMemoryPersonResult{Created: n > 0}, nil
}
