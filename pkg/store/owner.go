package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// CreateOwnerProfile creates the single OwnerProfile row and its self
// Person row together, so every installation's first write establishes
// "myself" as a linkable Person from the start.
func (s *Store) CreateOwnerProfile(ctx context.Context, displayName string) (domain.OwnerProfile, error) {
	var out domain.OwnerProfile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		self := domain.Person{ID: newULID(), Name: displayName, IsSelf: true, CreatedAt: nowUTC()}
		owner := domain.OwnerProfile{
			ID: newULID(), DisplayName: displayName, SelfPersonID: self.ID,
			CreatedAt: nowUTC(), UpdatedAt: nowUTC(),
		}
		self.OwnerID = owner.ID

		if _, err := tx.ExecContext(ctx, "INSERT INTO persons (id, owner_id, name, is_self, created_at) VALUES (?,?,?,?,?)",
			self.ID, self.OwnerID, self.Name, boolToInt(true), self.CreatedAt); err != nil {
			return fmt.Errorf("insert self person: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO owner_profiles (id, display_name, self_person_id, created_at, updated_at) VALUES (?,?,?,?,?)",
			owner.ID, owner.DisplayName, owner.SelfPersonID, owner.CreatedAt, owner.UpdatedAt); err != nil {
			return fmt.Errorf("insert owner profile: %w", err)
		}
		out = owner
		return nil
	})
	return out, err
}

// GetOwnerProfile returns the single OwnerProfile row.
func (s *Store) GetOwnerProfile(ctx context.Context) (domain.OwnerProfile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, display_name, self_person_id, created_at, updated_at FROM owner_profiles LIMIT 1")
	var o domain.OwnerProfile
	err := row.Scan(&o.ID, &o.DisplayName, &o.SelfPersonID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OwnerProfile{}, fmt.Errorf("store: get owner profile: %w", merr.ErrNotFound)
	}
	if err != nil {
		return domain.OwnerProfile{}, fmt.Errorf("store: get owner profile: %w", err)
	}
	return o, nil
}

// UpdateOwnerDisplayName renames the owner profile.
func (s *Store) UpdateOwnerDisplayName(ctx context.Context, ownerID, displayName string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE owner_profiles SET display_name = ?, updated_at = ? WHERE id = ?",
		displayName, nowUTC(), ownerID)
	if err != nil {
		return fmt.Errorf("store: update owner display name: %w", err)
	}
	return nil
}

// CreateSuggestion inserts a new pending Suggestion.
func (s *Store) CreateSuggestion(ctx context.Context, sg domain.Suggestion) (domain.Suggestion, error) {
	sg.ID = newULID()
	sg.Status = domain.SuggestionPending
	sg.CreatedAt = nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, memory_id, kind, target_id, label, status, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		sg.ID, sg.MemoryID, string(sg.Kind), sg.TargetID, sg.Label, string(sg.Status), sg.CreatedAt)
	if err != nil {
		return domain.Suggestion{}, fmt.Errorf("store: create suggestion: %w", err)
	}
	return sg, nil
}

// ListPendingSuggestions returns every Suggestion still awaiting review.
func (s *Store) ListPendingSuggestions(ctx context.Context) ([]domain.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, kind, target_id, label, status, created_at, resolved_at
		FROM suggestions WHERE status = ? ORDER BY created_at`, string(domain.SuggestionPending))
	if err != nil {
		return nil, fmt.Errorf("store: list pending suggestions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suggestion
	for rows.Next() {
		var sg domain.Suggestion
		var kind, status string
		var resolvedAt sql.NullTime
		if err := rows.Scan(&sg.ID, &sg.MemoryID, &kind, &sg.TargetID, &sg.Label, &status, &sg.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("store: scan suggestion: %w", err)
		}
		sg.Kind, sg.Status = domain.SuggestionKind(kind), domain.SuggestionStatus(status)
		sg.ResolvedAt = timePtr(resolvedAt)
		out = append(out, sg)
	}
	return out, rows.Err()
}

// ResolveSuggestion moves a pending Suggestion to accepted or dismissed.
// The transition is terminal: resolving an already-resolved suggestion
// returns merr.ErrConflict.
func (s *Store) ResolveSuggestion(ctx context.Context, id string, status domain.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		string(status), nowUTC(), id, string(domain.SuggestionPending))
	if err != nil {
		return fmt.Errorf("store: resolve suggestion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: resolve suggestion: %w", merr.ErrConflict)
	}
	return nil
}
