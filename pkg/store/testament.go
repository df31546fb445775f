package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// SaveTestamentConfig inserts or replaces the single TestamentConfig row
// for owner.
func (s *Store) SaveTestamentConfig(ctx context.Context, cfg domain.TestamentConfig) (domain.TestamentConfig, error) {
	if cfg.ID == "" {
		cfg.ID = newULID()
		cfg.CreatedAt = nowUTC()
	}
	cfg.UpdatedAt = nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO testament_configs (
			id, owner_id, threshold, total_shares, checkin_interval_days,
			reminder_after_days, urgent_after_days, emergency_after_days,
			keyholders_after_days, inheritance_after_days, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (owner_id) DO UPDATE SET
			threshold = excluded.threshold,
			total_shares = excluded.total_shares,
			checkin_interval_days = excluded.checkin_interval_days,
			reminder_after_days = excluded.reminder_after_days,
			urgent_after_days = excluded.urgent_after_days,
			emergency_after_days = excluded.emergency_after_days,
			keyholders_after_days = excluded.keyholders_after_days,
			inheritance_after_days = excluded.inheritance_after_days,
			updated_at = excluded.updated_at`,
		cfg.ID, cfg.OwnerID, cfg.Threshold, cfg.TotalShares, cfg.CheckinIntervalDays,
		cfg.ReminderAfterDays, cfg.UrgentAfterDays, cfg.EmergencyAfterDays,
		cfg.KeyholdersAfterDays, cfg.InheritanceAfterDays, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return domain.TestamentConfig{}, fmt.Errorf("store: save testament config: %w", err)
	}
	return cfg, nil
}

// GetTestamentConfig returns the owner's TestamentConfig.
func (s *Store) GetTestamentConfig(ctx context.Context, ownerID string) (domain.TestamentConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, threshold, total_shares, checkin_interval_days,
			reminder_after_days, urgent_after_days, emergency_after_days,
			keyholders_after_days, inheritance_after_days, created_at, updated_at
		FROM testament_configs WHERE owner_id = ?`, ownerID)
	var c domain.TestamentConfig
	err := row.Scan(&c.ID, &c.OwnerID, &c.Threshold, &c.TotalShares, &c.CheckinIntervalDays,
		&c.ReminderAfterDays, &c.UrgentAfterDays, &c.EmergencyAfterDays,
		&c.KeyholdersAfterDays, &c.InheritanceAfterDays, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TestamentConfig{}, fmt.Errorf("store: get testament config: %w", merr.ErrNotFound)
	}
	if err != nil {
		return domain.TestamentConfig{}, fmt.Errorf("store: get testament config: %w", err)
	}
	return c, nil
}

// AddHeir inserts a new Heir grant.
func (s *Store) AddHeir(ctx context.Context, h domain.Heir) (domain.Heir, error) {
	h.ID = newULID()
	h.GrantedAt = nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heirs (id, owner_id, person_id, share_index, email, granted_at, revoked_at)
		VALUES (?,?,?,?,?,?,NULL)`,
		h.ID, h.OwnerID, h.PersonID, h.ShareIndex, h.Email, h.GrantedAt)
	if err != nil {
		return domain.Heir{}, fmt.Errorf("store: add heir: %w", err)
	}
	return h, nil
}

// RevokeHeir marks a Heir grant revoked.
func (s *Store) RevokeHeir(ctx context.Context, heirID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE heirs SET revoked_at = ? WHERE id = ?", nowUTC(), heirID)
	if err != nil {
		return fmt.Errorf("store: revoke heir: %w", err)
	}
	return nil
}

// ListHeirs returns every non-revoked Heir for owner.
func (s *Store) ListHeirs(ctx context.Context, ownerID string) ([]domain.Heir, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, person_id, share_index, email, granted_at, revoked_at
		FROM heirs WHERE owner_id = ? AND revoked_at IS NULL`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list heirs: %w", err)
	}
	defer rows.Close()

	var out []domain.Heir
	for rows.Next() {
		var h domain.Heir
		var revokedAt sql.NullTime
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.PersonID, &h.ShareIndex, &h.Email, &h.GrantedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("store: scan heir: %w", err)
		}
		h.RevokedAt = timePtr(revokedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// AppendAuditLog inserts an append-only AuditLog row.
func (s *Store) AppendAuditLog(ctx context.Context, a domain.AuditLog) (domain.AuditLog, error) {
	a.ID = newULID()
	a.CreatedAt = nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, owner_id, actor_id, action, detail, created_at)
		VALUES (?,?,?,?,?,?)`,
		a.ID, a.OwnerID, a.ActorID, string(a.Action), a.Detail, a.CreatedAt)
	if err != nil {
		return domain.AuditLog{}, fmt.Errorf("store: append audit log: %w", err)
	}
	return a, nil
}

// ListAuditLog returns every AuditLog row for owner, oldest first.
func (s *Store) ListAuditLog(ctx context.Context, ownerID string) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, actor_id, action, detail, created_at
		FROM audit_logs WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var action string
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.ActorID, &action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit log: %w", err)
		}
		a.Action = domain.AuditAction(action)
		out = append(out, a)
	}
	return out, rows.Err()
}
