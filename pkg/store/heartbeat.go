package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// RecordCheckin inserts a HeartbeatCheckin, the proof-of-life event that
// resets the escalation state machine.
func (s *Store) RecordCheckin(ctx context.Context, ownerID string) (domain.HeartbeatCheckin, error) {
	c := domain.HeartbeatCheckin{ID: newULID(), OwnerID: ownerID, CheckedInAt: nowUTC()}
	_, err := s.db.ExecContext(ctx, "INSERT INTO heartbeat_checkins (id, owner_id, checked_in_at) VALUES (?,?,?)",
		c.ID, c.OwnerID, c.CheckedInAt)
	if err != nil {
		return domain.HeartbeatCheckin{}, fmt.Errorf("store: record checkin: %w", err)
	}
	return c, nil
}

// LastCheckin returns the most recent HeartbeatCheckin for owner.
func (s *Store) LastCheckin(ctx context.Context, ownerID string) (domain.HeartbeatCheckin, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, checked_in_at FROM heartbeat_checkins
		WHERE owner_id = ? ORDER BY checked_in_at DESC LIMIT 1`, ownerID)
	var c domain.HeartbeatCheckin
	err := row.Scan(&c.ID, &c.OwnerID, &c.CheckedInAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HeartbeatCheckin{}, fmt.Errorf("store: last checkin: %w", merr.ErrNotFound)
	}
	if err != nil {
		return domain.HeartbeatCheckin{}, fmt.Errorf("store: last checkin: %w", err)
	}
	return c, nil
}

// RecordAlert inserts a HeartbeatAlert. It is idempotent on
// (OwnerID, Level, TriggerDay): a duplicate insert for the same day and
// level is a silent no-op, reported back via Sent=false so the caller can
// skip re-dispatching the notification.
func (s *Store) RecordAlert(ctx context.Context, a domain.HeartbeatAlert) (sent bool, err error) {
	if a.ID == "" {
		a.ID = newULID()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_alerts (id, owner_id, level, trigger_day, sent_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (owner_id, level, trigger_day) DO NOTHING`,
		a.ID, a.OwnerID, string(a.Level), a.TriggerDay, a.SentAt)
	if err != nil {
		return false, fmt.Errorf("store: record alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// HighestAlertLevel returns the highest EscalationLevel alerted for owner
// since the last check-in, or EscalationFresh if none.
func (s *Store) HighestAlertLevel(ctx context.Context, ownerID string, since domain.HeartbeatCheckin) (domain.EscalationLevel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT level FROM heartbeat_alerts WHERE owner_id = ? AND sent_at >= ?", ownerID, since.CheckedInAt)
	if err != nil {
		return "", fmt.Errorf("store: highest alert level: %w", err)
	}
	defer rows.Close()

	highest := domain.EscalationFresh
	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return "", fmt.Errorf("store: scan alert level: %w", err)
		}
		l := domain.EscalationLevel(level)
		if l.Rank() > highest.Rank() {
			highest = l
		}
	}
	return highest, rows.Err()
}
