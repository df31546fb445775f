package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// EnsureLoopState inserts a LoopState row for name if one doesn't already
// exist, defaulting to enabled with nextRunAt due immediately.
func (s *Store) EnsureLoopState(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loop_states (name, enabled, next_run_at, consecutive_fails)
		VALUES (?, 1, ?, 0)
		ON CONFLICT (name) DO NOTHING`, name, nowUTC())
	if err != nil {
		return fmt.Errorf("store: ensure loop state: %w", err)
	}
	return nil
}

// GetLoopState returns the LoopState row for name.
func (s *Store) GetLoopState(ctx context.Context, name string) (domain.LoopState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, enabled, last_run_at, next_run_at, consecutive_fails, last_error, claimed_at, claim_token
		FROM loop_states WHERE name = ?`, name)
	var ls domain.LoopState
	var enabled int
	var lastRunAt, claimedAt sql.NullTime
	err := row.Scan(&ls.Name, &enabled, &lastRunAt, &ls.NextRunAt, &ls.ConsecutiveFails, &ls.LastError, &claimedAt, &ls.ClaimToken)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoopState{}, fmt.Errorf("store: get loop state %s: %w", name, merr.ErrNotFound)
	}
	if err != nil {
		return domain.LoopState{}, fmt.Errorf("store: get loop state %s: %w", name, err)
	}
	ls.Enabled = enabled != 0
	ls.LastRunAt = timePtr(lastRunAt)
	ls.ClaimedAt = timePtr(claimedAt)
	return ls, nil
}

// ClaimLoop compare-and-swaps a LoopState into the claimed state: it
// succeeds only if the loop is enabled, due (next_run_at <= now), and not
// already claimed. This is what guarantees at-most-one-in-flight run per
// named loop across however many scheduler instances are polling it.
func (s *Store) ClaimLoop(ctx context.Context, name string, now time.Time) (token string, ok bool, err error) {
	token = uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
		UPDATE loop_states SET claimed_at = ?, claim_token = ?
		WHERE name = ? AND enabled = 1 AND claimed_at IS NULL AND next_run_at <= ?`,
		now, token, name, now)
	if err != nil {
		return "", false, fmt.Errorf("store: claim loop %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return token, n > 0, nil
}

// ReleaseLoop clears a claim and records the outcome of the run. On
// success consecutive_fails resets to 0; on failure it increments, and
// the caller (pkg/scheduler) is responsible for disabling the loop once
// the configured failure ceiling is reached.
func (s *Store) ReleaseLoop(ctx context.Context, name, token string, ranAt time.Time, nextRunAt time.Time, runErr error) error {
	if runErr == nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE loop_states SET claimed_at = NULL, claim_token = '', last_run_at = ?, next_run_at = ?,
				consecutive_fails = 0, last_error = ''
			WHERE name = ? AND claim_token = ?`, ranAt, nextRunAt, name, token)
		if err != nil {
			return fmt.Errorf("store: release loop %s: %w", name, err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE loop_states SET claimed_at = NULL, claim_token = '', next_run_at = ?,
			consecutive_fails = consecutive_fails + 1, last_error = ?
		WHERE name = ? AND claim_token = ?`, nextRunAt, runErr.Error(), name, token)
	if err != nil {
		return fmt.Errorf("store: release loop %s: %w", name, err)
	}
	return nil
}

// DisableLoop turns a loop off, e.g. after it exceeds the configured
// consecutive-failure ceiling.
func (s *Store) DisableLoop(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE loop_states SET enabled = 0 WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("store: disable loop %s: %w", name, err)
	}
	return nil
}
