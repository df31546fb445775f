package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/session"
)

// LoadCredentials implements session.CredentialStore.
func (s *Store) LoadCredentials(ctx context.Context) (session.Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT salt, time_cost, memory_kib, parallelism, verifier_wrapped
		FROM credentials WHERE id = 1`)

	var c session.Credentials
	var timeCost, memKiB uint32
	var parallelism uint8
	if err := row.Scan(&c.Salt, &timeCost, &memKiB, &parallelism, &c.VerifierWrapped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Credentials{}, fmt.Errorf("store: load credentials: %w", merr.ErrNotFound)
		}
		return session.Credentials{}, fmt.Errorf("store: load credentials: %w", err)
	}
	c.Params = crypto.Argon2Params{TimeCost: timeCost, MemoryKiB: memKiB, Parallelism: parallelism}
	return c, nil
}

// SaveCredentials implements session.CredentialStore.
func (s *Store) SaveCredentials(ctx context.Context, c session.Credentials) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, salt, time_cost, memory_kib, parallelism, verifier_wrapped)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			salt = excluded.salt,
			time_cost = excluded.time_cost,
			memory_kib = excluded.memory_kib,
			parallelism = excluded.parallelism,
			verifier_wrapped = excluded.verifier_wrapped`,
		c.Salt, c.Params.TimeCost, c.Params.MemoryKiB, c.Params.Parallelism, c.VerifierWrapped)
	if err != nil {
		return fmt.Errorf("store: save credentials: %w", err)
	}
	return nil
}
