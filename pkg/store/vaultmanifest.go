package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/merr"
)

// VaultManifestEntry records one file written to the vault: its digest,
// size, preservation format, and wrapped per-file key, so the
// integrity-audit job can compare what the database expects against what
// is actually on disk and decrypt it to check. Digest is the sha256 of
// the archival plaintext actually written to the vault (post-conversion),
// not the Source's dedup digest (which is computed from the original,
// pre-conversion bytes) — the two differ whenever the source needed
// archival conversion.
type VaultManifestEntry struct {
	VaultPath          string
	MemoryID           string
	SourceID           string
	Digest             string
	ByteSize           int64
	PreservationFormat string
	WrappedDEK         []byte
	AlgoTag            string
}

// PutVaultManifestEntryTx inserts or replaces a manifest row, inside tx as
// part of the ingestion transaction.
func PutVaultManifestEntryTx(ctx context.Context, tx *sql.Tx, e VaultManifestEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vault_manifest (vault_path, memory_id, source_id, digest, byte_size, preservation_format, file_dek_wrapped, file_dek_algo_tag, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (vault_path) DO UPDATE SET
			digest = excluded.digest, byte_size = excluded.byte_size, preservation_format = excluded.preservation_format,
			file_dek_wrapped = excluded.file_dek_wrapped, file_dek_algo_tag = excluded.file_dek_algo_tag`,
		e.VaultPath, e.MemoryID, e.SourceID, e.Digest, e.ByteSize, e.PreservationFormat, e.WrappedDEK, e.AlgoTag, nowUTC())
	if err != nil {
		return fmt.Errorf("store: put vault manifest entry: %w", err)
	}
	return nil
}

// GetVaultManifestEntry looks up one manifest row by vault path.
func (s *Store) GetVaultManifestEntry(ctx context.Context, vaultPath string) (VaultManifestEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT vault_path, memory_id, source_id, digest, byte_size, preservation_format, file_dek_wrapped, file_dek_algo_tag
		FROM vault_manifest WHERE vault_path = ?`, vaultPath)
	var e VaultManifestEntry
	err := row.Scan(&e.VaultPath, &e.MemoryID, &e.SourceID, &e.Digest, &e.ByteSize, &e.PreservationFormat, &e.WrappedDEK, &e.AlgoTag)
	if errors.Is(err, sql.ErrNoRows) {
		return VaultManifestEntry{}, fmt.Errorf("store: get vault manifest entry: %w", merr.ErrNotFound)
	}
	if err != nil {
		return VaultManifestEntry{}, fmt.Errorf("store: get vault manifest entry: %w", err)
	}
	return e, nil
}

// ListVaultManifest returns every manifest row, used by the integrity
// audit to walk all expected files.
func (s *Store) ListVaultManifest(ctx context.Context) ([]VaultManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vault_path, memory_id, source_id, digest, byte_size, preservation_format, file_dek_wrapped, file_dek_algo_tag FROM vault_manifest`)
	if err != nil {
		return nil, fmt.Errorf("store: list vault manifest: %w", err)
	}
	defer rows.Close()

	var out []VaultManifestEntry
	for rows.Next() {
		var e VaultManifestEntry
		if err := rows.Scan(&e.VaultPath, &e.MemoryID, &e.SourceID, &e.Digest, &e.ByteSize, &e.PreservationFormat, &e.WrappedDEK, &e.AlgoTag); err != nil {
			return nil, fmt.Errorf("store: scan vault manifest entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
