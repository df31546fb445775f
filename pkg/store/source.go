package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
)

// InsertSourceTx inserts a Source row inside an existing transaction.
func InsertSourceTx(ctx context.Context, tx *sql.Tx, src domain.Source) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sources (id, memory_id, kind, filename, mime_type, byte_size, encrypted_size, vault_path, digest, preservation_format, file_dek_wrapped, file_dek_algo_tag, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		src.ID, src.MemoryID, string(src.Kind), src.Filename, src.MIMEType, src.ByteSize, src.EncryptedSize, src.VaultPath, src.Digest, src.PreservationFormat, src.FileDEKWrapped, src.FileDEKAlgoTag, src.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert source: %w", err)
	}
	return nil
}

// FindSourceByDigest returns the Source whose content digest matches, used
// by pkg/ingest to short-circuit re-ingesting identical bytes.
func (s *Store) FindSourceByDigest(ctx context.Context, digest string) (domain.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, kind, filename, mime_type, byte_size, encrypted_size, vault_path, digest, preservation_format, file_dek_wrapped, file_dek_algo_tag, created_at
		FROM sources WHERE digest = ? LIMIT 1`, digest)
	var src domain.Source
	var kind string
	err := row.Scan(&src.ID, &src.MemoryID, &kind, &src.Filename, &src.MIMEType, &src.ByteSize, &src.EncryptedSize, &src.VaultPath, &src.Digest, &src.PreservationFormat, &src.FileDEKWrapped, &src.FileDEKAlgoTag, &src.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("store: find source by digest: %w", merr.ErrNotFound)
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("store: find source by digest: %w", err)
	}
	src.Kind = domain.SourceKind(kind)
	return src, nil
}

// ListSourcesForMemory returns every Source row attached to memoryID.
func (s *Store) ListSourcesForMemory(ctx context.Context, memoryID string) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, kind, filename, mime_type, byte_size, encrypted_size, vault_path, digest, preservation_format, file_dek_wrapped, file_dek_algo_tag, created_at
		FROM sources WHERE memory_id = ?`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var src domain.Source
		var kind string
		if err := rows.Scan(&src.ID, &src.MemoryID, &kind, &src.Filename, &src.MIMEType, &src.ByteSize, &src.EncryptedSize, &src.VaultPath, &src.Digest, &src.PreservationFormat, &src.FileDEKWrapped, &src.FileDEKAlgoTag, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan source: %w", err)
		}
		src.Kind = domain.SourceKind(kind)
		out = append(out, src)
	}
	return out, rows.Err()
}

// ListAllVaultPaths returns every non-empty vault_path across all sources,
// used by pkg/vault's integrity audit to detect orphaned files.
func (s *Store) ListAllVaultPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT vault_path FROM sources WHERE vault_path != ''")
	if err != nil {
		return nil, fmt.Errorf("store: list vault paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan vault path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
