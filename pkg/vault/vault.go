// Package vault implements the content-addressed encrypted file store
// (spec §4.5): a date-partitioned on-disk layout, per-file data-encryption
// keys wrapped by the session FileKey, write-to-temp-then-rename
// atomicity, archival format conversion, and a periodic integrity audit.
//
// Each file's ciphertext carries its own fresh DEK; the wrapped DEK lives
// in the caller's database row rather than in the file itself, so a
// master-key rotation only has to rewrap that one small blob per file, not
// rewrite the vault. Writes go to a scratch file first and are renamed
// into place, in the same fmt.Errorf("...: %w")-wrapped, zerolog-logged
// idiom used throughout the rest of this module.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/session"
)

// Vault writes and reads encrypted files under Root, partitioned by
// year/month of write time.
type Vault struct {
	Root string
	sess *session.Session
}

// New constructs a Vault rooted at root.
func New(root string, sess *session.Session) *Vault {
	return &Vault{Root: root, sess: sess}
}

// Digest returns the sha256 hex digest of plaintext, used both for
// content-addressed dedup (pkg/ingest) and for the manifest's integrity
// check.
func Digest(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// fileFormatVersion is the single byte prepended to every ciphertext
// written to disk, the file format's embedded algorithm tag (spec §4.5):
// it lets the inner per-file AEAD suite evolve independently of the
// FileKey-wrapping scheme recorded alongside the Source row.
const fileFormatVersion byte = 1

// WrittenFile is the result of a successful Write. WrappedDEK and AlgoTag
// are not written to disk — they belong to the caller's database row
// (domain.Source / store.VaultManifestEntry) — so that a key rotation
// only has to rewrap the stored DEK, never touch the vault file itself.
type WrittenFile struct {
	VaultPath     string // relative to Root, e.g. "2026/07/<uuid>.enc"
	Digest        string // sha256 of plaintext, pre-encryption
	ByteSize      int64  // size of plaintext
	EncryptedSize int64  // size of the ciphertext actually written to disk
	WrappedDEK    []byte // the file's DEK, sealed under the session FileKey
	AlgoTag       string
}

// Write encrypts plaintext under a fresh per-file DEK, wraps that DEK
// under the session FileKey, and writes the ciphertext to a fresh
// date-partitioned path, atomically (temp file in the same directory,
// then os.Rename). aad binds both layers of ciphertext to the owning
// Source's id.
func (v *Vault) Write(plaintext []byte, aad []byte) (WrittenFile, error) {
	keys, err := v.sess.Keys()
	if err != nil {
		return WrittenFile{}, err
	}
	v.sess.Touch()

	dek, err := crypto.GenerateKey()
	if err != nil {
		return WrittenFile{}, fmt.Errorf("vault: generate dek: %w", err)
	}
	defer crypto.Zero(dek)

	ciphertext, err := crypto.Seal(dek, plaintext, aad)
	if err != nil {
		return WrittenFile{}, fmt.Errorf("vault: seal: %w", err)
	}
	wrappedDEK, err := crypto.Seal(keys.FileKey, dek, aad)
	if err != nil {
		return WrittenFile{}, fmt.Errorf("vault: wrap dek: %w", err)
	}

	now := time.Now().UTC()
	relDir := filepath.Join(fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()))
	absDir := filepath.Join(v.Root, relDir)
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return WrittenFile{}, fmt.Errorf("vault: mkdir %s: %w", absDir, err)
	}

	filename := uuid.NewString() + ".enc"
	relPath := filepath.Join(relDir, filename)
	absPath := filepath.Join(v.Root, relPath)

	fileBytes := make([]byte, 0, len(ciphertext)+1)
	fileBytes = append(fileBytes, fileFormatVersion)
	fileBytes = append(fileBytes, ciphertext...)

	tmp := absPath + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, fileBytes, 0o600); err != nil {
		return WrittenFile{}, fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return WrittenFile{}, fmt.Errorf("vault: rename into place: %w", err)
	}

	log.WithComponent("vault").Info().Str("path", relPath).Int("bytes", len(plaintext)).Msg("wrote vault file")
	return WrittenFile{
		VaultPath:     relPath,
		Digest:        Digest(plaintext),
		ByteSize:      int64(len(plaintext)),
		EncryptedSize: int64(len(fileBytes)),
		WrappedDEK:    wrappedDEK,
		AlgoTag:       string(crypto.AlgoAES256GCM),
	}, nil
}

// Read decrypts the file at relPath. wrappedDEK is the file's DEK as
// returned by Write (or as stored against the owning Source/manifest
// row), sealed under the session FileKey.
func (v *Vault) Read(ctx context.Context, relPath string, aad []byte, wrappedDEK []byte) ([]byte, error) {
	keys, err := v.sess.Keys()
	if err != nil {
		return nil, err
	}
	v.sess.Touch()

	absPath := filepath.Join(v.Root, relPath)
	raw, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("vault: read %s: %w", relPath, merr.ErrNotFound)
		}
		return nil, fmt.Errorf("vault: read %s: %w", relPath, err)
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("vault: read %s: %w: empty file", relPath, merr.ErrIntegrity)
	}
	if raw[0] != fileFormatVersion {
		return nil, fmt.Errorf("vault: read %s: %w: unsupported file format version %d", relPath, merr.ErrIntegrity, raw[0])
	}
	ciphertext := raw[1:]

	dek, err := crypto.Open(keys.FileKey, wrappedDEK, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: unwrap dek %s: %w", relPath, merr.ErrIntegrity)
	}
	defer crypto.Zero(dek)

	plaintext, err := crypto.Open(dek, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt %s: %w", relPath, merr.ErrIntegrity)
	}
	return plaintext, nil
}

// RewrapFileDEK unwraps wrappedDEK under oldFileKey and reseals it under
// newFileKey, without touching the vault file's ciphertext at all. This
// is what makes a master-key re-key (spec §4.2) cheap: rotating every
// stored file's key is a DB update per Source row, not a read-decrypt-
// re-encrypt-write pass over the vault.
func RewrapFileDEK(wrappedDEK, aad, oldFileKey, newFileKey []byte) ([]byte, error) {
	dek, err := crypto.Open(oldFileKey, wrappedDEK, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: rewrap: unwrap dek: %w", merr.ErrIntegrity)
	}
	defer crypto.Zero(dek)

	rewrapped, err := crypto.Seal(newFileKey, dek, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: rewrap: wrap dek: %w", err)
	}
	return rewrapped, nil
}

// Delete removes the file at relPath. Missing files are not an error —
// deletion is idempotent.
func (v *Vault) Delete(relPath string) error {
	absPath := filepath.Join(v.Root, relPath)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: delete %s: %w", relPath, err)
	}
	return nil
}
