package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func setupAudit(t *testing.T) (*Vault, *Auditor, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, session.InitializeCredentials(ctx, st, []byte("a very secret passphrase"), testArgon2Params()))
	sess := session.New(st, 0)
	require.NoError(t, sess.Unlock(ctx, []byte("a very secret passphrase")))

	owner, err := st.CreateOwnerProfile(ctx, "Test Owner")
	require.NoError(t, err)

	v := New(t.TempDir(), sess)
	a := NewAuditor(v, st)

	// A minimal memory row, since sources and vault_manifest both
	// reference one by memory_id.
	memoryID := "mem-" + t.Name()
	envStore := envelope.New(sess)
	titleEnv, err := envStore.Encrypt([]byte("title"), []byte(memoryID))
	require.NoError(t, err)
	bodyEnv, err := envStore.Encrypt([]byte("body"), []byte(memoryID))
	require.NoError(t, err)

	mem := domain.Memory{
		ID:         memoryID,
		OwnerID:    owner.ID,
		Title:      titleEnv,
		Body:       bodyEnv,
		CapturedAt: time.Now(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	tx, err := st.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertMemory(ctx, tx, mem))
	require.NoError(t, tx.Commit())

	return v, a, st
}

// commitSource writes written to both the sources table and the vault
// manifest, inside one transaction, mirroring what pkg/ingest does.
func commitSource(t *testing.T, st *store.Store, memoryID string, written WrittenFile, manifestDigest string) domain.Source {
	t.Helper()
	ctx := context.Background()

	src := domain.Source{
		ID:             "src-" + written.VaultPath,
		MemoryID:       memoryID,
		Kind:           domain.SourceUpload,
		ByteSize:       written.ByteSize,
		EncryptedSize:  written.EncryptedSize,
		VaultPath:      written.VaultPath,
		Digest:         written.Digest,
		FileDEKWrapped: written.WrappedDEK,
		FileDEKAlgoTag: written.AlgoTag,
	}
	entry := store.VaultManifestEntry{
		VaultPath:  written.VaultPath,
		MemoryID:   memoryID,
		SourceID:   src.ID,
		Digest:     manifestDigest,
		ByteSize:   written.ByteSize,
		WrappedDEK: written.WrappedDEK,
		AlgoTag:    written.AlgoTag,
	}

	tx, err := st.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertSourceTx(ctx, tx, src))
	require.NoError(t, store.PutVaultManifestEntryTx(ctx, tx, entry))
	require.NoError(t, tx.Commit())

	return src
}

func TestAuditCleanVaultReportsNoDiscrepancies(t *testing.T) {
	ctx := context.Background()
	v, a, st := setupAudit(t)

	written, err := v.Write([]byte("hello vault"), []byte("aad"))
	require.NoError(t, err)
	src := commitSource(t, st, "mem-"+t.Name(), written, written.Digest)

	report, err := a.Audit(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.FilesChecked)
	require.Empty(t, report.Discrepancies)
	require.NotEmpty(t, src.VaultPath)
}

// TestAuditConvertedFileIsNotFalselyCorrupt locks in the fix for a bug
// where the manifest stored the pre-conversion digest while Audit
// compares against the decrypted archival (post-conversion) plaintext,
// producing a permanent false corrupt report for every converted file.
func TestAuditConvertedFileIsNotFalselyCorrupt(t *testing.T) {
	ctx := context.Background()
	v, a, st := setupAudit(t)

	originalDigest := Digest([]byte("original jpeg bytes"))
	archivalPlaintext := []byte("converted png bytes")

	written, err := v.Write(archivalPlaintext, []byte("aad"))
	require.NoError(t, err)
	require.NotEqual(t, originalDigest, written.Digest, "fixture must exercise a genuinely different pre/post-conversion digest")

	commitSource(t, st, "mem-"+t.Name(), written, written.Digest)

	report, err := a.Audit(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Discrepancies, "a converted file whose manifest digest matches the archival bytes must not be reported corrupt")
}

func TestAuditDetectsMissingFile(t *testing.T) {
	ctx := context.Background()
	v, a, st := setupAudit(t)

	written, err := v.Write([]byte("will be deleted"), []byte("aad"))
	require.NoError(t, err)
	commitSource(t, st, "mem-"+t.Name(), written, written.Digest)

	require.NoError(t, v.Delete(written.VaultPath))

	report, err := a.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, DiscrepancyMissing, report.Discrepancies[0].Kind)
	require.Equal(t, written.VaultPath, report.Discrepancies[0].VaultPath)
}

func TestAuditDetectsOrphanFile(t *testing.T) {
	ctx := context.Background()
	v, a, _ := setupAudit(t)

	// Written directly to the vault, never recorded in sources or the
	// manifest.
	written, err := v.Write([]byte("nobody knows about this file"), []byte("aad"))
	require.NoError(t, err)

	report, err := a.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, DiscrepancyOrphan, report.Discrepancies[0].Kind)
	require.Equal(t, written.VaultPath, report.Discrepancies[0].VaultPath)
}

func TestAuditDetectsCorruptDigestMismatch(t *testing.T) {
	ctx := context.Background()
	v, a, st := setupAudit(t)

	written, err := v.Write([]byte("genuine content"), []byte("aad"))
	require.NoError(t, err)
	// Manifest records the wrong digest, simulating on-disk tampering or
	// a stale record.
	commitSource(t, st, "mem-"+t.Name(), written, Digest([]byte("not the real content")))

	report, err := a.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, DiscrepancyCorrupt, report.Discrepancies[0].Kind)
}
