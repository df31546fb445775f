package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func setup(t *testing.T) (*Ingestor, *store.Store, string) {
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

	v := vault.New(t.TempDir(), sess)
	envStore := envelope.New(sess)
	tokenizer := blindindex.New(sess)

	return New(st, v, envStore, tokenizer, nil, nil), st, owner.ID
}

func setupWithTransducer(t *testing.T, transducer vault.Transducer) (*Ingestor, *store.Store, string) {
	t.Helper()
	ig, st, ownerID := setup(t)
	ig.transducer = transducer
	return ig, st, ownerID
}

func TestIngestCommitsMemorySourceAndTokens(t *testing.T) {
	ctx := context.Background()
	ig, st, ownerID := setup(t)

	mem, err := ig.Ingest(ctx, Input{
		OwnerID:    ownerID,
		Title:      "Morning walk",
		Body:       "Walked along the river and saw three herons",
		SourceKind: domain.SourceNote,
	})
	require.NoError(t, err)
	require.NotEmpty(t, mem.ID)

	sources, err := st.ListSourcesForMemory(ctx, mem.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, domain.SourceNote, sources[0].Kind)

	ids, err := st.SearchByTokensAll(ctx, ownerID, mustTokens(t, ig, "herons"))
	require.NoError(t, err)
	require.Contains(t, ids, mem.ID)
}

func TestIngestDedupsIdenticalContent(t *testing.T) {
	ctx := context.Background()
	ig, st, ownerID := setup(t)

	in := Input{OwnerID: ownerID, Title: "Note", Body: "identical content", SourceKind: domain.SourceNote}
	first, err := ig.Ingest(ctx, in)
	require.NoError(t, err)

	second, err := ig.Ingest(ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "identical content must dedup to the same memory")

	all, err := st.ListMemories(ctx, domain.ListFilter{OwnerID: ownerID})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestIngestWithOriginalBytesWritesVaultFile(t *testing.T) {
	ctx := context.Background()
	ig, st, ownerID := setup(t)

	mem, err := ig.Ingest(ctx, Input{
		OwnerID:       ownerID,
		Title:         "Scanned receipt",
		Body:          "Grocery receipt",
		SourceKind:    domain.SourceUpload,
		Filename:      "receipt.txt",
		MIMEType:      "text/plain",
		OriginalBytes: []byte("raw receipt bytes"),
	})
	require.NoError(t, err)

	sources, err := st.ListSourcesForMemory(ctx, mem.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.NotEmpty(t, sources[0].VaultPath)
}

func TestIngestConvertsJPEGToArchivalPNG(t *testing.T) {
	ctx := context.Background()
	ig, st, ownerID := setupWithTransducer(t, &vault.ExecTransducer{})

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 50), G: uint8(y * 50), B: 200, A: 255})
		}
	}
	var jpegBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpegBuf, img, nil))

	mem, err := ig.Ingest(ctx, Input{
		OwnerID:       ownerID,
		Title:         "Vacation photo",
		SourceKind:    domain.SourceUpload,
		Filename:      "photo.jpg",
		MIMEType:      "image/jpeg",
		OriginalBytes: jpegBuf.Bytes(),
	})
	require.NoError(t, err)

	sources, err := st.ListSourcesForMemory(ctx, mem.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, string(vault.FormatPNG), sources[0].PreservationFormat)
	require.NotEmpty(t, sources[0].VaultPath)

	written, err := ig.vault.Read(ctx, sources[0].VaultPath, []byte(sources[0].ID), sources[0].FileDEKWrapped)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(written))
	require.NoError(t, err, "archived bytes must decode as PNG")

	entry, err := st.GetVaultManifestEntry(ctx, sources[0].VaultPath)
	require.NoError(t, err)
	require.Equal(t, string(vault.FormatPNG), entry.PreservationFormat)
	require.Equal(t, vault.Digest(written), entry.Digest, "manifest digest matches the archival PNG bytes actually written to the vault")
	require.NotEqual(t, sources[0].Digest, entry.Digest, "manifest digest must differ from the pre-conversion JPEG dedup digest")
}

func mustTokens(t *testing.T, ig *Ingestor, term string) [][]byte {
	t.Helper()
	tokens, err := ig.tokenizer.Tokenize(term, domain.FieldBody)
	require.NoError(t, err)
	return tokens
}
