package connections

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

// fixedChatProvider always returns the same classification line, letting
// tests pin the synthesized connection's kind deterministically.
type fixedChatProvider struct {
	line string
}

func (p fixedChatProvider) Complete(_ context.Context, _, _ string) (string, error) {
	return p.line, nil
}

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func setup(t *testing.T) (*Synthesizer, *store.Store, *envelope.Store, *session.Session, string) {
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

	envStore := envelope.New(sess)
	embedder := provider.NewStubEmbeddingProvider("test-seed", 8)
	vectors := vectorstore.NewInMemoryStore()
	chat := fixedChatProvider{line: "elaborates|0.8|both describe the same hiking trip"}

	return New(st, vectors, embedder, chat, envStore), st, envStore, sess, owner.ID
}

func insertMemory(t *testing.T, ctx context.Context, st *store.Store, envStore *envelope.Store, ownerID, id, body string) {
	t.Helper()
	titleEnv, err := envStore.Encrypt([]byte("untitled"), nil)
	require.NoError(t, err)
	bodyEnv, err := envStore.Encrypt([]byte(body), []byte(id))
	require.NoError(t, err)

	m := domain.Memory{
		ID:         id,
		OwnerID:    ownerID,
		Title:      titleEnv,
		Body:       bodyEnv,
		CapturedAt: time.Now(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	tx, err := st.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertMemory(ctx, tx, m))
	require.NoError(t, tx.Commit())
}

func TestSynthesizeForMemoryCreatesInferredConnection(t *testing.T) {
	ctx := context.Background()
	synth, st, envStore, _, ownerID := setup(t)

	insertMemory(t, ctx, st, envStore, ownerID, "mem-a", "hiked the ridge trail with a friend")
	insertMemory(t, ctx, st, envStore, ownerID, "mem-b", "went back to the ridge trail again today")

	embedder := provider.NewStubEmbeddingProvider("test-seed", 8)
	vecA, err := embedder.Embed(ctx, "hiked the ridge trail with a friend")
	require.NoError(t, err)
	vecB, err := embedder.Embed(ctx, "went back to the ridge trail again today")
	require.NoError(t, err)

	require.NoError(t, synth.vectors.Upsert(ctx, vectorstore.Record{ID: "c-a", MemoryID: "mem-a", Vector: vecA}))
	require.NoError(t, synth.vectors.Upsert(ctx, vectorstore.Record{ID: "c-b", MemoryID: "mem-b", Vector: vecB}))

	require.NoError(t, synth.SynthesizeForMemory(ctx, "mem-a"))

	conns, err := st.ListConnectionsForMemory(ctx, "mem-a")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, domain.ConnectionElaborates, conns[0].Kind)
	require.Equal(t, domain.ProvenanceInferred, conns[0].Provenance)
	require.Equal(t, "mem-a", conns[0].SourceMemoryID)
	require.Equal(t, "mem-b", conns[0].TargetMemoryID)

	require.NoError(t, synth.SynthesizeForMemory(ctx, "mem-a"))
	conns, err = st.ListConnectionsForMemory(ctx, "mem-a")
	require.NoError(t, err)
	require.Len(t, conns, 1, "re-running synthesis must not duplicate the edge")
}

func TestParseClassificationRejectsUnknownKind(t *testing.T) {
	_, _, _, err := parseClassification("bogus|0.5|nonsense")
	require.Error(t, err)
}

func TestParseClassificationClampsConfidence(t *testing.T) {
	kind, confidence, explanation, err := parseClassification("related|1.5|over-confident response")
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionRelated, kind)
	require.Equal(t, 1.0, confidence)
	require.Equal(t, "over-confident response", explanation)
}
