package hybridsearch

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

// testArgon2Params trades security for speed: real unlocks use
// crypto.DefaultArgon2Params, but tests unlock dozens of times and would
// otherwise spend most of their runtime in Argon2id.
func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func newTestSearcher(t *testing.T) (*Searcher, *store.Store, *session.Session, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, session.InitializeCredentials(ctx, st, []byte("correct horse battery staple"), testArgon2Params()))
	sess := session.New(st, 0)
	require.NoError(t, sess.Unlock(ctx, []byte("correct horse battery staple")))

	owner, err := st.CreateOwnerProfile(ctx, "Test Owner")
	require.NoError(t, err)

	tokenizer := blindindex.New(sess)
	vectors := vectorstore.NewInMemoryStore()
	embedder := provider.NewStubEmbeddingProvider("test-seed", 16)
	return New(st, tokenizer, vectors, embedder), st, sess, owner.ID
}

func insertMemory(t *testing.T, ctx context.Context, st *store.Store, sess *session.Session, tokenizer *blindindex.Tokenizer, ownerID, title, body string) string {
	t.Helper()
	envStore := envelope.New(sess)

	titleEnv, err := envStore.Encrypt([]byte(title), nil)
	require.NoError(t, err)
	bodyEnv, err := envStore.Encrypt([]byte(body), nil)
	require.NoError(t, err)

	m := domain.Memory{
		ID:         fmt.Sprintf("mem-%s", title),
		OwnerID:    ownerID,
		Title:      titleEnv,
		Body:       bodyEnv,
		CapturedAt: time.Now(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	titleTokens, err := tokenizer.RebuildTokens(m.ID, ownerID, domain.FieldTitle, title)
	require.NoError(t, err)
	bodyTokens, err := tokenizer.RebuildTokens(m.ID, ownerID, domain.FieldBody, body)
	require.NoError(t, err)

	tx, err := st.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertMemory(ctx, tx, m))
	require.NoError(t, store.InsertSearchTokensTx(ctx, tx, titleTokens))
	require.NoError(t, store.InsertSearchTokensTx(ctx, tx, bodyTokens))
	require.NoError(t, tx.Commit())

	return m.ID
}

func TestSearchKeywordRanksByMatchCount(t *testing.T) {
	ctx := context.Background()
	searcher, st, sess, ownerID := newTestSearcher(t)
	tokenizer := blindindex.New(sess)

	idA := insertMemory(t, ctx, st, sess, tokenizer, ownerID, "Hiking in the mountains", "A long hike through pine forests and mountain trails")
	idB := insertMemory(t, ctx, st, sess, tokenizer, ownerID, "Dinner plans", "Thinking about pasta for dinner tonight")

	results, err := searcher.Search(ctx, ownerID, "mountain hike", ModeKeyword, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, idA, results[0].MemoryID)
	for _, r := range results {
		require.NotEqual(t, idB, r.MemoryID)
	}

	// keyword mode scores off the matched-token saturating curve, not RRF:
	// a 2-term match must score exactly keywordScore(2), and strictly less
	// than a hypothetical 3-term match, but never reach 1.0.
	require.InDelta(t, 2.0/3.0, results[0].Score, 1e-9)
	require.InDelta(t, results[0].Score, results[0].Explanation.KeywordScore, 1e-9)
	require.Less(t, results[0].Score, 1.0)
}

func TestKeywordScoreSaturates(t *testing.T) {
	require.InDelta(t, 0.0, keywordScore(0), 1e-9)
	require.InDelta(t, 0.5, keywordScore(1), 1e-9)
	require.InDelta(t, 2.0/3.0, keywordScore(2), 1e-9)
	require.Less(t, keywordScore(2)-keywordScore(1), keywordScore(1)-keywordScore(0), "each additional match must matter less than the last")
	require.Less(t, keywordScore(1000), 1.0)
}

func TestSemanticScoreNormalizesCosineDistance(t *testing.T) {
	require.InDelta(t, 1.0, semanticScore(0), 1e-9)   // identical vectors
	require.InDelta(t, 0.5, semanticScore(1), 1e-9)   // orthogonal vectors
	require.InDelta(t, 0.0, semanticScore(2), 1e-9)   // opposite vectors
	require.InDelta(t, 0.0, semanticScore(3), 1e-9)   // clamped, never negative
	require.InDelta(t, 1.0, semanticScore(-1), 1e-9)  // clamped, never above 1
}

func TestSearchSemanticFindsNearestChunk(t *testing.T) {
	ctx := context.Background()
	searcher, _, _, ownerID := newTestSearcher(t)

	require.NoError(t, searcher.vectors.Upsert(ctx, vectorstore.Record{
		ID: "c1", MemoryID: "mem-1", Chunk: "alpha",
		Vector: mustEmbed(t, searcher.embedder, "a memory about hiking"),
	}))
	require.NoError(t, searcher.vectors.Upsert(ctx, vectorstore.Record{
		ID: "c2", MemoryID: "mem-2", Chunk: "beta",
		Vector: mustEmbed(t, searcher.embedder, "a memory about cooking dinner"),
	}))

	results, err := searcher.Search(ctx, ownerID, "a memory about hiking", ModeSemantic, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "mem-1", results[0].MemoryID)
	require.Equal(t, 1, results[0].Explanation.SemanticRank)
}

func TestSearchHybridCombinesBothRankings(t *testing.T) {
	ctx := context.Background()
	searcher, st, sess, ownerID := newTestSearcher(t)
	tokenizer := blindindex.New(sess)

	idA := insertMemory(t, ctx, st, sess, tokenizer, ownerID, "Hiking trip", "mountain trail hike")
	require.NoError(t, searcher.vectors.Upsert(ctx, vectorstore.Record{
		ID: "c1", MemoryID: idA, Chunk: "mountain trail hike",
		Vector: mustEmbed(t, searcher.embedder, "mountain trail hike"),
	}))

	results, err := searcher.Search(ctx, ownerID, "mountain trail hike", ModeHybrid, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, idA, results[0].MemoryID)
	require.Greater(t, results[0].Explanation.KeywordRank, 0)
	require.Greater(t, results[0].Explanation.SemanticRank, 0)
}

func mustEmbed(t *testing.T, p provider.EmbeddingProvider, text string) []float32 {
	t.Helper()
	v, err := p.Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}
