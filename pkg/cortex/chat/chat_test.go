package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/cortex/hybridsearch"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func setup(t *testing.T) (*Pipeline, *store.Store, string, string) {
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
	envStore := envelope.New(sess)
	vectors := vectorstore.NewInMemoryStore()
	embedder := provider.NewStubEmbeddingProvider("chat-test", 16)
	searcher := hybridsearch.New(st, tokenizer, vectors, embedder)
	chatProvider := provider.NewStubChatProvider("chat-test")

	insertMemory(t, ctx, st, tokenizer, envStore, owner.ID, "Lyon trip", "I met Anna in Lyon in 2021")

	conv, err := st.CreateConversation(ctx, owner.ID)
	require.NoError(t, err)

	return New(st, searcher, chatProvider, envStore), st, owner.ID, conv.ID
}

func insertMemory(t *testing.T, ctx context.Context, st *store.Store, tokenizer *blindindex.Tokenizer, envStore *envelope.Store, ownerID, title, body string) string {
	t.Helper()

	id := fmt.Sprintf("mem-%s", title)
	titleEnv, err := envStore.Encrypt([]byte(title), []byte(id))
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

func drain(out <-chan Frame) []Frame {
	var frames []Frame
	for f := range out {
		frames = append(frames, f)
	}
	return frames
}

func TestAskProducesSourcesThenTokensThenDone(t *testing.T) {
	ctx := context.Background()
	p, _, ownerID, convID := setup(t)

	frames := drain(p.Ask(ctx, ownerID, convID, "who did I meet in Lyon?"))
	require.NotEmpty(t, frames)

	require.Equal(t, FrameSources, frames[0].Kind, "sources must be emitted before the terminal frame")
	require.Contains(t, frames[0].MemoryIDs, "mem-Lyon trip")

	last := frames[len(frames)-1]
	require.Equal(t, FrameDone, last.Kind)

	var sawToken bool
	for _, f := range frames[1 : len(frames)-1] {
		if f.Kind == FrameToken {
			sawToken = true
		}
	}
	require.True(t, sawToken)
}

func TestAskPersistsQuestionAndAnswer(t *testing.T) {
	ctx := context.Background()
	p, st, ownerID, convID := setup(t)

	drain(p.Ask(ctx, ownerID, convID, "who did I meet in Lyon?"))

	msgs, err := st.ListMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleUser, msgs[0].Role)
	require.Equal(t, domain.RoleAssistant, msgs[1].Role)
	require.Contains(t, msgs[1].CitedMemoryIDs, "mem-Lyon trip")
}

func TestAskSetsConversationTitleOnFirstTurn(t *testing.T) {
	ctx := context.Background()
	p, st, ownerID, convID := setup(t)

	frames := drain(p.Ask(ctx, ownerID, convID, "who did I meet in Lyon?"))

	var sawTitle bool
	for _, f := range frames {
		if f.Kind == FrameTitleUpdate {
			sawTitle = true
			require.Equal(t, convID, f.ConversationID)
			require.NotEmpty(t, f.Title)
		}
	}
	require.True(t, sawTitle)
}

func TestAskCancelledContextStopsWithoutTerminalFrame(t *testing.T) {
	p, _, ownerID, convID := setup(t)

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := drain(p.Ask(cancelCtx, ownerID, convID, "who did I meet in Lyon?"))
	for _, f := range frames {
		require.NotEqual(t, FrameDone, f.Kind)
	}
}
