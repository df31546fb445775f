package chattransport

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/cortex/chat"
	"github.com/mnemos/mnemos/pkg/store"
)

type fakeAuthenticator struct {
	tokenToOwner map[string]string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	owner, ok := f.tokenToOwner[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return owner, nil
}

type fakeAsker struct {
	frames []chat.Frame
}

func (f *fakeAsker) Ask(_ context.Context, _, _, _ string) <-chan chat.Frame {
	out := make(chan chat.Frame, len(f.frames))
	for _, fr := range f.frames {
		out <- fr
	}
	close(out)
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestChatRoundTripDeliversFramesInOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	asker := &fakeAsker{frames: []chat.Frame{
		{Kind: chat.FrameSources, MemoryIDs: []string{"mem-1"}},
		{Kind: chat.FrameToken, Value: "hello "},
		{Kind: chat.FrameToken, Value: "world "},
		{Kind: chat.FrameTitleUpdate, ConversationID: "conv-1", Title: "Greeting"},
		{Kind: chat.FrameDone},
	}}
	auth := &fakeAuthenticator{tokenToOwner: map[string]string{"good-token": "owner-1"}}
	handler := New(auth, asker, st)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "auth", Token: "good-token"}))
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "question", Text: "hi", ConversationID: "conv-1"}))

	var got []serverFrame
	for {
		var f serverFrame
		readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := wsjson.Read(readCtx, conn, &f)
		cancel()
		require.NoError(t, err)
		got = append(got, f)
		if f.Type == "done" {
			break
		}
	}

	require.Len(t, got, 5)
	require.Equal(t, "sources", got[0].Type)
	require.Equal(t, []string{"mem-1"}, got[0].IDs)
	require.Equal(t, "token", got[1].Type)
	require.Equal(t, "title_update", got[3].Type)
	require.Equal(t, "done", got[4].Type)

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestChatRejectsConnectionWithoutAuthFrame(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	asker := &fakeAsker{}
	auth := &fakeAuthenticator{tokenToOwner: map[string]string{}}
	handler := New(auth, asker, st)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "question", Text: "hi"}))

	var f serverFrame
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = wsjson.Read(readCtx, conn, &f)
	require.NoError(t, err)
	require.Equal(t, "error", f.Type)
}

func TestChatRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	asker := &fakeAsker{}
	auth := &fakeAuthenticator{tokenToOwner: map[string]string{}}
	handler := New(auth, asker, st)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "auth", Token: "bad-token"}))

	var f serverFrame
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = wsjson.Read(readCtx, conn, &f)
	require.NoError(t, err)
	require.Equal(t, "error", f.Type)
}
