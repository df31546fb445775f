// Package chattransport is the thin WebSocket adapter for spec §6's chat
// contract: client sends {type:auth, token} then {type:question, text};
// server replies with zero or more token frames, exactly one sources
// frame, at most one title_update frame, and exactly one terminal done
// or error frame. It knows nothing about retrieval or prompting — that
// lives in pkg/cortex/chat.Pipeline, which this package only drains onto
// the wire.
package chattransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mnemos/mnemos/pkg/cortex/chat"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/store"
)

// authDeadline bounds how long a connection may sit open before sending
// its auth frame.
const authDeadline = 10 * time.Second

// Authenticator exchanges a bearer token for the owner it identifies,
// the same bearer-token contract spec §6 describes for the REST surface.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (ownerID string, err error)
}

// Asker answers one chat turn — the contract pkg/cortex/chat.Pipeline
// implements. Declared as an interface here so this package's tests don't
// need the full retrieval/provider stack.
type Asker interface {
	Ask(ctx context.Context, ownerID, conversationID, question string) <-chan chat.Frame
}

type clientMessage struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type serverFrame struct {
	Type           string   `json:"type"`
	Value          string   `json:"value,omitempty"`
	IDs            []string `json:"ids,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Title          string   `json:"title,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// Handler upgrades HTTP requests to the chat WebSocket contract.
type Handler struct {
	auth  Authenticator
	asker Asker
	store *store.Store
}

// New constructs a Handler.
func New(auth Authenticator, asker Asker, st *store.Store) *Handler {
	return &Handler{auth: auth, asker: asker, store: st}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.WithComponent("chattransport").Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ownerID, err := h.handshake(ctx, conn)
	if err != nil {
		h.closeWithError(ctx, conn, err)
		return
	}

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		if msg.Type != "question" {
			_ = h.sendFrame(ctx, conn, serverFrame{Type: "error", Message: "expected a question frame"})
			continue
		}
		if err := h.answer(ctx, conn, ownerID, &msg); err != nil {
			return
		}
	}
}

// handshake reads the mandatory first auth frame and resolves it to an
// owner id, bounded by authDeadline so an idle connection can't hold the
// handler open indefinitely.
func (h *Handler) handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	authCtx, cancel := context.WithTimeout(ctx, authDeadline)
	defer cancel()

	var msg clientMessage
	if err := wsjson.Read(authCtx, conn, &msg); err != nil {
		return "", fmt.Errorf("chattransport: read auth frame: %w", err)
	}
	if msg.Type != "auth" {
		return "", errors.New("chattransport: first frame must be type=auth")
	}
	ownerID, err := h.auth.Authenticate(authCtx, msg.Token)
	if err != nil {
		return "", fmt.Errorf("chattransport: authenticate: %w", err)
	}
	return ownerID, nil
}

// answer drains one Ask() turn onto the connection, creating a new
// conversation if the client didn't name an existing one.
func (h *Handler) answer(ctx context.Context, conn *websocket.Conn, ownerID string, msg *clientMessage) error {
	conversationID := msg.ConversationID
	if conversationID == "" {
		conv, err := h.store.CreateConversation(ctx, ownerID)
		if err != nil {
			return h.sendFrame(ctx, conn, serverFrame{Type: "error", Message: "could not start conversation"})
		}
		conversationID = conv.ID
	}

	for frame := range h.asker.Ask(ctx, ownerID, conversationID, msg.Text) {
		if err := h.sendFrame(ctx, conn, toServerFrame(frame)); err != nil {
			return err
		}
	}
	return nil
}

func toServerFrame(f chat.Frame) serverFrame {
	switch f.Kind {
	case chat.FrameToken:
		return serverFrame{Type: "token", Value: f.Value}
	case chat.FrameSources:
		return serverFrame{Type: "sources", IDs: f.MemoryIDs}
	case chat.FrameTitleUpdate:
		return serverFrame{Type: "title_update", ConversationID: f.ConversationID, Title: f.Title}
	case chat.FrameDone:
		return serverFrame{Type: "done"}
	case chat.FrameError:
		return serverFrame{Type: "error", Message: f.Message}
	default:
		return serverFrame{Type: "error", Message: "unknown frame kind"}
	}
}

func (h *Handler) sendFrame(ctx context.Context, conn *websocket.Conn, f serverFrame) error {
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return fmt.Errorf("chattransport: write frame: %w", err)
	}
	return nil
}

func (h *Handler) closeWithError(ctx context.Context, conn *websocket.Conn, err error) {
	_ = h.sendFrame(ctx, conn, serverFrame{Type: "error", Message: err.Error()})
	conn.Close(websocket.StatusPolicyViolation, "authentication failed")
}
