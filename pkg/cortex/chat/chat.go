// Package chat implements the retrieval-augmented chat surface (spec
// §4.6/§4.7's consumer, §6's streaming wire contract): retrieve relevant
// memories with pkg/cortex/hybridsearch, ask the chat provider for an
// answer grounded in them, and stream the result as an ordered sequence
// of Frames. The transport layer (internal/chattransport) only drains
// this channel onto a WebSocket — it knows nothing about retrieval,
// prompting, or persistence.
//
// Modeled on Design Notes §9's "producer task writing frames into a
// channel that the transport layer drains; cancellation is a channel
// close", the same cooperative-task shape pkg/jobqueue's workers use.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemos/mnemos/pkg/cortex/hybridsearch"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/store"
)

// retrievalTopK is how many memories back a single answer.
const retrievalTopK = 5

// FrameKind enumerates the wire frame types of spec §6's chat contract.
type FrameKind string

const (
	FrameToken       FrameKind = "token"
	FrameSources     FrameKind = "sources"
	FrameTitleUpdate FrameKind = "title_update"
	FrameDone        FrameKind = "done"
	FrameError       FrameKind = "error"
)

// Frame is one wire message of the chat stream. Only the fields relevant
// to Kind are populated.
type Frame struct {
	Kind           FrameKind
	Value          string   // FrameToken
	MemoryIDs      []string // FrameSources
	ConversationID string   // FrameTitleUpdate
	Title          string   // FrameTitleUpdate
	Message        string   // FrameError
}

// Pipeline answers questions against an owner's memories, streaming the
// answer as Frames and persisting the turn to the conversation.
type Pipeline struct {
	store     *store.Store
	searcher  *hybridsearch.Searcher
	chat      provider.ChatProvider
	envelopes *envelope.Store
}

// New constructs a Pipeline.
func New(st *store.Store, searcher *hybridsearch.Searcher, chatProvider provider.ChatProvider, envelopes *envelope.Store) *Pipeline {
	return &Pipeline{store: st, searcher: searcher, chat: chatProvider, envelopes: envelopes}
}

// Ask runs one turn of conversationID to completion, returning a channel
// of Frames in the order spec §6 requires: zero or more token frames,
// exactly one sources frame (which may come before or after the first
// token), at most one title_update frame, and exactly one terminal done
// or error frame. The channel is closed after the terminal frame; ctx
// cancellation stops the producer goroutine without sending a terminal
// frame, since the caller has already gone away.
func (p *Pipeline) Ask(ctx context.Context, ownerID, conversationID, question string) <-chan Frame {
	out := make(chan Frame, 8)
	go p.run(ctx, ownerID, conversationID, question, out)
	return out
}

func (p *Pipeline) run(ctx context.Context, ownerID, conversationID, question string, out chan<- Frame) {
	defer close(out)
	logger := log.WithComponent("chat")

	if _, err := p.store.AppendMessage(ctx, domain.ConversationMessage{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        question,
	}); err != nil {
		p.sendError(ctx, out, fmt.Errorf("chat: persist question: %w", err))
		return
	}

	results, err := p.searcher.Search(ctx, ownerID, question, hybridsearch.ModeHybrid, retrievalTopK)
	if err != nil {
		p.sendError(ctx, out, fmt.Errorf("chat: retrieve context: %w", err))
		return
	}

	memoryIDs := make([]string, 0, len(results))
	contextBlocks := make([]string, 0, len(results))
	for _, r := range results {
		mem, err := p.store.GetMemory(ctx, r.MemoryID)
		if err != nil {
			logger.Warn().Err(err).Str("memory_id", r.MemoryID).Msg("skipping unreadable retrieval candidate")
			continue
		}
		title, body, err := p.decryptMemory(mem)
		if err != nil {
			logger.Warn().Err(err).Str("memory_id", r.MemoryID).Msg("skipping undecryptable retrieval candidate")
			continue
		}
		memoryIDs = append(memoryIDs, mem.ID)
		contextBlocks = append(contextBlocks, fmt.Sprintf("[%s] %s\n%s", mem.ID, title, body))
	}

	if !p.sendFrame(ctx, out, Frame{Kind: FrameSources, MemoryIDs: memoryIDs}) {
		return
	}

	answer, err := p.chat.Complete(ctx, systemPrompt(), userPrompt(question, contextBlocks))
	if err != nil {
		p.sendError(ctx, out, fmt.Errorf("chat: completion: %w: %v", merr.ErrModelUnavailable, err))
		return
	}

	for _, word := range strings.Fields(answer) {
		if !p.sendFrame(ctx, out, Frame{Kind: FrameToken, Value: word + " "}) {
			return
		}
	}

	if err := p.maybeTitleConversation(ctx, conversationID, question, out); err != nil {
		logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("title generation failed, continuing without it")
	}

	if _, err := p.store.AppendMessage(ctx, domain.ConversationMessage{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        answer,
		CitedMemoryIDs: memoryIDs,
	}); err != nil {
		p.sendError(ctx, out, fmt.Errorf("chat: persist answer: %w", err))
		return
	}

	p.sendFrame(ctx, out, Frame{Kind: FrameDone})
}

// maybeTitleConversation asks the chat model for a short title the first
// time a conversation produces an answer, emitting a title_update frame
// if one is generated. A conversation already titled is left alone.
func (p *Pipeline) maybeTitleConversation(ctx context.Context, conversationID, question string, out chan<- Frame) error {
	msgs, err := p.store.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) > 2 {
		return nil // already has a prior turn; title was set on the first one
	}

	title, err := p.chat.Complete(ctx, titlePrompt(), question)
	if err != nil {
		return fmt.Errorf("generate title: %w: %v", merr.ErrModelUnavailable, err)
	}
	title = strings.TrimSpace(strings.Trim(title, "\""))
	if title == "" {
		return nil
	}

	if err := p.store.SetConversationTitle(ctx, conversationID, title); err != nil {
		return fmt.Errorf("save title: %w", err)
	}
	p.sendFrame(ctx, out, Frame{Kind: FrameTitleUpdate, ConversationID: conversationID, Title: title})
	return nil
}

func (p *Pipeline) decryptMemory(mem domain.Memory) (title, body string, err error) {
	titleBytes, err := p.envelopes.Decrypt(mem.Title, []byte(mem.ID))
	if err != nil {
		return "", "", fmt.Errorf("decrypt title: %w", err)
	}
	bodyBytes, err := p.envelopes.Decrypt(mem.Body, []byte(mem.ID))
	if err != nil {
		return "", "", fmt.Errorf("decrypt body: %w", err)
	}
	return string(titleBytes), string(bodyBytes), nil
}

// sendFrame delivers f unless ctx is already done, reporting whether the
// send happened so callers can bail out of the producer early.
func (p *Pipeline) sendFrame(ctx context.Context, out chan<- Frame, f Frame) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) sendError(ctx context.Context, out chan<- Frame, err error) {
	p.sendFrame(ctx, out, Frame{Kind: FrameError, Message: err.Error()})
}

func systemPrompt() string {
	return "You are Mnemos, a personal memory assistant. Answer the question using only the numbered memory excerpts provided as context. Cite memories by the ids in brackets when relevant. If the context does not contain the answer, say so plainly."
}

func userPrompt(question string, contextBlocks []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(contextBlocks) == 0 {
		b.WriteString("(no relevant memories found)\n")
	}
	for _, block := range contextBlocks {
		b.WriteString(block)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func titlePrompt() string {
	return "Summarize the user's question as a short conversation title of five words or fewer. Reply with only the title, no punctuation or quotes."
}
