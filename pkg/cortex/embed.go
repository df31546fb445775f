// Package cortex wires the chunk/provider/vectorstore/hybridsearch/chat
// subpackages into the two background jobs spec §4.6 describes a memory
// needing after ingestion: embedding its body into the vector store, and
// proposing tags a chat model notices in it. Retrieval and the chat
// pipeline itself live in the hybridsearch and chat subpackages; this
// package is only the post-ingest producer side.
package cortex

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/cortex/chunk"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/store"
)

const suggestTagsPrompt = `You read a personal journal entry and propose up to 5 short topical
tags for it (single words or short phrases, lowercase, no punctuation).
Respond with exactly one line: a comma-separated list of tags, nothing
else. If no tag fits, respond with an empty line.`

// Embedder chunks a Memory's decrypted body and embeds each chunk into
// the vector store, replacing any chunks a previous run left behind so
// re-running for the same memory is idempotent.
type Embedder struct {
	store     *store.Store
	vectors   vectorstore.Store
	embedder  provider.EmbeddingProvider
	envelopes *envelope.Store
}

// NewEmbedder constructs an Embedder.
func NewEmbedder(st *store.Store, vectors vectorstore.Store, embedder provider.EmbeddingProvider, envelopes *envelope.Store) *Embedder {
	return &Embedder{store: st, vectors: vectors, embedder: embedder, envelopes: envelopes}
}

// EmbedMemory decrypts memoryID's body, splits it into overlapping
// windows, and upserts one vectorstore Record per window.
func (e *Embedder) EmbedMemory(ctx context.Context, memoryID string) error {
	logger := log.WithMemoryID(memoryID)

	mem, err := e.store.GetMemory(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("cortex: embed: get memory: %w", err)
	}

	body, err := e.envelopes.Decrypt(mem.Body, []byte(mem.ID))
	if err != nil {
		return fmt.Errorf("cortex: embed: decrypt body: %w", err)
	}

	if err := e.vectors.DeleteByMemory(ctx, memoryID); err != nil {
		return fmt.Errorf("cortex: embed: clear existing chunks: %w", err)
	}

	chunks := chunk.Split(string(body))
	for _, c := range chunks {
		vec, err := e.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("cortex: embed: embed chunk %d: %w: %v", c.Index, merr.ErrModelUnavailable, err)
		}
		rec := vectorstore.Record{
			ID:       ulid.Make().String(),
			MemoryID: memoryID,
			Chunk:    c.Text,
			Vector:   vec,
		}
		if err := e.vectors.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("cortex: embed: upsert chunk %d: %w", c.Index, err)
		}
	}

	logger.Debug().Int("chunks", len(chunks)).Msg("memory embedded")
	return nil
}

// TagSuggester asks a chat model to propose tags for a newly ingested
// memory, writing each proposal as a pending domain.Suggestion rather
// than applying it directly — spec §4.9 keeps taxonomy changes
// owner-reviewed.
type TagSuggester struct {
	store     *store.Store
	chat      provider.ChatProvider
	envelopes *envelope.Store
}

// NewTagSuggester constructs a TagSuggester.
func NewTagSuggester(st *store.Store, chat provider.ChatProvider, envelopes *envelope.Store) *TagSuggester {
	return &TagSuggester{store: st, chat: chat, envelopes: envelopes}
}

// SuggestTags decrypts memoryID's body, asks the chat provider for
// candidate tags, and records each as a pending Suggestion.
func (s *TagSuggester) SuggestTags(ctx context.Context, memoryID string) error {
	logger := log.WithMemoryID(memoryID)

	mem, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("cortex: suggest tags: get memory: %w", err)
	}
	body, err := s.envelopes.Decrypt(mem.Body, []byte(mem.ID))
	if err != nil {
		return fmt.Errorf("cortex: suggest tags: decrypt body: %w", err)
	}

	reply, err := s.chat.Complete(ctx, suggestTagsPrompt, string(body))
	if err != nil {
		return fmt.Errorf("cortex: suggest tags: complete: %w: %v", merr.ErrModelUnavailable, err)
	}

	for _, tag := range strings.Split(strings.TrimSpace(reply), ",") {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag == "" {
			continue
		}
		_, err := s.store.CreateSuggestion(ctx, domain.Suggestion{
			MemoryID: memoryID,
			Kind:     domain.SuggestionTag,
			Label:    tag,
			Status:   domain.SuggestionPending,
		})
		if err != nil {
			logger.Warn().Err(err).Str("tag", tag).Msg("failed to record tag suggestion")
		}
	}
	return nil
}
