// Package connections synthesizes typed edges between memories: given one
// memory, find its nearest neighbors by embedding distance and ask a chat
// model to classify the relationship. Every edge it writes is
// Provenance=inferred and idempotent on (source, target, kind,
// provenance) — re-running synthesis for the same memory never
// duplicates an edge.
//
// Grounded on cuemby-warren/pkg/worker's Config+single-method-per-job
// shape, narrowed from "run a container" to "classify a pair of
// memories".
package connections

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/store"
)

// maxCandidates bounds how many nearest neighbors are considered per
// synthesis run, so one memory's fan-out can't flood the chat provider
// with requests.
const maxCandidates = 5

// maxDistance discards neighbors too dissimilar to be worth classifying.
// 1.0 is "orthogonal" under cosine distance — beyond that the two
// memories share essentially no semantic content.
const maxDistance = 1.0

const classifyPrompt = `You compare two personal journal entries and classify their relationship.
Respond with exactly one line in the form: kind|confidence|explanation
kind must be one of: follows_up, contradicts, elaborates, references, related
confidence is a number between 0 and 1.
explanation is a short plain-English reason, no more than 20 words.`

// Synthesizer wires the store, vector index, embedding provider, and chat
// provider needed to classify relationships between memories.
type Synthesizer struct {
	store     *store.Store
	vectors   vectorstore.Store
	embedder  provider.EmbeddingProvider
	chat      provider.ChatProvider
	envelopes *envelope.Store
}

// New constructs a Synthesizer.
func New(st *store.Store, vectors vectorstore.Store, embedder provider.EmbeddingProvider, chat provider.ChatProvider, envelopes *envelope.Store) *Synthesizer {
	return &Synthesizer{store: st, vectors: vectors, embedder: embedder, chat: chat, envelopes: envelopes}
}

// SynthesizeForMemory finds memoryID's nearest neighbors and writes a
// Connection for every pairing the chat provider classifies with
// confidence above zero. Safe to re-run: existing edges are left alone.
func (s *Synthesizer) SynthesizeForMemory(ctx context.Context, memoryID string) error {
	logger := log.WithMemoryID(memoryID)

	source, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("connections: get source memory: %w", err)
	}
	sourceBody, err := s.envelopes.Decrypt(source.Body, []byte(source.ID))
	if err != nil {
		return fmt.Errorf("connections: decrypt source body: %w", err)
	}

	vec, err := s.embedder.Embed(ctx, string(sourceBody))
	if err != nil {
		return fmt.Errorf("connections: embed source: %w", err)
	}

	matches, err := s.vectors.QueryExcluding(ctx, vec, maxCandidates*4, memoryID)
	if err != nil {
		return fmt.Errorf("connections: query neighbors: %w", err)
	}

	seen := make(map[string]bool)
	considered := 0
	for _, match := range matches {
		if considered >= maxCandidates {
			break
		}
		if match.Distance > maxDistance || seen[match.Record.MemoryID] {
			continue
		}
		seen[match.Record.MemoryID] = true
		considered++

		if err := s.classifyAndLink(ctx, source.ID, match.Record.MemoryID); err != nil {
			logger.Warn().Err(err).Str("target_memory_id", match.Record.MemoryID).Msg("connection synthesis skipped candidate")
		}
	}
	return nil
}

func (s *Synthesizer) classifyAndLink(ctx context.Context, sourceID, targetID string) error {
	target, err := s.store.GetMemory(ctx, targetID)
	if err != nil {
		if merr.Kind(err) == "not_found" {
			return nil // target was deleted since the vector index was last pruned
		}
		return fmt.Errorf("get target memory: %w", err)
	}
	source, err := s.store.GetMemory(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("get source memory: %w", err)
	}

	sourceBody, err := s.envelopes.Decrypt(source.Body, []byte(source.ID))
	if err != nil {
		return fmt.Errorf("decrypt source body: %w", err)
	}
	targetBody, err := s.envelopes.Decrypt(target.Body, []byte(target.ID))
	if err != nil {
		return fmt.Errorf("decrypt target body: %w", err)
	}

	userPrompt := fmt.Sprintf("Entry A:\n%s\n\nEntry B:\n%s", sourceBody, targetBody)
	raw, err := s.chat.Complete(ctx, classifyPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	kind, confidence, explanation, err := parseClassification(raw)
	if err != nil {
		return fmt.Errorf("parse classification: %w", err)
	}
	if confidence <= 0 {
		return nil
	}

	return s.store.UpsertConnection(ctx, domain.Connection{
		ID:             ulid.Make().String(),
		SourceMemoryID: sourceID,
		TargetMemoryID: targetID,
		Kind:           kind,
		Provenance:     domain.ProvenanceInferred,
		Confidence:     confidence,
		Explanation:    explanation,
	})
}

var validKinds = map[domain.ConnectionKind]bool{
	domain.ConnectionFollowsUp:   true,
	domain.ConnectionContradicts: true,
	domain.ConnectionElaborates:  true,
	domain.ConnectionReferences:  true,
	domain.ConnectionRelated:     true,
}

// parseClassification reads the first "kind|confidence|explanation" line
// of raw, tolerating a stub or model response that wraps it in extra
// whitespace or surrounding text.
func parseClassification(raw string) (domain.ConnectionKind, float64, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		kind := domain.ConnectionKind(strings.TrimSpace(parts[0]))
		if !validKinds[kind] {
			continue
		}
		confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		return kind, confidence, strings.TrimSpace(parts[2]), nil
	}
	return "", 0, "", fmt.Errorf("no parseable classification line in response")
}
