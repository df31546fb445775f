package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// StubEmbeddingProvider and StubChatProvider back tests without network
// access. Both derive their output deterministically from
// sha256(seed+input), the same technique as
// quantumlife-canon-core/internal/shadowllm/stub: identical input under
// the same seed always produces the identical output, so tests assert on
// exact values instead of "looks plausible."
type StubEmbeddingProvider struct {
	Seed string
	Dim  int
}

// NewStubEmbeddingProvider constructs a deterministic stub producing
// vectors of dim dimensions.
func NewStubEmbeddingProvider(seed string, dim int) *StubEmbeddingProvider {
	return &StubEmbeddingProvider{Seed: seed, Dim: dim}
}

func (p *StubEmbeddingProvider) Dimensions() int { return p.Dim }

// Embed derives a Dim-length unit-ish vector from sha256(seed+text),
// expanding the 32-byte digest into Dim float32s by re-hashing with a
// counter suffix whenever more bytes are needed.
func (p *StubEmbeddingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, p.Dim)
	counter := 0
	var buf []byte
	for i := range out {
		if len(buf) < 4 {
			h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", p.Seed, text, counter)))
			buf = append(buf, h[:]...)
			counter++
		}
		v := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		out[i] = (float32(v%2000) - 1000) / 1000 // in [-1, 1)
	}
	return out, nil
}

// StubChatProvider returns a deterministic, clearly-synthetic completion
// string so e2e tests can assert on its shape without a live model.
type StubChatProvider struct {
	Seed string
}

// NewStubChatProvider constructs a deterministic stub.
func NewStubChatProvider(seed string) *StubChatProvider {
	return &StubChatProvider{Seed: seed}
}

// Complete returns a short, deterministic summary of userPrompt's length
// and a digest of its content, standing in for an actual model
// completion.
func (p *StubChatProvider) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	h := sha256.Sum256([]byte(p.Seed + systemPrompt + userPrompt))
	return fmt.Sprintf("[stub-completion %x]", h[:8]), nil
}
