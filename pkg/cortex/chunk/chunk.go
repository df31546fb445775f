// Package chunk splits Memory body text into overlapping windows for
// embedding, grounded on the token/embedding type shape of
// other_examples/d5ef4996_MrWong99-glyphoxa__pkg-memory-store.go
// (Chunk{Embedding []float32}).
package chunk

import "strings"

const (
	// WindowTokens is the target chunk size, approximated by whitespace
	// word count rather than a model-specific tokenizer.
	WindowTokens = 512
	// OverlapTokens is how much each window shares with its predecessor,
	// so a fact split across a window boundary still appears whole in at
	// least one chunk.
	OverlapTokens = 64
)

// Chunk is one windowed slice of a Memory's body text, ready for
// embedding.
type Chunk struct {
	Index int
	Text  string
}

// Split breaks text into overlapping windows of approximately
// WindowTokens words, stepping forward by WindowTokens-OverlapTokens each
// time. A text shorter than one window produces exactly one chunk.
func Split(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := WindowTokens - OverlapTokens
	var chunks []Chunk
	for start, idx := 0, 0; start < len(words); start += step {
		end := start + WindowTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{Index: idx, Text: strings.Join(words[start:end], " ")})
		idx++
		if end == len(words) {
			break
		}
	}
	return chunks
}
