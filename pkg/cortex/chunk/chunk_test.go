package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitShortTextIsOneChunk(t *testing.T) {
	chunks := Split("a short memory about a walk in the park")
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Index)
}

func TestSplitEmptyTextProducesNoChunks(t *testing.T) {
	require.Nil(t, Split(""))
	require.Nil(t, Split("   "))
}

func TestSplitLongTextOverlaps(t *testing.T) {
	words := make([]string, 1000)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := Split(text)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
		require.NotEmpty(t, c.Text)
	}
}
