package vault

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeedsConversion(t *testing.T) {
	require.True(t, NeedsConversion("image/jpeg"))
	require.True(t, NeedsConversion("application/msword"))
	require.False(t, NeedsConversion("image/png"))
	require.False(t, NeedsConversion("text/plain"))
	require.False(t, NeedsConversion("application/octet-stream"))
}

func TestExecTransducerConvertsJPEGToPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	tr := &ExecTransducer{}
	out, format, err := tr.Convert(context.Background(), buf.Bytes(), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, FormatPNG, format)

	_, err = png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestExecTransducerPassesThroughUnknownMIME(t *testing.T) {
	tr := &ExecTransducer{}
	input := []byte("plain text content")
	out, format, err := tr.Convert(context.Background(), input, "text/plain")
	require.NoError(t, err)
	require.Equal(t, FormatPassthrough, format)
	require.Equal(t, input, out)
}

func TestPassthroughTransducerNeverConverts(t *testing.T) {
	input := []byte("anything")
	out, format, err := (PassthroughTransducer{}).Convert(context.Background(), input, "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, FormatPassthrough, format)
	require.Equal(t, input, out)
}
