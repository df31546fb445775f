package vault

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mnemos/mnemos/pkg/merr"
)

// PreservationFormat is the archival format a Transducer produced. Office
// documents are converted to plain "pdf" — not "pdf/a" — matching the
// actual converter's output rather than an aspirational label (DESIGN.md
// Open Question decision #6).
type PreservationFormat string

const (
	FormatPDF         PreservationFormat = "pdf"
	FormatPNG         PreservationFormat = "png"
	FormatPassthrough PreservationFormat = "passthrough"
)

// officeMIMEs require conversion to PDF via an external document
// converter.
var officeMIMEs = map[string]bool{
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
	"application/vnd.ms-excel":                                                true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

// lossyImageMIMEs require conversion to lossless PNG. HEIC and WebP belong
// to this family too, but decoding them needs a codec the pack carries no
// dependency for, so they pass through unconverted until one is added.
var lossyImageMIMEs = map[string]bool{
	"image/jpeg": true,
}

// Transducer converts one archival representation of a file into another.
// The production implementation shells out to a document converter;
// tests use a Transducer that returns its input unchanged.
type Transducer interface {
	Convert(ctx context.Context, input []byte, mimeType string) (output []byte, format PreservationFormat, err error)
}

// NeedsConversion reports whether mimeType requires archival conversion
// before it is written to the vault.
func NeedsConversion(mimeType string) bool {
	return officeMIMEs[mimeType] || lossyImageMIMEs[mimeType]
}

// ExecTransducer shells out to an external document converter binary
// (e.g. libreoffice --headless --convert-to pdf), bounding the child
// process with a wall-clock timeout so a malformed document can't hang the
// ingestion pipeline.
type ExecTransducer struct {
	BinaryPath string
	Timeout    time.Duration
	WorkDir    string
}

// NewExecTransducer constructs an ExecTransducer. timeout <= 0 defaults
// to 30 seconds.
func NewExecTransducer(binaryPath, workDir string, timeout time.Duration) *ExecTransducer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecTransducer{BinaryPath: binaryPath, Timeout: timeout, WorkDir: workDir}
}

// Convert writes input to a scratch file, invokes the converter under a
// context deadline, and returns the produced PDF bytes. Lossy images are
// handled in-process via the standard image codecs rather than shelled out
// to the same binary, since that conversion needs no external tool.
func (e *ExecTransducer) Convert(ctx context.Context, input []byte, mimeType string) ([]byte, PreservationFormat, error) {
	if lossyImageMIMEs[mimeType] {
		return convertLossyImage(input, mimeType)
	}
	if !officeMIMEs[mimeType] {
		return input, FormatPassthrough, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	scratchDir, err := os.MkdirTemp(e.WorkDir, "mnemos-convert-*")
	if err != nil {
		return nil, "", fmt.Errorf("vault: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	inPath := filepath.Join(scratchDir, uuid.NewString())
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return nil, "", fmt.Errorf("vault: write scratch input: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.BinaryPath, "--headless", "--convert-to", "pdf", "--outdir", scratchDir, inPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("vault: conversion timed out: %w", merr.ErrConversionFailed)
		}
		return nil, "", fmt.Errorf("vault: conversion failed: %w: %s", err, stderr.String())
	}

	outPath := inPath + ".pdf"
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("vault: read converted output: %w", err)
	}
	return out, FormatPDF, nil
}

// convertLossyImage decodes a lossy image and re-encodes it as PNG.
func convertLossyImage(input []byte, mimeType string) ([]byte, PreservationFormat, error) {
	var img image.Image
	var err error
	switch mimeType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(input))
	default:
		return input, FormatPassthrough, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("vault: decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("vault: encode png: %w", err)
	}
	return buf.Bytes(), FormatPNG, nil
}

// PassthroughTransducer returns its input unchanged, tagged
// FormatPassthrough. Used for tests and for MIME types that never need
// conversion.
type PassthroughTransducer struct{}

func (PassthroughTransducer) Convert(_ context.Context, input []byte, _ string) ([]byte, PreservationFormat, error) {
	return input, FormatPassthrough, nil
}
