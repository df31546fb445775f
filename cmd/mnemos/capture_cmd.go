package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/connections"
	"github.com/mnemos/mnemos/pkg/cortex"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/ingest"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Ingest a new memory: a typed note, a file, or (unimplemented) a URL",
}

var captureTitle string
var captureCapturedAt string

var captureTextCmd = &cobra.Command{
	Use:   "text BODY",
	Short: "Capture a typed note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := ingest.Input{
			Title:      captureTitle,
			Body:       args[0],
			SourceKind: domain.SourceNote,
		}
		return runCapture(cmd.Context(), in)
	},
}

var captureFileCmd = &cobra.Command{
	Use:   "file PATH",
	Short: "Capture a file, archiving it into the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("capture file: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("capture file: read: %w", err)
		}

		title := captureTitle
		if title == "" {
			title = filepath.Base(args[0])
		}

		in := ingest.Input{
			Title:         title,
			Body:          "",
			SourceKind:    domain.SourceUpload,
			Filename:      filepath.Base(args[0]),
			MIMEType:      mime.TypeByExtension(filepath.Ext(args[0])),
			OriginalBytes: data,
		}
		return runCapture(cmd.Context(), in)
	},
}

// captureURLCmd exists because spec's ingest contract enumerates three
// capture shapes — file, text, url — but explicitly allows url to be
// unimplemented, returning a dedicated error rather than omitting the
// command entirely.
var captureURLCmd = &cobra.Command{
	Use:   "url ADDRESS",
	Short: "Capture a web page (not implemented)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return errURLCaptureNotImplemented
	},
}

var errURLCaptureNotImplemented = fmt.Errorf("capture url: fetching and archiving a live web page is not implemented")

func runCapture(ctx context.Context, in ingest.Input) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, sess, owner, cleanup, err := openUnlockedStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if captureCapturedAt != "" {
		t, err := time.Parse(time.RFC3339, captureCapturedAt)
		if err != nil {
			return fmt.Errorf("capture: invalid --captured-at: %w", err)
		}
		in.CapturedAt = t
	}
	in.OwnerID = owner.ID

	vlt := vault.New(cfg.Data.VaultRoot, sess)
	envelopes := envelope.New(sess)
	tokenizer := blindindex.New(sess)

	transducer := vault.NewExecTransducer(cfg.Data.ConverterBinary, cfg.Data.VaultRoot, 0)

	// No jobqueue is passed: this is a short-lived CLI process, so
	// background work runs synchronously below instead of being handed to
	// a worker pool that would die with the process before draining.
	ingestor := ingest.New(st, vlt, envelopes, tokenizer, transducer, nil)
	memory, err := ingestor.Ingest(ctx, in)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	embedder := provider.NewHTTPEmbeddingProvider(provider.HTTPConfig{
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
	}, cfg.Embedding.Dimensions)
	chatProvider := provider.NewHTTPChatProvider(provider.HTTPConfig{
		Endpoint: cfg.Chat.Endpoint,
		Model:    cfg.Chat.Model,
		APIKey:   cfg.Chat.APIKey,
	})
	vectors, err := openVectorStore(ctx, cfg.Vector.DSN, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("capture: open vector store: %w", err)
	}

	runCaptureBackgroundWork(ctx, st, envelopes, vectors, embedder, chatProvider, memory.ID)

	fmt.Printf("Captured memory %s\n", memory.ID)
	return nil
}

// runCaptureBackgroundWork performs inline, in this same process, what the
// running server's jobqueue would do asynchronously for a memory ingested
// there: embed its chunks, synthesize connections, suggest tags. This CLI
// process exits right after capture, so there is no worker pool to hand
// the work to — failures here are logged and swallowed, since the memory
// is already committed. Of this work, only connection synthesis is redone
// later, by the server's connection-synthesis-sweep loop, and only while
// the memory is among the most recently captured; a failed embedding or
// tag suggestion is not retried.
func runCaptureBackgroundWork(ctx context.Context, st *store.Store, envelopes *envelope.Store, vectors vectorstore.Store, embedder provider.EmbeddingProvider, chatProvider provider.ChatProvider, memoryID string) {
	embedSvc := cortex.NewEmbedder(st, vectors, embedder, envelopes)
	if err := embedSvc.EmbedMemory(ctx, memoryID); err != nil {
		log.WithMemoryID(memoryID).Warn().Err(err).Msg("capture: embed memory failed")
	}

	synth := connections.New(st, vectors, embedder, chatProvider, envelopes)
	if err := synth.SynthesizeForMemory(ctx, memoryID); err != nil {
		log.WithMemoryID(memoryID).Warn().Err(err).Msg("capture: synthesize connections failed")
	}

	tagSvc := cortex.NewTagSuggester(st, chatProvider, envelopes)
	if err := tagSvc.SuggestTags(ctx, memoryID); err != nil {
		log.WithMemoryID(memoryID).Warn().Err(err).Msg("capture: suggest tags failed")
	}
}

func init() {
	captureTextCmd.Flags().StringVar(&captureTitle, "title", "", "memory title")
	captureTextCmd.Flags().StringVar(&captureCapturedAt, "captured-at", "", "RFC3339 timestamp the memory happened at (defaults to now)")
	captureFileCmd.Flags().StringVar(&captureTitle, "title", "", "memory title (defaults to the filename)")
	captureFileCmd.Flags().StringVar(&captureCapturedAt, "captured-at", "", "RFC3339 timestamp the memory happened at (defaults to now)")

	captureCmd.AddCommand(captureTextCmd)
	captureCmd.AddCommand(captureFileCmd)
	captureCmd.AddCommand(captureURLCmd)
}
