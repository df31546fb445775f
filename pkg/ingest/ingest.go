// Package ingest runs the single transactional pipeline that turns
// captured content into a Memory: digest for dedup, write the original
// bytes to the vault, encrypt title/body into envelopes, tokenize for
// blind-index search, and commit all of it in one transaction. Background
// work (embedding, connection synthesis, tag suggestion) is enqueued only
// after that transaction commits, so a crash mid-ingestion never leaves a
// Memory without its tokens or a Source without its vault file.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/jobqueue"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

// Input is the plaintext content to ingest. OriginalBytes is the raw
// upload (nil for a plain typed note, in which case the Body text itself
// is digested for dedup).
type Input struct {
	OwnerID       string
	Title         string
	Body          string
	SourceKind    domain.SourceKind
	Filename      string
	MIMEType      string
	OriginalBytes []byte
	CapturedAt    time.Time
	Latitude      *float64
	Longitude     *float64
}

// Ingestor wires the components one ingestion pass touches.
type Ingestor struct {
	store      *store.Store
	vault      *vault.Vault
	envelopes  *envelope.Store
	tokenizer  *blindindex.Tokenizer
	transducer vault.Transducer
	jobs       *jobqueue.Queue
}

// New constructs an Ingestor. A nil transducer falls back to
// vault.PassthroughTransducer, matching the behavior before archival
// conversion existed.
func New(st *store.Store, v *vault.Vault, envelopes *envelope.Store, tokenizer *blindindex.Tokenizer, transducer vault.Transducer, jobs *jobqueue.Queue) *Ingestor {
	if transducer == nil {
		transducer = vault.PassthroughTransducer{}
	}
	return &Ingestor{store: st, vault: v, envelopes: envelopes, tokenizer: tokenizer, transducer: transducer, jobs: jobs}
}

// Ingest runs the full pipeline for in, returning the existing Memory
// without writing anything if its content digest already exists (dedup).
func (ig *Ingestor) Ingest(ctx context.Context, in Input) (domain.Memory, error) {
	dedupBytes := in.OriginalBytes
	if len(dedupBytes) == 0 {
		dedupBytes = []byte(in.Body)
	}
	digest := vault.Digest(dedupBytes)

	if existing, err := ig.store.FindSourceByDigest(ctx, digest); err == nil {
		return ig.store.GetMemory(ctx, existing.MemoryID)
	} else if merr.Kind(err) != "not_found" {
		return domain.Memory{}, fmt.Errorf("ingest: check dedup: %w", err)
	}

	memoryID := ulid.Make().String()
	sourceID := ulid.Make().String()

	titleEnv, err := ig.envelopes.Encrypt([]byte(in.Title), []byte(memoryID))
	if err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: encrypt title: %w", err)
	}
	bodyEnv, err := ig.envelopes.Encrypt([]byte(in.Body), []byte(memoryID))
	if err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: encrypt body: %w", err)
	}

	var vaultPath string
	var byteSize, encryptedSize int64
	var archivalDigest string
	var fileDEKWrapped []byte
	var fileDEKAlgoTag string
	preservationFormat := vault.FormatPassthrough
	if len(in.OriginalBytes) > 0 {
		archival := in.OriginalBytes
		if vault.NeedsConversion(in.MIMEType) {
			converted, format, err := ig.transducer.Convert(ctx, in.OriginalBytes, in.MIMEType)
			if err != nil {
				return domain.Memory{}, fmt.Errorf("ingest: %w: %v", merr.ErrConversionFailed, err)
			}
			archival = converted
			preservationFormat = format
		}

		written, err := ig.vault.Write(archival, []byte(sourceID))
		if err != nil {
			return domain.Memory{}, fmt.Errorf("ingest: write vault file: %w", err)
		}
		vaultPath = written.VaultPath
		byteSize = written.ByteSize
		encryptedSize = written.EncryptedSize
		archivalDigest = written.Digest
		fileDEKWrapped = written.WrappedDEK
		fileDEKAlgoTag = written.AlgoTag
	} else {
		byteSize = int64(len(in.Body))
	}

	capturedAt := in.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	now := time.Now()

	memory := domain.Memory{
		ID:         memoryID,
		OwnerID:    in.OwnerID,
		Title:      titleEnv,
		Body:       bodyEnv,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		CapturedAt: capturedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	source := domain.Source{
		ID:                 sourceID,
		MemoryID:           memoryID,
		Kind:               in.SourceKind,
		Filename:           in.Filename,
		MIMEType:           in.MIMEType,
		ByteSize:           byteSize,
		EncryptedSize:      encryptedSize,
		VaultPath:          vaultPath,
		Digest:             digest,
		PreservationFormat: string(preservationFormat),
		FileDEKWrapped:     fileDEKWrapped,
		FileDEKAlgoTag:     fileDEKAlgoTag,
		CreatedAt:          now,
	}

	titleTokens, err := ig.tokenizer.RebuildTokens(memoryID, in.OwnerID, domain.FieldTitle, in.Title)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: tokenize title: %w", err)
	}
	bodyTokens, err := ig.tokenizer.RebuildTokens(memoryID, in.OwnerID, domain.FieldBody, in.Body)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: tokenize body: %w", err)
	}

	tx, err := ig.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := store.InsertMemory(ctx, tx, memory); err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: %w", err)
	}
	if err := store.InsertSourceTx(ctx, tx, source); err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: %w", err)
	}
	if err := store.InsertSearchTokensTx(ctx, tx, titleTokens); err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: %w", err)
	}
	if err := store.InsertSearchTokensTx(ctx, tx, bodyTokens); err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: %w", err)
	}
	if vaultPath != "" {
		entry := store.VaultManifestEntry{
			VaultPath:          vaultPath,
			MemoryID:           memoryID,
			SourceID:           sourceID,
			Digest:             archivalDigest,
			ByteSize:           byteSize,
			PreservationFormat: string(preservationFormat),
			WrappedDEK:         fileDEKWrapped,
			AlgoTag:            fileDEKAlgoTag,
		}
		if err := store.PutVaultManifestEntryTx(ctx, tx, entry); err != nil {
			return domain.Memory{}, fmt.Errorf("ingest: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Memory{}, fmt.Errorf("ingest: commit: %w", err)
	}

	ig.enqueueBackgroundWork(memoryID)
	return memory, nil
}

// enqueueBackgroundWork submits the post-commit jobs a new Memory needs.
// Enqueue failures (a full or stopped queue) are logged, not returned: the
// Memory is already durably committed. A dropped job is not re-enqueued;
// only connection synthesis is redone later, by the server's periodic
// sweep over the most recently captured memories.
func (ig *Ingestor) enqueueBackgroundWork(memoryID string) {
	if ig.jobs == nil {
		return
	}
	logger := log.WithMemoryID(memoryID)
	for _, kind := range []jobqueue.Kind{jobqueue.KindEmbedMemory, jobqueue.KindSynthesizeConnections, jobqueue.KindSuggestTags} {
		if err := ig.jobs.Enqueue(jobqueue.Job{Kind: kind, MemoryID: memoryID}); err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to enqueue background job")
		}
	}
}
