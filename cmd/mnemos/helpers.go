package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mnemos/mnemos/pkg/config"
	"github.com/mnemos/mnemos/pkg/connections"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/heartbeat"
	"github.com/mnemos/mnemos/pkg/scheduler"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

func dayInterval() time.Duration  { return 24 * time.Hour }
func hourInterval() time.Duration { return time.Hour }

// openStoreOnly opens the configured store without touching the session,
// for commands (like testament combine) that derive their own key
// material instead of unlocking with a passphrase.
func openStoreOnly(ctx context.Context, cfg config.Config) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(cfg.Data.Dir, "mnemos.db"))
}

// newSessionForHeirMode constructs a Session that CombineAndEnterHeirMode
// will unlock directly from a reconstructed master key, bypassing the
// passphrase path entirely.
func newSessionForHeirMode(st *store.Store) *session.Session {
	return session.New(st, 0)
}

// openUnlockedStore opens the configured store and unlocks a session
// against it, for operator CLI subcommands that need key material
// outside of a running server process.
func openUnlockedStore(ctx context.Context, cfg config.Config) (*store.Store, *session.Session, domain.OwnerProfile, func(), error) {
	st, err := store.Open(ctx, filepath.Join(cfg.Data.Dir, "mnemos.db"))
	if err != nil {
		return nil, nil, domain.OwnerProfile{}, nil, fmt.Errorf("open store: %w", err)
	}

	sess := session.New(st, 0)
	if err := unlockOrBootstrap(ctx, st, sess, kdfParams(cfg)); err != nil {
		st.Close()
		return nil, nil, domain.OwnerProfile{}, nil, err
	}

	owner, err := ensureOwnerProfile(ctx, st)
	if err != nil {
		st.Close()
		return nil, nil, domain.OwnerProfile{}, nil, err
	}

	cleanup := func() { st.Close() }
	return st, sess, owner, cleanup, nil
}

// buildSchedulerForCLI reconstructs the same named-loop registry serve
// registers, so `mnemos scheduler run-once` exercises the real loop
// bodies rather than a stand-in.
func buildSchedulerForCLI(ctx context.Context, st *store.Store, sess *session.Session, cfg config.Config, ownerID string) (*scheduler.Scheduler, error) {
	vlt := vault.New(cfg.Data.VaultRoot, sess)
	envelopes := envelope.New(sess)

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
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	synth := connections.New(st, vectors, embedder, chatProvider, envelopes)
	notifier := heartbeatNotifier(cfg)
	hbDriver := heartbeat.New(st, notifier)
	auditor := vault.NewAuditor(vlt, st)

	sched := scheduler.New(st, cfg.Scheduler.TickInterval)
	registerLoops(sched, st, hbDriver, auditor, synth, ownerID)
	return sched, nil
}
