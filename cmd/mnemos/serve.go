package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/internal/chattransport"
	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/config"
	"github.com/mnemos/mnemos/pkg/connections"
	"github.com/mnemos/mnemos/pkg/cortex"
	"github.com/mnemos/mnemos/pkg/cortex/chat"
	"github.com/mnemos/mnemos/pkg/cortex/hybridsearch"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/envelope"
	"github.com/mnemos/mnemos/pkg/health"
	"github.com/mnemos/mnemos/pkg/heartbeat"
	"github.com/mnemos/mnemos/pkg/jobqueue"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/metrics"
	"github.com/mnemos/mnemos/pkg/scheduler"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

const jobQueueConcurrency = 4

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Mnemos server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return fmt.Errorf("serve: create data dir: %w", err)
	}

	st, err := store.Open(ctx, filepath.Join(cfg.Data.Dir, "mnemos.db"))
	if err != nil {
		return fmt.Errorf("serve: open store: %w", err)
	}
	defer st.Close()
	metrics.RegisterComponent("store", true, "")

	sess := session.New(st, 15*time.Minute)
	if err := unlockOrBootstrap(ctx, st, sess, kdfParams(cfg)); err != nil {
		return err
	}
	sess.Start()
	defer sess.Stop()
	metrics.RegisterComponent("session", true, "")

	owner, err := ensureOwnerProfile(ctx, st)
	if err != nil {
		return err
	}

	vlt := vault.New(cfg.Data.VaultRoot, sess)
	envelopes := envelope.New(sess)
	tokenizer := blindindex.New(sess)
	metrics.RegisterComponent("vault", true, "")

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
		return fmt.Errorf("serve: open vector store: %w", err)
	}
	checkProviderHealth(ctx, "embedding-provider", cfg.Embedding.Endpoint)
	checkProviderHealth(ctx, "chat-provider", cfg.Chat.Endpoint)

	jobs := jobqueue.New(jobQueueConcurrency)
	embedSvc := cortex.NewEmbedder(st, vectors, embedder, envelopes)
	tagSvc := cortex.NewTagSuggester(st, chatProvider, envelopes)
	synth := connections.New(st, vectors, embedder, chatProvider, envelopes)

	jobs.RegisterHandler(jobqueue.KindEmbedMemory, func(ctx context.Context, job jobqueue.Job) error {
		return embedSvc.EmbedMemory(ctx, job.MemoryID)
	})
	jobs.RegisterHandler(jobqueue.KindSynthesizeConnections, func(ctx context.Context, job jobqueue.Job) error {
		return synth.SynthesizeForMemory(ctx, job.MemoryID)
	})
	jobs.RegisterHandler(jobqueue.KindSuggestTags, func(ctx context.Context, job jobqueue.Job) error {
		return tagSvc.SuggestTags(ctx, job.MemoryID)
	})
	jobs.Start()
	defer jobs.Stop()

	searcher := hybridsearch.New(st, tokenizer, vectors, embedder)
	chatPipeline := chat.New(st, searcher, chatProvider, envelopes)

	notifier := heartbeatNotifier(cfg)
	hbDriver := heartbeat.New(st, notifier)
	auditor := vault.NewAuditor(vlt, st)

	sched := scheduler.New(st, cfg.Scheduler.TickInterval)
	registerLoops(sched, st, hbDriver, auditor, synth, owner.ID)
	sched.Start(ctx)
	defer sched.Stop()

	auth := &staticTokenAuthenticator{token: cfg.Server.APIToken, store: st, ownerID: owner.ID}
	chatHandler := chattransport.New(auth, chatPipeline, st)

	mux := http.NewServeMux()
	mux.Handle("/ws/chat", chatHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("serve").Info().Str("addr", cfg.Server.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.WithComponent("serve").Info().Msg("shutting down")
	case err := <-errCh:
		log.WithComponent("serve").Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// unlockOrBootstrap initializes credentials on first run (no master
// passphrase set yet) or unlocks the session against existing ones.
func unlockOrBootstrap(ctx context.Context, st *store.Store, sess *session.Session, params crypto.Argon2Params) error {
	_, err := st.LoadCredentials(ctx)
	if errors.Is(err, merr.ErrNotFound) {
		pass, err := passphraseFromEnvOrPrompt(ctx, "Set a master passphrase for this vault: ")
		if err != nil {
			return err
		}
		if err := session.InitializeCredentials(ctx, st, pass, params); err != nil {
			return fmt.Errorf("serve: initialize credentials: %w", err)
		}
		return sess.Unlock(ctx, pass)
	}
	if err != nil {
		return fmt.Errorf("serve: load credentials: %w", err)
	}

	pass, err := passphraseFromEnvOrPrompt(ctx, "Unlock passphrase: ")
	if err != nil {
		return err
	}
	return sess.Unlock(ctx, pass)
}

func kdfParams(cfg config.Config) crypto.Argon2Params {
	return crypto.Argon2Params{
		TimeCost:    cfg.KDF.TimeCost,
		MemoryKiB:   cfg.KDF.MemoryKiB,
		Parallelism: cfg.KDF.Parallelism,
	}
}

func ensureOwnerProfile(ctx context.Context, st *store.Store) (domain.OwnerProfile, error) {
	owner, err := st.GetOwnerProfile(ctx)
	if errors.Is(err, merr.ErrNotFound) {
		return st.CreateOwnerProfile(ctx, "Owner")
	}
	return owner, err
}

func heartbeatNotifier(cfg config.Config) heartbeat.Notifier {
	if cfg.SMTP.Host == "" {
		return heartbeat.LogNotifier{}
	}
	return heartbeat.NewSMTPNotifier(heartbeat.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		To:       cfg.SMTP.To,
	})
}

// checkProviderHealth probes endpoint once at startup and records the
// result under name for the /healthz endpoint. A provider that is
// unreachable at boot doesn't block serve from starting — requests that
// need it will simply fail until it recovers.
func checkProviderHealth(ctx context.Context, name, endpoint string) {
	if endpoint == "" {
		metrics.RegisterComponent(name, false, "no endpoint configured")
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result := health.NewHTTPChecker(endpoint).Check(checkCtx)
	metrics.RegisterComponent(name, result.Healthy, result.Message)
}

func openVectorStore(ctx context.Context, dsn string, dim int) (vectorstore.Store, error) {
	if dsn == "" {
		return vectorstore.NewInMemoryStore(), nil
	}
	return vectorstore.Open(ctx, dsn, dim)
}
