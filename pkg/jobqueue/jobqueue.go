// Package jobqueue runs the background work a memory's ingestion enqueues
// once its transaction commits: embedding its chunks, synthesizing
// connections to other memories, suggesting tags. It is a bounded worker
// pool, not a broadcast bus — each job must run exactly once, by exactly
// one worker.
//
// It uses a buffered-channel+stopCh+mutex-guarded-state shape, but
// fans out to one of N workers rather than broadcasting to every
// subscriber, since a connection-synthesis job run twice would do real
// (if idempotent) extra work rather than just notify twice.
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
)

// Kind identifies a job's handler.
type Kind string

const (
	// KindEmbedMemory chunks and embeds a memory's body into the vector
	// store.
	KindEmbedMemory Kind = "embed_memory"
	// KindSynthesizeConnections runs connection synthesis for a memory
	// against its nearest neighbors.
	KindSynthesizeConnections Kind = "synthesize_connections"
	// KindSuggestTags asks the chat provider to propose tags/people for a
	// newly ingested memory.
	KindSuggestTags Kind = "suggest_tags"
)

// Job is one unit of background work, always scoped to a single memory.
type Job struct {
	ID        string
	Kind      Kind
	MemoryID  string
	CreatedAt time.Time
}

// Handler processes one Job. A returned error is logged; jobqueue does not
// retry — callers needing at-least-once delivery across process restarts
// should make their handler re-derive its work from durable state (as
// pkg/connections and pkg/cortex do) rather than rely on the in-memory
// queue surviving a crash.
type Handler func(ctx context.Context, job Job) error

// queueDepth is how many pending jobs can buffer before Enqueue starts
// rejecting work.
const queueDepth = 256

// Queue is a bounded worker pool keyed by Job Kind.
type Queue struct {
	jobs   chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[Kind]Handler

	concurrency int
	started     bool
}

// New constructs a Queue that runs up to concurrency jobs at once.
func New(concurrency int) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Queue{
		jobs:        make(chan Job, queueDepth),
		stopCh:      make(chan struct{}),
		handlers:    make(map[Kind]Handler),
		concurrency: concurrency,
	}
}

// RegisterHandler binds kind to handler. Must be called before Start.
func (q *Queue) RegisterHandler(kind Kind, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.runWorker()
	}
}

// Stop signals every worker to finish its current job and exit, then
// waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
}

func (q *Queue) runWorker() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.run(job)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) run(job Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()

	logger := log.WithMemoryID(job.MemoryID)
	if !ok {
		logger.Error().Str("kind", string(job.Kind)).Msg("no handler registered for job kind")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := handler(ctx, job); err != nil {
		logger.Error().Err(err).Str("kind", string(job.Kind)).Msg("background job failed")
	}
}

// Enqueue submits job for processing, assigning it an ID and timestamp if
// unset. It returns merr.ErrQuotaExceeded if the queue is full or stopped
// rather than blocking the caller's ingestion transaction.
func (q *Queue) Enqueue(job Job) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	select {
	case <-q.stopCh:
		return fmt.Errorf("jobqueue: %w: queue stopped", merr.ErrQuotaExceeded)
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.stopCh:
		return fmt.Errorf("jobqueue: %w: queue stopped", merr.ErrQuotaExceeded)
	default:
		return fmt.Errorf("jobqueue: %w: queue full", merr.ErrQuotaExceeded)
	}
}
