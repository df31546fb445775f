// Package scheduler runs a registry of independently-scheduled named
// background loops — heartbeat escalation, connection synthesis sweeps,
// vault audits — generalizing the single fixed-interval ticker loop the
// rest of the ambient stack already uses (pkg/jobqueue's workers,
// pkg/session's idle-lock timer) into a registry that supports several
// such loops sharing one process, each independently claimable so more
// than one scheduler instance can poll the same store without a loop
// ever running twice at once.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/store"
)

// maxConsecutiveFails is how many failed runs in a row disable a loop
// automatically, so a persistently broken loop stops paging on every tick.
const maxConsecutiveFails = 5

// Run is the work performed by one named loop on one tick.
type Run func(ctx context.Context) error

// Loop is one named background job registered with a Scheduler.
type Loop struct {
	Name     string
	Interval time.Duration
	Run      Run
}

// Scheduler polls its store for due, claimable loops and runs them on a
// fixed tick, the same Start/Stop/stopCh shape used throughout the
// ambient stack.
type Scheduler struct {
	store *store.Store
	mu    sync.RWMutex
	loops map[string]Loop
	tick  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler that polls its registered loops every tick.
func New(st *store.Store, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Scheduler{
		store:  st,
		loops:  make(map[string]Loop),
		tick:   tick,
		stopCh: make(chan struct{}),
	}
}

// Register adds a named loop to the schedule. Call before Start; loops
// registered after Start won't be picked up until the next tick checks
// s.loops, which is safe but racy with a concurrently-running Start call
// only in the sense that the new loop may be skipped for one tick.
func (s *Scheduler) Register(loop Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops[loop.Name] = loop
}

// Start begins polling every registered loop on its own tick in the
// background. Start is not safe to call twice.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the poll loop to exit and waits for the in-flight tick, if
// any, to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.pollAll(ctx)
	for {
		select {
		case <-ticker.C:
			s.pollAll(ctx)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) pollAll(ctx context.Context) {
	s.mu.RLock()
	loops := make([]Loop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.RUnlock()

	for _, l := range loops {
		s.pollOne(ctx, l)
	}
}

// pollOne ensures the loop's state row exists, attempts to claim it, and
// runs it if the claim succeeds — i.e. if it is enabled and due.
func (s *Scheduler) pollOne(ctx context.Context, l Loop) {
	logger := log.WithLoopName(l.Name)

	if err := s.store.EnsureLoopState(ctx, l.Name); err != nil {
		logger.Error().Err(err).Msg("ensure loop state failed")
		return
	}

	now := time.Now().UTC()
	token, ok, err := s.store.ClaimLoop(ctx, l.Name, now)
	if err != nil {
		logger.Error().Err(err).Msg("claim loop failed")
		return
	}
	if !ok {
		return
	}

	runErr := s.runOnce(ctx, l)
	nextRunAt := now.Add(l.Interval)

	if err := s.store.ReleaseLoop(ctx, l.Name, token, now, nextRunAt, runErr); err != nil {
		logger.Error().Err(err).Msg("release loop failed")
		return
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("loop run failed")
		s.disableIfExhausted(ctx, l.Name)
		return
	}
	logger.Debug().Msg("loop run completed")
}

// disableIfExhausted turns a loop off once it has failed
// maxConsecutiveFails times in a row, so a persistently broken loop
// stops retrying (and alerting) forever.
func (s *Scheduler) disableIfExhausted(ctx context.Context, name string) {
	logger := log.WithLoopName(name)
	state, err := s.store.GetLoopState(ctx, name)
	if err != nil {
		logger.Error().Err(err).Msg("get loop state failed")
		return
	}
	if state.ConsecutiveFails < maxConsecutiveFails {
		return
	}
	if err := s.store.DisableLoop(ctx, name); err != nil {
		logger.Error().Err(err).Msg("disable loop failed")
		return
	}
	logger.Warn().Int("consecutive_fails", state.ConsecutiveFails).Msg("loop disabled after repeated failures")
}

// runOnce executes l.Run with a per-run timeout so one stuck loop can't
// starve the scheduler's single poll goroutine indefinitely.
func (s *Scheduler) runOnce(ctx context.Context, l Loop) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: loop %s panicked: %v", l.Name, r)
		}
	}()

	return l.Run(runCtx)
}

// RunOnce claims and runs a single named loop now, for CLI-driven manual
// invocation (`mnemos scheduler run-once <loop>`). The claim succeeds only
// when the loop is enabled, due (next_run_at has passed) and not claimed
// by another run; otherwise nothing runs and RunOnce returns (false, nil).
// A failed run counts toward the same auto-disable threshold as a polled
// run.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (ran bool, err error) {
	s.mu.RLock()
	l, exists := s.loops[name]
	s.mu.RUnlock()
	if !exists {
		return false, fmt.Errorf("scheduler: no loop registered named %q", name)
	}

	if err := s.store.EnsureLoopState(ctx, name); err != nil {
		return false, fmt.Errorf("scheduler: ensure loop state: %w", err)
	}

	now := time.Now().UTC()
	token, ok, err := s.store.ClaimLoop(ctx, name, now)
	if err != nil {
		return false, fmt.Errorf("scheduler: claim loop: %w", err)
	}
	if !ok {
		return false, nil
	}

	runErr := s.runOnce(ctx, l)
	nextRunAt := now.Add(l.Interval)
	if err := s.store.ReleaseLoop(ctx, name, token, now, nextRunAt, runErr); err != nil {
		return true, fmt.Errorf("scheduler: release loop: %w", err)
	}
	if runErr != nil {
		s.disableIfExhausted(ctx, name)
	}
	return true, runErr
}
