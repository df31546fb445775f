package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunOnceExecutesRegisteredLoop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sched := New(st, time.Hour)

	var calls int32
	sched.Register(Loop{Name: "test-loop", Interval: time.Hour, Run: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})

	ran, err := sched.RunOnce(ctx, "test-loop")
	require.NoError(t, err)
	require.True(t, ran)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	state, err := st.GetLoopState(ctx, "test-loop")
	require.NoError(t, err)
	require.True(t, state.NextRunAt.After(time.Now()))
	require.Equal(t, 0, state.ConsecutiveFails)
}

func TestRunOnceUnknownLoopErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sched := New(st, time.Hour)

	_, err := sched.RunOnce(ctx, "does-not-exist")
	require.Error(t, err)
}

func TestRunOnceRecordsFailureAndDisablesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sched := New(st, time.Hour)

	sched.Register(Loop{Name: "flaky", Interval: time.Minute, Run: func(ctx context.Context) error {
		return errors.New("boom")
	}})

	for i := 0; i < maxConsecutiveFails; i++ {
		ran, err := sched.RunOnce(ctx, "flaky")
		require.True(t, ran)
		require.Error(t, err)
		// ClaimLoop only succeeds once next_run_at is due; force it due again.
		_, err = st.DB().ExecContext(ctx, "UPDATE loop_states SET next_run_at = ? WHERE name = ?", time.Now().Add(-time.Minute), "flaky")
		require.NoError(t, err)
	}

	state, err := st.GetLoopState(ctx, "flaky")
	require.NoError(t, err)
	require.False(t, state.Enabled, "loop should auto-disable after repeated failures")
}

func TestPollOneSkipsClaimedLoop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sched := New(st, time.Hour)

	var calls int32
	loop := Loop{Name: "contended", Interval: time.Hour, Run: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}
	sched.Register(loop)

	require.NoError(t, st.EnsureLoopState(ctx, "contended"))
	_, ok, err := st.ClaimLoop(ctx, "contended", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	sched.pollOne(ctx, loop)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls), "a loop already claimed elsewhere must not run again")
}

func TestStartAndStop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sched := New(st, 10*time.Millisecond)

	var calls int32
	sched.Register(Loop{Name: "ticking", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})

	sched.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	require.True(t, atomic.LoadInt32(&calls) >= 1)
}
