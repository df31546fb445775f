package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/merr"
)

func TestQueueRunsRegisteredHandler(t *testing.T) {
	q := New(2)
	var processed int32
	done := make(chan struct{}, 1)

	q.RegisterHandler(KindEmbedMemory, func(_ context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Kind: KindEmbedMemory, MemoryID: "mem-1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run in time")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&processed))
}

func TestQueueUnregisteredKindDoesNotPanic(t *testing.T) {
	q := New(1)
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Kind: KindSuggestTags, MemoryID: "mem-1"}))
	time.Sleep(50 * time.Millisecond) // let the worker observe the missing handler
}

func TestEnqueueAfterStopReturnsQuotaExceeded(t *testing.T) {
	q := New(1)
	q.Start()
	q.Stop()

	err := q.Enqueue(Job{Kind: KindEmbedMemory, MemoryID: "mem-1"})
	require.ErrorIs(t, err, merr.ErrQuotaExceeded)
}
