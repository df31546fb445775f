package heartbeat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	levels []domain.EscalationLevel
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, level domain.EscalationLevel, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
	return nil
}

func testConfig() domain.TestamentConfig {
	return domain.TestamentConfig{
		CheckinIntervalDays: 7, ReminderAfterDays: 10, UrgentAfterDays: 20,
		EmergencyAfterDays: 30, KeyholdersAfterDays: 40, InheritanceAfterDays: 50,
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func backdateCheckin(t *testing.T, ctx context.Context, st *store.Store, ownerID string, daysAgo int) {
	t.Helper()
	_, err := st.DB().ExecContext(ctx,
		"INSERT INTO heartbeat_checkins (id, owner_id, checked_in_at) VALUES (?,?,?)",
		"checkin-"+ownerID, ownerID, time.Now().Add(-time.Duration(daysAgo)*24*time.Hour))
	require.NoError(t, err)
}

func TestRunEscalationNoCheckinIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	notifier := &recordingNotifier{}
	driver := New(st, notifier)

	level, err := driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)
	require.Equal(t, domain.EscalationFresh, level)
	require.Empty(t, notifier.levels)
}

func TestRunEscalationFiresReminderAfterThreshold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	backdateCheckin(t, ctx, st, "owner-1", 15)
	notifier := &recordingNotifier{}
	driver := New(st, notifier)

	level, err := driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)
	require.Equal(t, domain.EscalationReminded, level)
	require.Equal(t, []domain.EscalationLevel{domain.EscalationReminded}, notifier.levels)
}

func TestRunEscalationIsIdempotentWithinSameDay(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	backdateCheckin(t, ctx, st, "owner-1", 15)
	notifier := &recordingNotifier{}
	driver := New(st, notifier)

	_, err := driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)
	_, err = driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)

	require.Len(t, notifier.levels, 1, "re-running the same day must not re-send already-sent alerts")
}

func TestCheckInResetsEscalation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	backdateCheckin(t, ctx, st, "owner-1", 60)
	notifier := &recordingNotifier{}
	driver := New(st, notifier)

	level, err := driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)
	require.Equal(t, domain.EscalationInheritanceTriggered, level)

	_, err = driver.CheckIn(ctx, "owner-1")
	require.NoError(t, err)

	level, err = driver.RunEscalation(ctx, "owner-1", testConfig())
	require.NoError(t, err)
	require.Equal(t, domain.EscalationFresh, level)
}
