package testament

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{TimeCost: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
}

func setup(t *testing.T) (*Manager, *store.Store, *session.Session, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, session.InitializeCredentials(ctx, st, []byte("a very secret passphrase"), testArgon2Params()))
	sess := session.New(st, 0)
	require.NoError(t, sess.Unlock(ctx, []byte("a very secret passphrase")))

	owner, err := st.CreateOwnerProfile(ctx, "Test Owner")
	require.NoError(t, err)

	return New(st, sess), st, sess, owner.ID
}

func TestConfigureSplitsMasterKeyIntoShares(t *testing.T) {
	ctx := context.Background()
	mgr, _, _, ownerID := setup(t)

	cfg, shares, err := mgr.Configure(ctx, ownerID, 3, 5, domain.TestamentConfig{
		CheckinIntervalDays: 30, ReminderAfterDays: 35, UrgentAfterDays: 40,
		EmergencyAfterDays: 45, KeyholdersAfterDays: 50, InheritanceAfterDays: 60,
	})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Threshold)
	require.Equal(t, 5, cfg.TotalShares)
	require.Len(t, shares, 5)
}

func TestCombineAndEnterHeirModeWithEnoughShares(t *testing.T) {
	ctx := context.Background()
	mgr, st, sess, ownerID := setup(t)

	_, shares, err := mgr.Configure(ctx, ownerID, 3, 5, domain.TestamentConfig{CheckinIntervalDays: 30})
	require.NoError(t, err)

	sess.Lock()
	require.Equal(t, session.Locked, sess.State())

	err = mgr.CombineAndEnterHeirMode(ctx, ownerID, "heir-person-1", shares[:3])
	require.NoError(t, err)
	require.Equal(t, session.Unlocked, sess.State())

	logs, err := st.ListAuditLog(ctx, ownerID)
	require.NoError(t, err)
	var sawCombined, sawEntered bool
	for _, l := range logs {
		if l.Action == domain.AuditSharesCombined {
			sawCombined = true
		}
		if l.Action == domain.AuditHeirModeEntered {
			sawEntered = true
		}
	}
	require.True(t, sawCombined)
	require.True(t, sawEntered)
}

func TestCombineAndEnterHeirModeFailsWithTooFewShares(t *testing.T) {
	ctx := context.Background()
	mgr, _, sess, ownerID := setup(t)

	_, shares, err := mgr.Configure(ctx, ownerID, 3, 5, domain.TestamentConfig{CheckinIntervalDays: 30})
	require.NoError(t, err)

	sess.Lock()
	err = mgr.CombineAndEnterHeirMode(ctx, ownerID, "heir-person-1", shares[:2])
	require.Error(t, err)
	require.Equal(t, session.Locked, sess.State())
}

func TestGrantAndRevokeHeir(t *testing.T) {
	ctx := context.Background()
	mgr, st, _, ownerID := setup(t)

	person, err := st.CreatePerson(ctx, ownerID, "Alex", false)
	require.NoError(t, err)

	heir, err := mgr.GrantHeir(ctx, ownerID, person.ID, 1, "alex@example.com")
	require.NoError(t, err)

	heirs, err := st.ListHeirs(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, heirs, 1)

	require.NoError(t, mgr.RevokeHeir(ctx, ownerID, heir.ID))
	heirs, err = st.ListHeirs(ctx, ownerID)
	require.NoError(t, err)
	require.Empty(t, heirs)
}
