// Package testament implements the digital-inheritance mechanism (spec
// §4.7): splitting the master key into Shamir shares held by named heirs,
// and reconstructing it once enough shares are presented after the
// heartbeat loop has escalated to EscalationInheritanceTriggered.
package testament

import (
	"context"
	"fmt"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/session"
	"github.com/mnemos/mnemos/pkg/store"
)

// Manager orchestrates testament configuration, heir management, and
// heir-mode reconstruction for one running session.
type Manager struct {
	store *store.Store
	sess  *session.Session
}

// New constructs a Manager bound to st and sess.
func New(st *store.Store, sess *session.Session) *Manager {
	return &Manager{store: st, sess: sess}
}

// Configure splits the live session's master key into totalShares Shamir
// shares (any threshold of which reconstruct it) and persists the
// escalation schedule alongside. The session must be Unlocked — splitting
// requires the master key, which only exists in memory while unlocked.
func (m *Manager) Configure(ctx context.Context, ownerID string, threshold, totalShares int, schedule domain.TestamentConfig) (domain.TestamentConfig, []crypto.Share, error) {
	keys, err := m.sess.Keys()
	if err != nil {
		return domain.TestamentConfig{}, nil, err
	}
	m.sess.Touch()

	shares, err := crypto.SplitMasterKey(keys.Master, threshold, totalShares)
	if err != nil {
		return domain.TestamentConfig{}, nil, fmt.Errorf("testament: split master key: %w", err)
	}

	schedule.OwnerID = ownerID
	schedule.Threshold = threshold
	schedule.TotalShares = totalShares
	cfg, err := m.store.SaveTestamentConfig(ctx, schedule)
	if err != nil {
		return domain.TestamentConfig{}, nil, fmt.Errorf("testament: save config: %w", err)
	}

	if _, err := m.store.AppendAuditLog(ctx, domain.AuditLog{
		OwnerID: ownerID,
		ActorID: ownerID,
		Action:  domain.AuditConfigChanged,
		Detail:  fmt.Sprintf("testament configured: %d-of-%d shares", threshold, totalShares),
	}); err != nil {
		return domain.TestamentConfig{}, nil, fmt.Errorf("testament: audit log: %w", err)
	}

	return cfg, shares, nil
}

// GrantHeir records that personID holds the share at shareIndex.
func (m *Manager) GrantHeir(ctx context.Context, ownerID, personID string, shareIndex int, email string) (domain.Heir, error) {
	heir, err := m.store.AddHeir(ctx, domain.Heir{OwnerID: ownerID, PersonID: personID, ShareIndex: shareIndex, Email: email})
	if err != nil {
		return domain.Heir{}, fmt.Errorf("testament: add heir: %w", err)
	}
	if _, err := m.store.AppendAuditLog(ctx, domain.AuditLog{
		OwnerID: ownerID,
		ActorID: ownerID,
		Action:  domain.AuditConfigChanged,
		Detail:  fmt.Sprintf("heir granted: person=%s share=%d", personID, shareIndex),
	}); err != nil {
		return domain.Heir{}, fmt.Errorf("testament: audit log: %w", err)
	}
	return heir, nil
}

// RevokeHeir revokes a previously granted Heir.
func (m *Manager) RevokeHeir(ctx context.Context, ownerID, heirID string) error {
	if err := m.store.RevokeHeir(ctx, heirID); err != nil {
		return fmt.Errorf("testament: revoke heir: %w", err)
	}
	_, err := m.store.AppendAuditLog(ctx, domain.AuditLog{
		OwnerID: ownerID,
		ActorID: ownerID,
		Action:  domain.AuditConfigChanged,
		Detail:  fmt.Sprintf("heir revoked: %s", heirID),
	})
	if err != nil {
		return fmt.Errorf("testament: audit log: %w", err)
	}
	return nil
}

// CombineAndEnterHeirMode reconstructs the master key from shares,
// verifies it against the owner's stored verifier (Shamir silently
// produces a garbage key from too few or wrong shares rather than
// erroring), and unlocks the session under it if correct. actorPersonID
// identifies which heir performed the combination, for the audit trail.
func (m *Manager) CombineAndEnterHeirMode(ctx context.Context, ownerID, actorPersonID string, shares []crypto.Share) error {
	master, err := crypto.CombineShares(shares)
	if err != nil {
		return fmt.Errorf("testament: combine shares: %w", err)
	}
	defer crypto.Zero(master)

	creds, err := m.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("testament: load credentials: %w", err)
	}
	if _, err := crypto.Open(master, creds.VerifierWrapped, nil); err != nil {
		return fmt.Errorf("testament: %w: combined shares do not reconstruct the master key", merr.ErrInsufficientShares)
	}

	if err := m.sess.UnlockWithMasterKey(master); err != nil {
		return fmt.Errorf("testament: enter heir mode: %w", err)
	}

	if _, err := m.store.AppendAuditLog(ctx, domain.AuditLog{
		OwnerID: ownerID,
		ActorID: actorPersonID,
		Action:  domain.AuditSharesCombined,
		Detail:  fmt.Sprintf("%d shares combined successfully", len(shares)),
	}); err != nil {
		return fmt.Errorf("testament: audit log: %w", err)
	}
	_, err = m.store.AppendAuditLog(ctx, domain.AuditLog{
		OwnerID: ownerID,
		ActorID: actorPersonID,
		Action:  domain.AuditHeirModeEntered,
		Detail:  "heir-mode session started",
	})
	if err != nil {
		return fmt.Errorf("testament: audit log: %w", err)
	}
	return nil
}
