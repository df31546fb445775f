package domain

import "time"

// TestamentConfig holds the Shamir threshold parameters and the escalation
// schedule the heartbeat loop consults. Exactly one row per owner.
type TestamentConfig struct {
	ID                   string
	OwnerID              string
	Threshold            int // k
	TotalShares          int // n
	CheckinIntervalDays  int
	ReminderAfterDays    int
	UrgentAfterDays      int
	EmergencyAfterDays   int
	KeyholdersAfterDays  int
	InheritanceAfterDays int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Heir is a person entitled to reconstruct the master key once enough
// shares are combined and the escalation has reached
// EscalationInheritanceTriggered. Mnemos never stores the share text
// itself — only metadata about who holds which indexed share.
type Heir struct {
	ID          string
	OwnerID     string
	PersonID    string
	ShareIndex  int
	Email       string
	GrantedAt   time.Time
	RevokedAt   *time.Time
}

// AuditAction enumerates the events recorded in AuditLog.
type AuditAction string

const (
	AuditHeirModeEntered AuditAction = "heir_mode_entered"
	AuditSharesCombined  AuditAction = "shares_combined"
	AuditVaultRead       AuditAction = "vault_read"
	AuditConfigChanged   AuditAction = "config_changed"
)

// AuditLog is an append-only record of testament/heir activity, used to
// prove what a heir-mode session actually did after inheritance triggers.
type AuditLog struct {
	ID        string
	OwnerID   string
	ActorID   string // PersonID of the heir, or the owner's PersonID
	Action    AuditAction
	Detail    string
	CreatedAt time.Time
}
