package domain

import "time"

// HeartbeatCheckin records a successful owner check-in — proof of life
// that resets the escalation state machine back to EscalationFresh.
type HeartbeatCheckin struct {
	ID          string
	OwnerID     string
	CheckedInAt time.Time
}

// EscalationLevel is a state in the heartbeat escalation state machine.
// States only move forward (toward InheritanceTriggered) except on a
// successful check-in, which resets to Fresh.
type EscalationLevel string

const (
	EscalationFresh                   EscalationLevel = "fresh"
	EscalationReminded                EscalationLevel = "reminded"
	EscalationUrgentReminder          EscalationLevel = "urgent_reminder"
	EscalationEmergencyContactAlerted EscalationLevel = "emergency_contact_alerted"
	EscalationKeyholdersAlerted       EscalationLevel = "keyholders_alerted"
	EscalationInheritanceTriggered    EscalationLevel = "inheritance_triggered"
)

// escalationOrder gives each level's forward rank, exposed through Rank so
// callers can compare levels and tell whether one is past another.
var escalationOrder = map[EscalationLevel]int{
	EscalationFresh:                   0,
	EscalationReminded:                1,
	EscalationUrgentReminder:          2,
	EscalationEmergencyContactAlerted: 3,
	EscalationKeyholdersAlerted:       4,
	EscalationInheritanceTriggered:    5,
}

// Rank returns the level's position in the escalation order.
func (l EscalationLevel) Rank() int { return escalationOrder[l] }

// HeartbeatAlert is one escalation-level notification sent out. It is
// idempotent per (OwnerID, Level, TriggerDay): the daily scheduler loop
// must not re-send the same alert twice for the same calendar day even if
// it runs more than once.
type HeartbeatAlert struct {
	ID         string
	OwnerID    string
	Level      EscalationLevel
	TriggerDay string // YYYY-MM-DD, the day this alert was triggered for
	SentAt     time.Time
}
