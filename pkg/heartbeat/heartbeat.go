// Package heartbeat drives the check-in/escalation state machine (spec
// §4.7): each scheduler tick measures days since the owner's last
// check-in, maps that to an EscalationLevel via the owner's
// TestamentConfig schedule, and fires any alerts between the
// already-alerted level and the newly reached one — each alert
// idempotent per (owner, level, calendar day) so a retried tick never
// double-sends.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/store"
)

// Notifier delivers one escalation alert to whatever channel the
// deployment configures — email, SMS, a webhook. message is plain text,
// safe to log.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, level domain.EscalationLevel, message string) error
}

// escalationSequence is the order RunEscalation walks when catching up
// across a multi-day gap, skipping Fresh since it is never itself alerted.
var escalationSequence = []domain.EscalationLevel{
	domain.EscalationReminded,
	domain.EscalationUrgentReminder,
	domain.EscalationEmergencyContactAlerted,
	domain.EscalationKeyholdersAlerted,
	domain.EscalationInheritanceTriggered,
}

// Driver runs the escalation check for one owner per call, meant to be
// invoked from a named pkg/scheduler loop on a daily cadence.
type Driver struct {
	store    *store.Store
	notifier Notifier
}

// New constructs a Driver.
func New(st *store.Store, notifier Notifier) *Driver {
	return &Driver{store: st, notifier: notifier}
}

// CheckIn records proof of life for ownerID, resetting the escalation
// clock — the next RunEscalation call measures days since this check-in.
func (d *Driver) CheckIn(ctx context.Context, ownerID string) (domain.HeartbeatCheckin, error) {
	return d.store.RecordCheckin(ctx, ownerID)
}

// targetLevel maps daysSinceCheckin against cfg's schedule to the
// escalation level that schedule calls for today.
func targetLevel(cfg domain.TestamentConfig, daysSinceCheckin int) domain.EscalationLevel {
	switch {
	case daysSinceCheckin >= cfg.InheritanceAfterDays:
		return domain.EscalationInheritanceTriggered
	case daysSinceCheckin >= cfg.KeyholdersAfterDays:
		return domain.EscalationKeyholdersAlerted
	case daysSinceCheckin >= cfg.EmergencyAfterDays:
		return domain.EscalationEmergencyContactAlerted
	case daysSinceCheckin >= cfg.UrgentAfterDays:
		return domain.EscalationUrgentReminder
	case daysSinceCheckin >= cfg.ReminderAfterDays:
		return domain.EscalationReminded
	default:
		return domain.EscalationFresh
	}
}

// RunEscalation checks ownerID's time since last check-in against cfg and
// fires any newly-reached alert levels, returning the level reached. If
// the owner has never checked in, RunEscalation takes no action — there is
// nothing to escalate against yet.
func (d *Driver) RunEscalation(ctx context.Context, ownerID string, cfg domain.TestamentConfig) (domain.EscalationLevel, error) {
	last, err := d.store.LastCheckin(ctx, ownerID)
	if err != nil {
		if merr.Kind(err) == "not_found" {
			return domain.EscalationFresh, nil
		}
		return "", fmt.Errorf("heartbeat: last checkin: %w", err)
	}

	daysSince := int(time.Since(last.CheckedInAt).Hours() / 24)
	target := targetLevel(cfg, daysSince)
	if target == domain.EscalationFresh {
		return domain.EscalationFresh, nil
	}

	alerted, err := d.store.HighestAlertLevel(ctx, ownerID, last)
	if err != nil {
		return "", fmt.Errorf("heartbeat: highest alert level: %w", err)
	}
	if alerted.Rank() >= target.Rank() {
		return alerted, nil
	}

	logger := log.WithComponent("heartbeat")
	today := time.Now().UTC().Format("2006-01-02")
	for _, level := range escalationSequence {
		if level.Rank() <= alerted.Rank() || level.Rank() > target.Rank() {
			continue
		}
		sent, err := d.store.RecordAlert(ctx, domain.HeartbeatAlert{
			OwnerID:    ownerID,
			Level:      level,
			TriggerDay: today,
			SentAt:     time.Now(),
		})
		if err != nil {
			return "", fmt.Errorf("heartbeat: record alert: %w", err)
		}
		if !sent {
			continue
		}
		message := fmt.Sprintf("mnemos: owner has not checked in for %d days, escalation level is now %s", daysSince, level)
		if err := d.notifier.Notify(ctx, ownerID, level, message); err != nil {
			logger.Error().Err(err).Str("owner_id", ownerID).Str("level", string(level)).Msg("escalation notify failed")
		}
	}
	return target, nil
}
