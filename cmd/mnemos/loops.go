package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/connections"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/heartbeat"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/scheduler"
	"github.com/mnemos/mnemos/pkg/store"
	"github.com/mnemos/mnemos/pkg/vault"
)

const (
	loopHeartbeatEscalation = "heartbeat-escalation"
	loopVaultAudit          = "vault-audit"
	loopConnectionSynthesis = "connection-synthesis-sweep"
	connectionSweepPageSize = 50
)

// registerLoops wires the named background loops a running server needs:
// escalating an overdue heartbeat, auditing the vault against its
// manifest, and re-running connection synthesis over the most recently
// captured memories (the jobqueue is in-memory and does not survive a
// restart, so this sweep re-derives that one kind of job from stored
// memories; embedding and tag-suggestion jobs are not swept).
func registerLoops(sched *scheduler.Scheduler, st *store.Store, hb *heartbeat.Driver, auditor *vault.Auditor, synth *connections.Synthesizer, ownerID string) {
	sched.Register(scheduler.Loop{
		Name:     loopHeartbeatEscalation,
		Interval: dayInterval(),
		Run: func(ctx context.Context) error {
			return runHeartbeatEscalation(ctx, st, hb, ownerID)
		},
	})

	sched.Register(scheduler.Loop{
		Name:     loopVaultAudit,
		Interval: dayInterval(),
		Run: func(ctx context.Context) error {
			report, err := auditor.Audit(ctx)
			if err != nil {
				return fmt.Errorf("vault audit loop: %w", err)
			}
			if len(report.Discrepancies) > 0 {
				log.WithComponent("vault-audit").Warn().
					Int("files_checked", report.FilesChecked).
					Int("discrepancies", len(report.Discrepancies)).
					Msg("vault audit found discrepancies")
			}
			return nil
		},
	})

	sched.Register(scheduler.Loop{
		Name:     loopConnectionSynthesis,
		Interval: hourInterval(),
		Run: func(ctx context.Context) error {
			return sweepConnectionSynthesis(ctx, st, synth, ownerID)
		},
	})
}

func runHeartbeatEscalation(ctx context.Context, st *store.Store, hb *heartbeat.Driver, ownerID string) error {
	cfg, err := st.GetTestamentConfig(ctx, ownerID)
	if errors.Is(err, merr.ErrNotFound) {
		return nil // testament never configured; nothing to escalate
	}
	if err != nil {
		return fmt.Errorf("heartbeat escalation loop: get testament config: %w", err)
	}
	_, err = hb.RunEscalation(ctx, ownerID, cfg)
	return err
}

// sweepConnectionSynthesis re-runs synthesis for the owner's
// connectionSweepPageSize most recently captured memories; older memories
// are not visited. SynthesizeForMemory is idempotent, so this is safe even
// for a memory whose job already ran.
func sweepConnectionSynthesis(ctx context.Context, st *store.Store, synth *connections.Synthesizer, ownerID string) error {
	memories, err := st.ListMemories(ctx, domain.ListFilter{OwnerID: ownerID, Limit: connectionSweepPageSize})
	if err != nil {
		return fmt.Errorf("connection synthesis sweep: list memories: %w", err)
	}
	for _, m := range memories {
		if err := synth.SynthesizeForMemory(ctx, m.ID); err != nil {
			log.WithMemoryID(m.ID).Warn().Err(err).Msg("connection synthesis sweep failed for memory")
		}
	}
	return nil
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Inspect and manually drive named background loops",
}

var schedulerRunOnceCmd = &cobra.Command{
	Use:   "run-once NAME",
	Short: "Claim and run one named loop now, if it is enabled and due",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, sess, owner, cleanup, err := openUnlockedStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		sched, err := buildSchedulerForCLI(ctx, st, sess, cfg, owner.ID)
		if err != nil {
			return err
		}

		ran, err := sched.RunOnce(ctx, args[0])
		if err != nil {
			return err
		}
		if !ran {
			fmt.Println("loop is currently claimed elsewhere or not due; no-op")
			return nil
		}
		fmt.Printf("loop %q ran\n", args[0])
		return nil
	},
}

func init() {
	schedulerCmd.AddCommand(schedulerRunOnceCmd)
}
