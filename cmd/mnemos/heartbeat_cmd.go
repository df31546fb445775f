package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/heartbeat"
	"github.com/mnemos/mnemos/pkg/merr"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Check in, or inspect the dead-man's-switch escalation state",
}

var heartbeatCheckinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Record a check-in, resetting escalation to fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, _, owner, cleanup, err := openUnlockedStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		driver := heartbeat.New(st, heartbeat.LogNotifier{})
		checkin, err := driver.CheckIn(ctx, owner.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Checked in at %s\n", checkin.CheckedInAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var heartbeatStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last check-in time and testament configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, _, owner, cleanup, err := openUnlockedStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		last, err := st.LastCheckin(ctx, owner.ID)
		if errors.Is(err, merr.ErrNotFound) {
			fmt.Println("No check-in recorded yet.")
		} else if err != nil {
			return err
		} else {
			fmt.Printf("Last check-in: %s\n", last.CheckedInAt.Format("2006-01-02 15:04:05"))
		}

		tcfg, err := st.GetTestamentConfig(ctx, owner.ID)
		if errors.Is(err, merr.ErrNotFound) {
			fmt.Println("Testament not configured.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Testament: %d-of-%d shares, reminder after %dd, urgent after %dd, emergency after %dd, keyholders after %dd, inheritance after %dd\n",
			tcfg.Threshold, tcfg.TotalShares, tcfg.ReminderAfterDays, tcfg.UrgentAfterDays,
			tcfg.EmergencyAfterDays, tcfg.KeyholdersAfterDays, tcfg.InheritanceAfterDays)
		return nil
	},
}

func init() {
	heartbeatCmd.AddCommand(heartbeatCheckinCmd)
	heartbeatCmd.AddCommand(heartbeatStatusCmd)
}
