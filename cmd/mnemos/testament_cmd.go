package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/testament"
)

var testamentCmd = &cobra.Command{
	Use:   "testament",
	Short: "Configure digital inheritance: Shamir share splitting and heir management",
}

var testamentConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Split the master key into heir shares and set the escalation schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetInt("threshold")
		total, _ := cmd.Flags().GetInt("shares")

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

		mgr := testament.New(st, sess)
		schedule := domain.TestamentConfig{
			CheckinIntervalDays:  cfg.Heartbeat.CheckinIntervalDays,
			ReminderAfterDays:    cfg.Heartbeat.ReminderAfterDays,
			UrgentAfterDays:      cfg.Heartbeat.UrgentAfterDays,
			EmergencyAfterDays:   cfg.Heartbeat.EmergencyAfterDays,
			KeyholdersAfterDays:  cfg.Heartbeat.KeyholdersAfterDays,
			InheritanceAfterDays: cfg.Heartbeat.InheritanceAfterDays,
		}

		_, shares, err := mgr.Configure(ctx, owner.ID, threshold, total, schedule)
		if err != nil {
			return err
		}

		fmt.Printf("Configured %d-of-%d sharing. Distribute these shares to heirs; Mnemos does not keep a copy:\n\n", threshold, total)
		for _, s := range shares {
			fmt.Printf("  share %d: %s\n", s.Index, s.Mnemonic)
		}
		return nil
	},
}

var testamentGrantHeirCmd = &cobra.Command{
	Use:   "grant-heir PERSON_ID SHARE_INDEX EMAIL",
	Short: "Record that a person holds a given share index",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		shareIndex, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid share index: %w", err)
		}

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

		mgr := testament.New(st, sess)
		heir, err := mgr.GrantHeir(ctx, owner.ID, args[0], shareIndex, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Heir granted: %s\n", heir.ID)
		return nil
	},
}

var testamentRevokeHeirCmd = &cobra.Command{
	Use:   "revoke-heir HEIR_ID",
	Short: "Revoke a previously granted heir",
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

		mgr := testament.New(st, sess)
		return mgr.RevokeHeir(ctx, owner.ID, args[0])
	},
}

var testamentCombineCmd = &cobra.Command{
	Use:   "combine PERSON_ID",
	Short: "Combine heir shares read from stdin (one mnemonic per line) to enter heir mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		shares, err := readSharesFromStdin()
		if err != nil {
			return err
		}

		st, err := openStoreOnly(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		owner, err := ensureOwnerProfile(ctx, st)
		if err != nil {
			return err
		}

		sess := newSessionForHeirMode(st)
		mgr := testament.New(st, sess)
		if err := mgr.CombineAndEnterHeirMode(ctx, owner.ID, args[0], shares); err != nil {
			return err
		}
		fmt.Println("Heir mode entered; session unlocked under the reconstructed key.")
		return nil
	},
}

func readSharesFromStdin() ([]crypto.Share, error) {
	fmt.Fprintln(os.Stderr, "Enter each share mnemonic on its own line, then an empty line to finish:")
	scanner := bufio.NewScanner(os.Stdin)
	var shares []crypto.Share
	idx := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		shares = append(shares, crypto.Share{Index: idx, Mnemonic: line})
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read shares: %w", err)
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares provided")
	}
	return shares, nil
}

func init() {
	testamentConfigureCmd.Flags().Int("threshold", 3, "number of shares required to reconstruct the key")
	testamentConfigureCmd.Flags().Int("shares", 5, "total number of shares to generate")

	testamentCmd.AddCommand(testamentConfigureCmd)
	testamentCmd.AddCommand(testamentGrantHeirCmd)
	testamentCmd.AddCommand(testamentRevokeHeirCmd)
	testamentCmd.AddCommand(testamentCombineCmd)
}
