package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/vault"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect the encrypted file vault",
}

var vaultAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare the vault manifest against the files on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, sess, _, cleanup, err := openUnlockedStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		vlt := vault.New(cfg.Data.VaultRoot, sess)
		auditor := vault.NewAuditor(vlt, st)
		report, err := auditor.Audit(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Checked %d files, %d discrepancies\n", report.FilesChecked, len(report.Discrepancies))
		for _, d := range report.Discrepancies {
			fmt.Printf("  [%s] %s: %s\n", d.Kind, d.VaultPath, d.Detail)
		}
		return nil
	},
}

func init() {
	vaultCmd.AddCommand(vaultAuditCmd)
}
