package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/store"
)

// DiscrepancyKind classifies one audit finding, mirroring the
// classification shape of a hash-chained audit log: a finding is either
// something the database expects that isn't on disk, something on disk
// the database doesn't know about, or something present on both sides
// whose content no longer matches.
type DiscrepancyKind string

const (
	DiscrepancyMissing DiscrepancyKind = "missing" // in manifest, absent from disk
	DiscrepancyOrphan  DiscrepancyKind = "orphan"   // on disk, no Source row references it
	DiscrepancyCorrupt DiscrepancyKind = "corrupt"  // present both places, digest mismatch
)

// Discrepancy is one finding from Audit.
type Discrepancy struct {
	VaultPath string
	Kind      DiscrepancyKind
	Detail    string
}

// Report summarizes one audit run.
type Report struct {
	FilesChecked   int
	Discrepancies  []Discrepancy
}

// Auditor walks the vault manifest against the filesystem.
type Auditor struct {
	vault *Vault
	store *store.Store
}

// NewAuditor constructs an Auditor over v and backing store s.
func NewAuditor(v *Vault, s *store.Store) *Auditor {
	return &Auditor{vault: v, store: s}
}

// Audit compares every manifest row against the filesystem and every file
// under the vault root against the Source rows' vault paths, classifying each
// discrepancy. It requires an unlocked session (via the Vault it was
// constructed with) to decrypt files for the corruption check.
func (a *Auditor) Audit(ctx context.Context) (Report, error) {
	entries, err := a.store.ListVaultManifest(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("vault audit: list manifest: %w", err)
	}

	var report Report
	onDisk := make(map[string]bool)

	for _, e := range entries {
		report.FilesChecked++
		absPath := filepath.Join(a.vault.Root, e.VaultPath)
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					VaultPath: e.VaultPath, Kind: DiscrepancyMissing,
					Detail: "expected in manifest, not found on disk",
				})
				continue
			}
			return Report{}, fmt.Errorf("vault audit: stat %s: %w", e.VaultPath, err)
		}
		onDisk[e.VaultPath] = true

		plaintext, err := a.vault.Read(ctx, e.VaultPath, []byte(e.SourceID), e.WrappedDEK)
		if err != nil {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				VaultPath: e.VaultPath, Kind: DiscrepancyCorrupt,
				Detail: fmt.Sprintf("decrypt failed: %v", err),
			})
			continue
		}
		if got := Digest(plaintext); got != e.Digest {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				VaultPath: e.VaultPath, Kind: DiscrepancyCorrupt,
				Detail: fmt.Sprintf("digest mismatch: manifest=%s actual=%s", e.Digest, got),
			})
		}
	}

	knownPaths, err := a.store.ListAllVaultPaths(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("vault audit: list known paths: %w", err)
	}
	known := make(map[string]bool, len(knownPaths))
	for _, p := range knownPaths {
		known[p] = true
	}

	err = filepath.Walk(a.vault.Root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.vault.Root, path)
		if err != nil {
			return err
		}
		if !known[rel] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				VaultPath: rel, Kind: DiscrepancyOrphan,
				Detail: "present on disk, no source row references it",
			})
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("vault audit: walk vault root: %w", err)
	}

	logger := log.WithComponent("vault-audit")
	if len(report.Discrepancies) > 0 {
		logger.Warn().Int("count", len(report.Discrepancies)).Msg("vault audit found discrepancies")
	} else {
		logger.Info().Int("checked", report.FilesChecked).Msg("vault audit clean")
	}
	return report, nil
}
