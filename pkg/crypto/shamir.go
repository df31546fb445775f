package crypto

import (
	"fmt"

	"github.com/oarkflow/shamir"
	"github.com/tyler-smith/go-bip39"
)

// Share is one k-of-n Shamir share of a master key, encoded as a BIP-39
// mnemonic so it can be written down and re-typed by a human without a
// file.
type Share struct {
	Index    int
	Mnemonic string
}

// SplitMasterKey splits key into n shares of which any k reconstruct it.
func SplitMasterKey(key []byte, k, n int) ([]Share, error) {
	if k < 1 || n < k {
		return nil, fmt.Errorf("crypto: invalid threshold k=%d n=%d", k, n)
	}
	parts, err := shamir.Split(key, n, k)
	if err != nil {
		return nil, fmt.Errorf("crypto: shamir split: %w", err)
	}
	shares := make([]Share, 0, len(parts))
	for idx, part := range parts {
		mnemonic, err := bip39.NewMnemonic(part, "")
		if err != nil {
			return nil, fmt.Errorf("crypto: encode share %d as mnemonic: %w", idx, err)
		}
		shares = append(shares, Share{Index: idx, Mnemonic: mnemonic})
	}
	return shares, nil
}

// CombineShares reconstructs the master key from a set of shares produced
// by SplitMasterKey. Fewer than k shares yields a garbage result rather
// than an error, matching Shamir's information-theoretic guarantee —
// callers must verify the reconstructed key against a known checksum
// before trusting it (see pkg/testament).
func CombineShares(shares []Share) ([]byte, error) {
	parts := make(map[int][]byte, len(shares))
	for _, s := range shares {
		part, err := bip39.EntropyFromMnemonic(s.Mnemonic)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode share %d mnemonic: %w", s.Index, err)
		}
		parts[s.Index] = part
	}
	key, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("crypto: shamir combine: %w", err)
	}
	return key, nil
}
