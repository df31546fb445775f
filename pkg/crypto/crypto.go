// Package crypto implements Mnemos's cryptographic primitives: authenticated
// encryption, key derivation, a deterministic keyed hash for blind
// indexing, and Shamir secret sharing for the testament feature.
//
// The AEAD shape uses a single AES-256-GCM key with the nonce prepended to
// ciphertext, generalized here to per-object data-encryption-keys wrapped
// by a session key, with an explicit algorithm/version tag so the on-disk
// format can evolve without breaking existing ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// AlgoTag identifies the AEAD construction used for a ciphertext so future
// format changes remain decryptable.
type AlgoTag string

const (
	AlgoAES256GCM AlgoTag = "aes256gcm-v1"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce length
)

var (
	ErrShortCiphertext = errors.New("crypto: ciphertext shorter than nonce")
	ErrKeySize         = errors.New("crypto: key must be 32 bytes")
)

// GenerateKey returns a fresh random 32-byte key suitable for use as an
// AES-256-GCM key (a DEK or a derived sub-key).
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key with AES-256-GCM, generating a fresh
// random nonce and prepending it to the returned ciphertext. aad is
// optional additional authenticated data (may be nil).
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a ciphertext produced by Seal under the same key and aad.
func Open(key, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrShortCiphertext
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}

// Zero overwrites key material in place. Callers hold the slice for the
// shortest time practical and call Zero via defer as soon as it is
// derived or no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Argon2Params configures the memory-hard passphrase KDF. Defaults follow
// OWASP's current minimum recommendation for Argon2id.
type Argon2Params struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultArgon2Params returns a conservative parameter set for a
// single-user desktop/server unlock path.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{TimeCost: 3, MemoryKiB: 64 * 1024, Parallelism: 1}
}

// DeriveMasterKey runs Argon2id over passphrase and salt, producing the
// 32-byte master key that all session sub-keys descend from.
func DeriveMasterKey(passphrase, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(passphrase, salt, p.TimeCost, p.MemoryKiB, p.Parallelism, keySize)
}

// NewSalt returns a fresh random salt for Argon2id.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveSubKey runs HKDF-SHA256 over masterKey, labeled with info, to
// produce a 32-byte sub-key. Used to split the master key into the KEK,
// the blind-index SearchKey, and the vault FileKey without reusing key
// material across purposes.
func DeriveSubKey(masterKey []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	sub := make([]byte, keySize)
	if _, err := io.ReadFull(reader, sub); err != nil {
		return nil, fmt.Errorf("crypto: derive sub-key %q: %w", info, err)
	}
	return sub, nil
}

// KeyedHash computes a deterministic HMAC-SHA256 of data under key. Used
// by the blind-index tokenizer: identical normalized terms under the same
// SearchKey always produce the same token, which is what makes
// equality-only search over ciphertext possible.
func KeyedHash(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
