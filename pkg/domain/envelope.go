package domain

import "time"

// Envelope holds a value that was encrypted by pkg/envelope: the ciphertext
// of the value under a per-object data-encryption-key (DEK), and that DEK
// wrapped under the session key. Plaintext is
// never stored in this type — encrypted fields across pkg/domain are typed
// Envelope specifically so "plaintext never persists" is enforced by the
// compiler rather than by convention.
type Envelope struct {
	ID         string // ULID
	Ciphertext []byte // payload encrypted under the per-object DEK
	WrappedDEK []byte // DEK encrypted under the session KEK
	AlgoTag    string
	Version    int
	CreatedAt  time.Time
}

// IsZero reports whether e has never been populated.
func (e Envelope) IsZero() bool {
	return e.ID == "" && len(e.Ciphertext) == 0
}
