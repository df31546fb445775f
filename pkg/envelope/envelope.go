// Package envelope implements the Envelope Store (spec §4.3): per-object
// encryption with a fresh data-encryption-key wrapped by the session's
// key-encryption-key, with a crypto-agility tag so the on-disk format can
// evolve.
//
// The Encrypt/Decrypt shape is extended with the wrapped-DEK indirection a
// single shared key wouldn't need, since every object here gets its own key.
package envelope

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/merr"
	"github.com/mnemos/mnemos/pkg/session"
)

// Store encrypts and decrypts plaintext fields against a live session.
type Store struct {
	sess *session.Session
}

// New constructs an envelope Store bound to sess.
func New(sess *session.Session) *Store {
	return &Store{sess: sess}
}

// Encrypt seals plaintext under a fresh DEK, wraps the DEK under the
// session KEK, and returns the resulting Envelope. aad binds the
// ciphertext to a context (typically the owning Memory's ID) so an
// envelope cannot be silently moved to a different record.
func (st *Store) Encrypt(plaintext []byte, aad []byte) (domain.Envelope, error) {
	keys, err := st.sess.Keys()
	if err != nil {
		return domain.Envelope{}, err
	}
	st.sess.Touch()

	dek, err := crypto.GenerateKey()
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("envelope: generate dek: %w", err)
	}
	defer crypto.Zero(dek)

	ciphertext, err := crypto.Seal(dek, plaintext, aad)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("envelope: seal payload: %w", err)
	}
	wrappedDEK, err := crypto.Seal(keys.KEK, dek, aad)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("envelope: wrap dek: %w", err)
	}

	return domain.Envelope{
		ID:         ulid.Make().String(),
		Ciphertext: ciphertext,
		WrappedDEK: wrappedDEK,
		AlgoTag:    string(crypto.AlgoAES256GCM),
		Version:    1,
		CreatedAt:  time.Now(),
	}, nil
}

// Decrypt unwraps env's DEK under the session KEK and opens the payload.
// aad must match the value passed to Encrypt.
func (st *Store) Decrypt(env domain.Envelope, aad []byte) ([]byte, error) {
	if env.IsZero() {
		return nil, fmt.Errorf("envelope: %w: empty envelope", merr.ErrInvalidInput)
	}
	if env.AlgoTag != string(crypto.AlgoAES256GCM) {
		return nil, fmt.Errorf("envelope: %w: unsupported algo tag %q", merr.ErrIntegrity, env.AlgoTag)
	}
	keys, err := st.sess.Keys()
	if err != nil {
		return nil, err
	}
	st.sess.Touch()

	dek, err := crypto.Open(keys.KEK, env.WrappedDEK, aad)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w: unwrap dek: %v", merr.ErrIntegrity, err)
	}
	defer crypto.Zero(dek)

	plaintext, err := crypto.Open(dek, env.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w: open payload: %v", merr.ErrIntegrity, err)
	}
	return plaintext, nil
}
