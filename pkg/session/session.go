// Package session implements the single in-process key-holding session
// described by spec §4.2: a locked/unlocked state machine guarding the
// derived sub-keys, with idle auto-lock and a subscriber channel for lock
// notifications.
//
// The idle-lock ticker uses the same NewTicker+stopCh+select loop shape
// as the rest of this module's background loops, narrowed to a
// configurable idle timeout instead of a fixed tick.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/log"
	"github.com/mnemos/mnemos/pkg/merr"
)

// State is the session's lock state.
type State string

const (
	Locked   State = "locked"
	Unlocked State = "unlocked"
)

// Credentials is the durable record needed to verify a passphrase and
// re-derive the master key on unlock. Owned and persisted by pkg/store;
// Session only ever holds it in memory for the duration of one Unlock
// call.
type Credentials struct {
	Salt             []byte
	Params           crypto.Argon2Params
	VerifierWrapped  []byte // a known plaintext encrypted under the master key, used to check the passphrase without deriving sub-keys first
}

// CredentialStore is the minimal persistence contract Session needs. It
// is satisfied by pkg/store without either package importing the other's
// concrete types.
type CredentialStore interface {
	LoadCredentials(ctx context.Context) (Credentials, error)
	SaveCredentials(ctx context.Context, c Credentials) error
}

// Keys holds the master key and the three sub-keys derived from it on
// unlock. Never logged. Master is retained (not just its sub-keys)
// because pkg/testament's Shamir split must be able to reconstruct the
// single secret every sub-key derives from — splitting three independent
// sub-keys would need three independent share sets.
type Keys struct {
	Master    []byte
	KEK       []byte
	SearchKey []byte
	FileKey   []byte
}

const (
	infoKEK       = "mnemos/kek/v1"
	infoSearchKey = "mnemos/search-key/v1"
	infoFileKey   = "mnemos/file-key/v1"
)

// Session is the process-wide key holder. Exactly one is constructed per
// running mnemos process.
type Session struct {
	mu    sync.RWMutex
	state State
	keys  Keys

	creds CredentialStore

	idleTimeout time.Duration
	lastActive  time.Time

	subscribers []chan State
	stopCh      chan struct{}
	started     bool
}

// New constructs a locked Session. idleTimeout <= 0 disables auto-lock.
func New(creds CredentialStore, idleTimeout time.Duration) *Session {
	return &Session{
		state:       Locked,
		creds:       creds,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the idle-lock ticker.
func (s *Session) Start() {
	if s.idleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.runIdleLoop()
}

// Stop halts the idle-lock ticker.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.stopCh)
	s.started = false
}

func (s *Session) runIdleLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.checkIdle()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) checkIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return
	}
	if time.Since(s.lastActive) >= s.idleTimeout {
		s.lockLocked()
		log.Info("session auto-locked after idle timeout")
	}
}

// Touch records activity, resetting the idle-lock countdown. Every
// operation that uses key material should call Touch.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Unlock verifies passphrase against the stored verifier, derives the
// master key and sub-keys, and transitions to Unlocked.
func (s *Session) Unlock(ctx context.Context, passphrase []byte) error {
	creds, err := s.creds.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("session: load credentials: %w", err)
	}
	master := crypto.DeriveMasterKey(passphrase, creds.Salt, creds.Params)

	if _, err := crypto.Open(master, creds.VerifierWrapped, nil); err != nil {
		crypto.Zero(master)
		return fmt.Errorf("session: %w: wrong passphrase", merr.ErrBadPassphrase)
	}

	kek, err := crypto.DeriveSubKey(master, infoKEK)
	if err != nil {
		crypto.Zero(master)
		return fmt.Errorf("session: derive kek: %w", err)
	}
	searchKey, err := crypto.DeriveSubKey(master, infoSearchKey)
	if err != nil {
		crypto.Zero(master)
		return fmt.Errorf("session: derive search key: %w", err)
	}
	fileKey, err := crypto.DeriveSubKey(master, infoFileKey)
	if err != nil {
		crypto.Zero(master)
		return fmt.Errorf("session: derive file key: %w", err)
	}

	s.mu.Lock()
	s.keys = Keys{Master: master, KEK: kek, SearchKey: searchKey, FileKey: fileKey}
	s.state = Unlocked
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.notify(Unlocked)
	return nil
}

// UnlockWithMasterKey derives sub-keys directly from an already-
// reconstructed master key and transitions to Unlocked, bypassing the
// passphrase verifier entirely. Used only by pkg/testament's heir-mode
// path once enough Shamir shares have been combined — there is no
// passphrase to check at that point, only the master key itself.
func (s *Session) UnlockWithMasterKey(master []byte) error {
	kek, err := crypto.DeriveSubKey(master, infoKEK)
	if err != nil {
		return fmt.Errorf("session: derive kek: %w", err)
	}
	searchKey, err := crypto.DeriveSubKey(master, infoSearchKey)
	if err != nil {
		return fmt.Errorf("session: derive search key: %w", err)
	}
	fileKey, err := crypto.DeriveSubKey(master, infoFileKey)
	if err != nil {
		return fmt.Errorf("session: derive file key: %w", err)
	}

	masterCopy := make([]byte, len(master))
	copy(masterCopy, master)

	s.mu.Lock()
	s.keys = Keys{Master: masterCopy, KEK: kek, SearchKey: searchKey, FileKey: fileKey}
	s.state = Unlocked
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.notify(Unlocked)
	return nil
}

// Lock zeroizes held key material and transitions to Locked.
func (s *Session) Lock() {
	s.mu.Lock()
	s.lockLocked()
	s.mu.Unlock()
	s.notify(Locked)
}

// lockLocked performs the zeroize-and-transition under an already-held
// write lock.
func (s *Session) lockLocked() {
	crypto.Zero(s.keys.Master)
	crypto.Zero(s.keys.KEK)
	crypto.Zero(s.keys.SearchKey)
	crypto.Zero(s.keys.FileKey)
	s.keys = Keys{}
	s.state = Locked
}

// State returns the current lock state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Keys returns the current sub-keys, or merr.ErrLocked if the session is
// locked. Callers must not retain the returned Keys beyond the current
// operation.
func (s *Session) Keys() (Keys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Unlocked {
		return Keys{}, merr.ErrLocked
	}
	return s.keys, nil
}

// Subscribe returns a channel that receives the new State on every lock
// transition, a single-value broadcast rather than a typed event struct.
func (s *Session) Subscribe() <-chan State {
	ch := make(chan State, 4)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Session) notify(st State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}

// InitializeCredentials derives a fresh salt, computes a verifier, and
// persists Credentials for first-time setup. Called by `mnemos serve`
// when no credentials are stored yet.
func InitializeCredentials(ctx context.Context, store CredentialStore, passphrase []byte, params crypto.Argon2Params) error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("session: new salt: %w", err)
	}
	master := crypto.DeriveMasterKey(passphrase, salt, params)
	defer crypto.Zero(master)

	verifier, err := crypto.Seal(master, []byte("mnemos-verifier-v1"), nil)
	if err != nil {
		return fmt.Errorf("session: seal verifier: %w", err)
	}
	return store.SaveCredentials(ctx, Credentials{
		Salt:            salt,
		Params:          params,
		VerifierWrapped: verifier,
	})
}
