// Package merr declares the closed set of error kinds Mnemos distinguishes
// at its API boundaries and a classifier for translating a wrapped error
// back to the kind that produced it.
package merr

import "errors"

// Sentinel errors, in spec §7's precedence order. Wrap one with
// fmt.Errorf("...: %w", ErrX) at the point of failure; Kind recovers the
// wrapped sentinel with errors.Is.
var (
	// ErrAuthRequired is returned for unauthenticated access to an
	// authenticated resource.
	ErrAuthRequired = errors.New("authentication required")

	// ErrLocked (spec's SessionLocked) is returned by any operation that
	// needs key material while the session is present but its keys are
	// not currently held in memory.
	ErrLocked = errors.New("session is locked")

	// ErrBadPassphrase is returned when a passphrase fails verification
	// against the stored verifier on unlock.
	ErrBadPassphrase = errors.New("passphrase does not match")

	// ErrIntegrity (spec's TamperDetected) is returned when an
	// authenticated-decryption check fails anywhere in the envelope or
	// file layer: GCM tag mismatch, digest mismatch, vault
	// manifest/file divergence.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness or
	// state-transition constraint (e.g. re-dismissing an already-accepted
	// suggestion).
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed is returned for an inconsistent partial
	// update, such as setting an encrypted field's ciphertext without its
	// accompanying data-key field.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrConversionFailed is returned when an archival-conversion
	// transducer errors or times out.
	ErrConversionFailed = errors.New("archival conversion failed")

	// ErrModelUnavailable is returned when the embedding or chat provider
	// endpoint could not be reached, or returned an error. Providers make
	// one attempt per call; a failed call is not retried.
	ErrModelUnavailable = errors.New("model provider unavailable")

	// ErrInsufficientShares is returned when a testament share
	// combination is attempted below its configured threshold.
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct key")

	// ErrQuotaExceeded is returned for an oversized payload or when a
	// bounded queue has too much pending work to accept more.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidInput is returned when caller-supplied data fails
	// validation before any storage or crypto operation is attempted.
	// Distinct from ErrPreconditionFailed: this is bad input on its own
	// terms, not an inconsistency between two otherwise-valid fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden is returned when an authenticated session lacks
	// permission for the requested operation (e.g. a heir-mode session
	// attempting a write).
	ErrForbidden = errors.New("forbidden")
)

// Kind classifies err against the sentinel set in precedence order and
// returns a short machine-readable string, or "internal" if err matches
// none of them. Kind never inspects err.Error() text — only errors.Is
// chains — so wrapping with fmt.Errorf("...: %w", ...) is always safe.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrLocked):
		return "session_locked"
	case errors.Is(err, ErrBadPassphrase):
		return "bad_passphrase"
	case errors.Is(err, ErrIntegrity):
		return "tamper_detected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrConversionFailed):
		return "conversion_failed"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
