package domain

import "time"

// SourceKind enumerates where a Memory's content originated.
type SourceKind string

const (
	SourceNote       SourceKind = "note"
	SourceUpload     SourceKind = "upload"
	SourceChatImport SourceKind = "chat_import"
	SourceVoice      SourceKind = "voice"
)

// Source records the origin of a Memory's captured content — the original
// upload, the note body as typed, or the conversation turn it was lifted
// from.
type Source struct {
	ID                 string
	MemoryID           string
	Kind               SourceKind
	Filename           string // original filename, if any
	MIMEType           string
	ByteSize           int64 // size of the archival plaintext, before encryption
	EncryptedSize      int64 // size of the ciphertext actually written to the vault
	VaultPath          string // empty when the source has no vault-backed file
	Digest             string // sha256 hex of the original bytes, for dedup
	PreservationFormat string // archival format actually written to the vault: "pdf", "png", or "passthrough"
	FileDEKWrapped     []byte // the vault file's DEK, sealed under the session FileKey; nil when VaultPath is empty
	FileDEKAlgoTag     string // algorithm tag for FileDEKWrapped, e.g. "aes256gcm-v1"
	CreatedAt          time.Time
}

// Memory is the core unit of captured, encrypted content. Title and Body
// are Envelope-typed so their plaintext never touches storage; CapturedAt
// is the user-asserted time the memory happened, distinct from CreatedAt
// (when it was ingested).
type Memory struct {
	ID          string
	OwnerID     string
	Title       Envelope
	Body        Envelope
	Latitude    *float64
	Longitude   *float64
	CapturedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// HasLocation reports whether both coordinates are set.
func (m Memory) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// ListFilter narrows Memory listing/search operations. HasLocation, when
// non-nil and false, matches memories that do NOT have both coordinates
// set (the complement of true, not a no-op) — see DESIGN.md Open Question
// decision #1.
type ListFilter struct {
	OwnerID     string
	HasLocation *bool
	From        *time.Time
	Until       *time.Time
	TagIDs      []string
	PersonIDs   []string
	Limit       int
	Offset      int
}
