package domain

import "time"

// OwnerProfile is the single-tenant owner of the vault. Mnemos never has
// more than one row here; creating it also creates the owner's self
// Person row (IsSelf=true) so memories can be linked to "myself" the same
// way they link to anyone else.
type OwnerProfile struct {
	ID          string
	DisplayName string
	SelfPersonID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SuggestionKind identifies what a Suggestion proposes.
type SuggestionKind string

const (
	SuggestionTag        SuggestionKind = "tag"
	SuggestionPerson     SuggestionKind = "person"
	SuggestionConnection SuggestionKind = "connection"
)

// SuggestionStatus tracks the lifecycle of a Suggestion. Once accepted or
// dismissed, a Suggestion is terminal — there is no path back to pending.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// Suggestion is a background job's proposal for the owner to review —
// e.g. "tag this memory #travel" or "link this memory to Person X".
// TargetID is the Tag/Person/Connection id the suggestion resolves to once
// accepted.
type Suggestion struct {
	ID         string
	MemoryID   string
	Kind       SuggestionKind
	TargetID   string
	Label      string // human-readable plaintext proposal text
	Status     SuggestionStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
