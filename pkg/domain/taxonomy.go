package domain

import "time"

// Tag is a short user-defined label, normalized to lowercase on first use
// so "Work" and "work" collapse to one row; Color is assigned from a
// fixed palette the first time a tag is created and kept stable after.
type Tag struct {
	ID        string
	OwnerID   string
	Name      string // normalized: trimmed, lowercased
	Color     string
	CreatedAt time.Time
}

// Person is someone the owner associates memories with — not a login
// account, just a named entity in the owner's own taxonomy.
type Person struct {
	ID        string
	OwnerID   string
	Name      string
	IsSelf    bool // the owner's own Person row, created on OwnerProfile setup
	CreatedAt time.Time
}

// MemoryTag links a Memory to a Tag. Unique on (MemoryID, TagID).
type MemoryTag struct {
	MemoryID  string
	TagID     string
	CreatedAt time.Time
}

// MemoryPerson links a Memory to a Person. Unique on
// (MemoryID, PersonID, Provenance) — not bare (MemoryID, PersonID) — so a
// manual link and an inferred link to the same person can coexist; see
// DESIGN.md Open Question decision #2. Re-linking an existing
// (MemoryID, PersonID, Provenance) triple is idempotent success (decision
// #3), not a conflict.
type MemoryPerson struct {
	MemoryID   string
	PersonID   string
	Provenance Provenance
	CreatedAt  time.Time
}
