package domain

import "time"

// ConnectionKind classifies the relationship an LLM inferred between two
// memories.
type ConnectionKind string

const (
	ConnectionFollowsUp   ConnectionKind = "follows_up"
	ConnectionContradicts ConnectionKind = "contradicts"
	ConnectionElaborates  ConnectionKind = "elaborates"
	ConnectionReferences  ConnectionKind = "references"
	ConnectionRelated     ConnectionKind = "related"
)

// Provenance records whether a relationship was asserted by a human or
// synthesized by the connection-synthesis job.
type Provenance string

const (
	ProvenanceManual   Provenance = "manual"
	ProvenanceInferred Provenance = "inferred"
)

// Connection is a directed, typed edge between two memories. It is
// idempotent on (SourceMemoryID, TargetMemoryID, Kind, Provenance): the
// synthesis job must never create a duplicate edge for the same triple.
type Connection struct {
	ID             string
	SourceMemoryID string
	TargetMemoryID string
	Kind           ConnectionKind
	Provenance     Provenance
	Confidence     float64 // [0,1], 1.0 for manual
	Explanation    string  // short plaintext rationale, not secret
	CreatedAt      time.Time
}
