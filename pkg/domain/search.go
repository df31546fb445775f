package domain

import "time"

// SearchTokenField identifies which encrypted field a token indexes.
type SearchTokenField string

const (
	FieldTitle SearchTokenField = "title"
	FieldBody  SearchTokenField = "body"
)

// SearchToken is one blind-index entry: a keyed hash of a normalized term
// extracted from a Memory's plaintext, stored so equality search can run
// server-side without ever decrypting the field.
type SearchToken struct {
	ID        string
	MemoryID  string
	OwnerID   string
	Field     SearchTokenField
	Token     []byte // HMAC-SHA256(SearchKey, normalized term)
	CreatedAt time.Time
}
