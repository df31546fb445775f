// Package blindindex implements the blind-index tokenizer (spec §4.4):
// deterministic, keyed tokenization of plaintext terms so equality search
// can run against ciphertext without ever decrypting it.
package blindindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/mnemos/mnemos/pkg/crypto"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/session"
)

// minTokenLen discards terms too short to be useful search keys (and too
// easy to brute-force against a known dictionary of short words).
const minTokenLen = 2

// stopwords are excluded from tokenization entirely: common enough that
// indexing them leaks no useful signal while inflating the token table.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "with": true, "this": true, "that": true,
	"from": true, "have": true, "was": true, "were": true, "its": true,
}

// Tokenizer derives deterministic tokens from plaintext against a live
// session's SearchKey.
type Tokenizer struct {
	sess *session.Session
}

// New constructs a Tokenizer bound to sess.
func New(sess *session.Session) *Tokenizer {
	return &Tokenizer{sess: sess}
}

// Normalize applies NFC normalization, lowercasing, trimming, and
// whitespace collapsing to s — the canonical form every term is reduced
// to before tokenization, so the same word always yields the same token
// regardless of how it was originally typed.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// terms splits normalized text on whitespace and punctuation into
// candidate terms, dropping stopwords and anything shorter than
// minTokenLen.
func terms(normalized string) []string {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLen || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenInput appends field's type tag to a normalized term before hashing,
// so the same word in different fields (title vs. body vs. a future tag/
// person/location/date field) never collides on the same token.
func tokenInput(normalized string, field domain.SearchTokenField) []byte {
	return append([]byte(normalized+"\x00"), field...)
}

// Tokenize returns the deterministic search tokens for plaintext under the
// current session's SearchKey, scoped to field and deduplicated.
func (t *Tokenizer) Tokenize(plaintext string, field domain.SearchTokenField) ([][]byte, error) {
	keys, err := t.sess.Keys()
	if err != nil {
		return nil, err
	}
	t.sess.Touch()

	seen := make(map[string]bool)
	var tokens [][]byte
	for _, term := range terms(Normalize(plaintext)) {
		if seen[term] {
			continue
		}
		seen[term] = true
		tokens = append(tokens, crypto.KeyedHash(keys.SearchKey, tokenInput(term, field)))
	}
	return tokens, nil
}

// TokenFor returns the single deterministic token for one already-
// normalized term, scoped to field. Used to build the query side of an
// equality search: normalize the search phrase's terms and look each one
// up directly rather than re-tokenizing a whole document.
func (t *Tokenizer) TokenFor(term string, field domain.SearchTokenField) ([]byte, error) {
	keys, err := t.sess.Keys()
	if err != nil {
		return nil, err
	}
	t.sess.Touch()
	return crypto.KeyedHash(keys.SearchKey, tokenInput(Normalize(term), field)), nil
}

// RebuildTokens produces the full SearchToken set for a Memory's title and
// body plaintext, ready for pkg/store to replace the existing rows for
// that memory and field in one transaction. Used both on initial ingest
// and whenever a field is re-encrypted after an edit or a key rotation.
func (t *Tokenizer) RebuildTokens(memoryID, ownerID string, field domain.SearchTokenField, plaintext string) ([]domain.SearchToken, error) {
	raw, err := t.Tokenize(plaintext, field)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchToken, 0, len(raw))
	for _, tok := range raw {
		out = append(out, domain.SearchToken{
			MemoryID: memoryID,
			OwnerID:  ownerID,
			Field:    field,
			Token:    tok,
		})
	}
	return out, nil
}
