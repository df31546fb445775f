package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/mnemos/mnemos/pkg/domain"
)

// InsertSearchTokensTx inserts tokens inside an existing transaction.
// Used by pkg/ingest as part of the single ingestion transaction.
func InsertSearchTokensTx(ctx context.Context, tx *sql.Tx, tokens []domain.SearchToken) error {
	for _, t := range tokens {
		id := ulid.Make().String()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO search_tokens (id, memory_id, owner_id, field, token, created_at)
			VALUES (?,?,?,?,?, CURRENT_TIMESTAMP)`,
			id, t.MemoryID, t.OwnerID, string(t.Field), t.Token)
		if err != nil {
			return fmt.Errorf("store: insert search token: %w", err)
		}
	}
	return nil
}

// replaceSearchTokensTx deletes the existing tokens for (memoryID, field)
// and inserts newTokens, inside tx. Called only from the atomic
// UpdateMemoryTitle/UpdateMemoryBody paths.
func replaceSearchTokensTx(ctx context.Context, tx *sql.Tx, memoryID string, field domain.SearchTokenField, newTokens []domain.SearchToken) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM search_tokens WHERE memory_id = ? AND field = ?", memoryID, string(field)); err != nil {
		return fmt.Errorf("delete old search tokens: %w", err)
	}
	return InsertSearchTokensTx(ctx, tx, newTokens)
}

// SearchByToken returns the distinct memory ids whose search_tokens
// contain token for owner ownerID, optionally restricted to one field.
func (s *Store) SearchByToken(ctx context.Context, ownerID string, token []byte, field *domain.SearchTokenField) ([]string, error) {
	query := "SELECT DISTINCT memory_id FROM search_tokens WHERE owner_id = ? AND token = ?"
	args := []any{ownerID, token}
	if field != nil {
		query += " AND field = ?"
		args = append(args, string(*field))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search by token: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchByTokensAll returns memory ids that match every token in tokens
// (an AND of equality matches — a multi-term blind-index query).
func (s *Store) SearchByTokensAll(ctx context.Context, ownerID string, tokens [][]byte) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	matches, err := s.tokenMatchCounts(ctx, ownerID, tokens)
	if err != nil {
		return nil, err
	}
	var out []string
	for id, count := range matches {
		if count == len(tokens) {
			out = append(out, id)
		}
	}
	return out, nil
}

// TokenMatch is one memory's keyword-search hit count, used to rank
// keyword results by how many distinct query terms it matched.
type TokenMatch struct {
	MemoryID   string
	MatchCount int
}

// SearchByTokensRanked returns every memory matching at least one token in
// tokens, ordered by descending match count (most matched terms first).
// Unlike SearchByTokensAll this is an OR across terms — suited to ranked
// keyword search rather than exact multi-term filtering.
func (s *Store) SearchByTokensRanked(ctx context.Context, ownerID string, tokens [][]byte) ([]TokenMatch, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	matches, err := s.tokenMatchCounts(ctx, ownerID, tokens)
	if err != nil {
		return nil, err
	}
	out := make([]TokenMatch, 0, len(matches))
	for id, count := range matches {
		out = append(out, TokenMatch{MemoryID: id, MatchCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchCount > out[j].MatchCount })
	return out, nil
}

func (s *Store) tokenMatchCounts(ctx context.Context, ownerID string, tokens [][]byte) (map[string]int, error) {
	matches := make(map[string]int)
	for _, tok := range tokens {
		ids, err := s.SearchByToken(ctx, ownerID, tok, nil)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			matches[id]++
		}
	}
	return matches, nil
}
