// Package hybridsearch ranks memories by keyword match (blind-index
// equality over encrypted tokens), semantic similarity (vector nearest-
// neighbor over chunk embeddings), or a reciprocal-rank fusion of both.
// The scoring-loop shape — rank independent candidate lists, fuse, return
// explainable results — is grounded on cuemby-warren/pkg/scheduler's
// claim/score/release loop, generalized from "which node runs the next
// task" to "which memory answers this query".
package hybridsearch

import (
	"context"
	"fmt"
	"sort"

	"github.com/mnemos/mnemos/pkg/blindindex"
	"github.com/mnemos/mnemos/pkg/cortex/provider"
	"github.com/mnemos/mnemos/pkg/cortex/vectorstore"
	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/store"
)

// searchedFields are the encrypted fields a free-text keyword query is
// matched against. Tokens are field-typed (spec §4.4), so a query must
// tokenize once per field and union the results rather than tokenizing
// the query string once.
var searchedFields = []domain.SearchTokenField{domain.FieldTitle, domain.FieldBody}

// Mode selects which candidate lists contribute to a search's ranking.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// rrfConstant is the reciprocal-rank-fusion smoothing constant. 60 is the
// standard value from the original RRF paper and is what the pack's own
// hybrid search examples use.
const rrfConstant = 60

// Explanation documents why a memory ranked where it did, so API
// responses can show "why was this returned" instead of a bare score.
type Explanation struct {
	KeywordRank      int // 1-indexed; 0 means no keyword match
	KeywordMatches   int
	KeywordScore     float64 // saturating function of KeywordMatches, in [0,1)
	SemanticRank     int     // 1-indexed; 0 means no semantic match
	SemanticDistance float64
	SemanticScore    float64 // cosine similarity normalized to [0,1]
}

// Result is one ranked memory.
type Result struct {
	MemoryID    string
	Score       float64
	Explanation Explanation
}

// Searcher answers hybrid queries for one owner's memories.
type Searcher struct {
	store     *store.Store
	tokenizer *blindindex.Tokenizer
	vectors   vectorstore.Store
	embedder  provider.EmbeddingProvider
}

// New constructs a Searcher. vectors/embedder may be nil if the caller
// only ever uses ModeKeyword — Search rejects ModeSemantic/ModeHybrid in
// that case rather than panicking.
func New(st *store.Store, tokenizer *blindindex.Tokenizer, vectors vectorstore.Store, embedder provider.EmbeddingProvider) *Searcher {
	return &Searcher{store: st, tokenizer: tokenizer, vectors: vectors, embedder: embedder}
}

// Search ranks memories for ownerID matching query under mode, returning
// at most topK results ordered by descending score.
func (s *Searcher) Search(ctx context.Context, ownerID, query string, mode Mode, topK int) ([]Result, error) {
	var keywordRanked []store.TokenMatch
	var semanticRanked []vectorstore.Match
	var err error

	if mode == ModeKeyword || mode == ModeHybrid {
		keywordRanked, err = s.keywordCandidates(ctx, ownerID, query)
		if err != nil {
			return nil, err
		}
	}
	if mode == ModeSemantic || mode == ModeHybrid {
		semanticRanked, err = s.semanticCandidates(ctx, query, topK)
		if err != nil {
			return nil, err
		}
	}

	var results []Result
	switch mode {
	case ModeKeyword:
		results = scoreKeyword(keywordRanked)
	case ModeSemantic:
		results = scoreSemantic(semanticRanked)
	case ModeHybrid:
		results = fuse(keywordRanked, semanticRanked)
	default:
		return nil, fmt.Errorf("hybridsearch: unknown mode %q", mode)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Searcher) keywordCandidates(ctx context.Context, ownerID, query string) ([]store.TokenMatch, error) {
	if s.tokenizer == nil {
		return nil, fmt.Errorf("hybridsearch: keyword search requires a tokenizer")
	}
	var tokens [][]byte
	for _, field := range searchedFields {
		fieldTokens, err := s.tokenizer.Tokenize(query, field)
		if err != nil {
			return nil, fmt.Errorf("hybridsearch: tokenize query: %w", err)
		}
		tokens = append(tokens, fieldTokens...)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return s.store.SearchByTokensRanked(ctx, ownerID, tokens)
}

func (s *Searcher) semanticCandidates(ctx context.Context, query string, topK int) ([]vectorstore.Match, error) {
	if s.vectors == nil || s.embedder == nil {
		return nil, fmt.Errorf("hybridsearch: semantic search requires a vector store and embedding provider")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hybridsearch: embed query: %w", err)
	}
	limit := topK
	if limit <= 0 {
		limit = 20
	}
	return s.vectors.Query(ctx, vec, limit*4) // over-fetch chunks; a memory may own several
}

// keywordScore turns a raw matched-token count into a saturating [0,1)
// score: each additional matched term matters less than the last, so a
// memory matching 10 of 12 query terms doesn't dominate one matching 2 of
// 2 purely on count.
func keywordScore(matchCount int) float64 {
	return float64(matchCount) / float64(matchCount+1)
}

// semanticScore maps a pgvector-style cosine distance (0 = identical, 2 =
// opposite) to a cosine-similarity score normalized to [0,1].
func semanticScore(distance float64) float64 {
	score := 1 - distance/2
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// scoreKeyword scores pure keyword-mode results directly off the matched-
// token saturating curve, with no rank-based fusion involved.
func scoreKeyword(matches []store.TokenMatch) []Result {
	out := make([]Result, 0, len(matches))
	for i, m := range matches {
		score := keywordScore(m.MatchCount)
		out = append(out, Result{
			MemoryID: m.MemoryID,
			Score:    score,
			Explanation: Explanation{
				KeywordRank:    i + 1,
				KeywordMatches: m.MatchCount,
				KeywordScore:   score,
			},
		})
	}
	return out
}

// scoreSemantic scores pure semantic-mode results directly off cosine
// similarity, with no rank-based fusion involved. Semantic candidates are
// per-chunk, so a memory's score is taken from its best (lowest-distance)
// chunk.
func scoreSemantic(matches []vectorstore.Match) []Result {
	bestRank := make(map[string]int)
	bestDistance := make(map[string]float64)
	for i, m := range matches {
		rank := i + 1
		if prevRank, ok := bestRank[m.MemoryID]; ok && prevRank <= rank {
			continue
		}
		bestRank[m.MemoryID] = rank
		bestDistance[m.MemoryID] = m.Distance
	}

	out := make([]Result, 0, len(bestRank))
	for id, rank := range bestRank {
		distance := bestDistance[id]
		score := semanticScore(distance)
		out = append(out, Result{
			MemoryID: id,
			Score:    score,
			Explanation: Explanation{
				SemanticRank:     rank,
				SemanticDistance: distance,
				SemanticScore:    score,
			},
		})
	}
	return out
}

// fuse combines keyword and semantic rankings via reciprocal rank fusion.
// A memory present in both lists accumulates both contributions; a memory
// present in only one list is scored on that list alone. Semantic
// candidates are per-chunk, so a memory's semantic rank is the best
// (lowest) rank among its chunks. The per-mode saturating/cosine scores
// are still recorded on Explanation so a hybrid result remains
// explainable even though Score itself is the RRF-fused value.
func fuse(keyword []store.TokenMatch, semantic []vectorstore.Match) []Result {
	explanations := make(map[string]*Explanation)
	scores := make(map[string]float64)

	for i, m := range keyword {
		rank := i + 1
		e := explanationFor(explanations, m.MemoryID)
		e.KeywordRank = rank
		e.KeywordMatches = m.MatchCount
		e.KeywordScore = keywordScore(m.MatchCount)
		scores[m.MemoryID] += 1.0 / float64(rrfConstant+rank)
	}

	bestSemanticRank := make(map[string]int)
	bestSemanticDistance := make(map[string]float64)
	for i, m := range semantic {
		rank := i + 1
		if prev, ok := bestSemanticRank[m.MemoryID]; ok && prev <= rank {
			continue
		}
		bestSemanticRank[m.MemoryID] = rank
		bestSemanticDistance[m.MemoryID] = m.Distance
	}
	for id, rank := range bestSemanticRank {
		e := explanationFor(explanations, id)
		e.SemanticRank = rank
		e.SemanticDistance = bestSemanticDistance[id]
		e.SemanticScore = semanticScore(bestSemanticDistance[id])
		scores[id] += 1.0 / float64(rrfConstant+rank)
	}

	out := make([]Result, 0, len(scores))
	for id, score := range scores {
		out = append(out, Result{MemoryID: id, Score: score, Explanation: *explanations[id]})
	}
	return out
}

func explanationFor(m map[string]*Explanation, memoryID string) *Explanation {
	if e, ok := m[memoryID]; ok {
		return e
	}
	e := &Explanation{}
	m[memoryID] = e
	return e
}
