package reconcile

import (
	types "github.com/yungbote/companysync-backend/internal/domain"
)

// DefaultThreshold is the minimum ratio accepted by the fuzzy tier.
const DefaultThreshold = 0.7

type bucket struct {
	normalized string
	tokens     map[string]struct{}
	// records share one normalized title; the first one represents the bucket.
	records []*types.Listing
}

// Index maps normalized titles to record buckets. It is read-only once built and safe
// for concurrent Match calls.
type Index struct {
	byName  map[string]*bucket
	ordered []*bucket
}

// BuildIndex groups records by normalized title in one pass. Bucket order follows
// first appearance, which makes tie-breaking in Match deterministic.
func BuildIndex(records []*types.Listing) *Index {
	idx := &Index{byName: make(map[string]*bucket, len(records))}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := Normalize(rec.Title)
		b, ok := idx.byName[key]
		if !ok {
			b = &bucket{normalized: key, tokens: Tokens(key)}
			idx.byName[key] = b
			idx.ordered = append(idx.ordered, b)
		}
		b.records = append(b.records, rec)
	}
	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.ordered)
}

// Match is one candidate resolved to a canonical record.
type Match struct {
	// Candidate is the raw source name, e.g. the object store folder.
	Candidate  string
	Record     *types.Listing
	Similarity float64
}

// Matcher runs the tiered comparison against an Index.
type Matcher struct {
	index     *Index
	threshold float64
}

func NewMatcher(index *Index, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{index: index, threshold: threshold}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the best record for candidate, or false when nothing clears the threshold.
// An exact normalized hit wins with similarity 1. Otherwise a bucket must share at least
// min(2, |candidate tokens|) tokens before its ratio is computed.
func (m *Matcher) Match(candidate string) (Match, bool) {
	if m == nil || m.index == nil {
		return Match{}, false
	}
	norm := Normalize(candidate)
	if norm == "" {
		return Match{}, false
	}
	if b, ok := m.index.byName[norm]; ok {
		return Match{Candidate: candidate, Record: b.records[0], Similarity: 1}, true
	}

	candTokens := Tokens(norm)
	need := len(candTokens)
	if need > 2 {
		need = 2
	}
	if need == 0 {
		return Match{}, false
	}

	var best *bucket
	bestScore := 0.0
	for _, b := range m.index.ordered {
		if overlap(candTokens, b.tokens) < need {
			continue
		}
		score := Ratio(norm, b.normalized)
		if score >= m.threshold && score > bestScore {
			best, bestScore = b, score
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{Candidate: candidate, Record: best.records[0], Similarity: bestScore}, true
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
