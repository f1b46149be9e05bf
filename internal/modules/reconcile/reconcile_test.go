package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

func listing(id int64, title string) *types.Listing {
	return &types.Listing{ScrapingID: id, Title: title}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"  Acme   Steel Co. ", "acme steel co"},
		{"A&B Ltda.", "ab ltda"},
		{"Construcción Díaz", "construccion diaz"},
		{"Ferretería\tEl\nMartillo", "ferreteria el martillo"},
		{"!!!", ""},
		{"Obra 24/7", "obra 247"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestRatioMatchesGestaltValues(t *testing.T) {
	assert.InDelta(t, 1.0, Ratio("", ""), 1e-9)
	assert.InDelta(t, 0.0, Ratio("abc", ""), 1e-9)
	assert.InDelta(t, 0.75, Ratio("abcd", "bcde"), 1e-9)
	assert.InDelta(t, 20.0/23.0, Ratio("acme steel co", "acme steel"), 1e-9)
	assert.InDelta(t, Ratio("acme steel", "acme steel co"), Ratio("acme steel co", "acme steel"), 1e-9)
}

func TestMatchFuzzyHit(t *testing.T) {
	rec1 := listing(1, "Acme Steel")
	rec2 := listing(2, "Other Corp")
	m := NewMatcher(BuildIndex([]*types.Listing{rec1, rec2}), 0.7)

	got, ok := m.Match("Acme Steel Co.")
	require.True(t, ok)
	assert.Same(t, rec1, got.Record)
	assert.Less(t, got.Similarity, 1.0)
	assert.GreaterOrEqual(t, got.Similarity, 0.7)
}

func TestMatchExactPrecedence(t *testing.T) {
	near := listing(1, "Acme Steel Corp")
	exact := listing(2, "ACME steel co")
	m := NewMatcher(BuildIndex([]*types.Listing{near, exact}), 0.5)

	got, ok := m.Match("Acme Steel Co.")
	require.True(t, ok)
	assert.Same(t, exact, got.Record)
	assert.Equal(t, 1.0, got.Similarity)
}

func TestMatchTokenFilterAndEmpty(t *testing.T) {
	m := NewMatcher(BuildIndex([]*types.Listing{listing(1, "Acme Steel")}), 0.7)

	_, ok := m.Match("")
	assert.False(t, ok)
	_, ok = m.Match("...")
	assert.False(t, ok, "punctuation-only normalizes to empty")
	_, ok = m.Match("Steelworks Acmeco")
	assert.False(t, ok, "no shared tokens never reaches the ratio tier")
	_, ok = m.Match("Acme")
	assert.False(t, ok, "single shared token passes the filter but ratio stays below threshold")
}

func TestMatchIsDeterministicOnTies(t *testing.T) {
	a := listing(1, "Tornillos Norte SA")
	b := listing(2, "Tornillos Norte SB")
	idx := BuildIndex([]*types.Listing{a, b})
	m := NewMatcher(idx, 0.7)

	first, ok := m.Match("Tornillos Norte SC")
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		got, ok := m.Match("Tornillos Norte SC")
		require.True(t, ok)
		assert.Same(t, first.Record, got.Record)
	}
	assert.Same(t, a, first.Record, "ties go to the bucket seen first")
}

func TestMatchThresholdIsConfigurable(t *testing.T) {
	idx := BuildIndex([]*types.Listing{listing(1, "Acme Steel")})
	_, ok := NewMatcher(idx, 0.95).Match("Acme Steel Co.")
	assert.False(t, ok)
	_, ok = NewMatcher(idx, 0.8).Match("Acme Steel Co.")
	assert.True(t, ok)
	assert.Equal(t, DefaultThreshold, NewMatcher(idx, 0).Threshold())
}

func TestEngineIsolatesFailingBatch(t *testing.T) {
	records := []*types.Listing{listing(1, "Alpha"), listing(2, "Beta"), listing(3, "Gamma"), listing(4, "Delta")}
	e := NewEngine(logger.Nop(), Config{BatchSize: 2, Workers: 3, Threshold: 0.7})
	e.matchFn = func(m *Matcher, cand string) (Match, bool) {
		if cand == "boom" {
			panic("matcher exploded")
		}
		return m.Match(cand)
	}

	res, err := e.Run(context.Background(), []string{"Alpha", "Beta", "boom", "Gamma", "Delta", "Zeta"}, records)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, 6, res.Candidates)

	got := map[int64]bool{}
	for _, m := range res.Matches {
		got[m.Record.ScrapingID] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 4: true}, got, "Gamma shared the failed batch")
	assert.ElementsMatch(t, []string{"Zeta"}, res.Unmatched)
}

func TestEngineManyBatches(t *testing.T) {
	var records []*types.Listing
	var candidates []string
	for i := 1; i <= 230; i++ {
		records = append(records, listing(int64(i), fmt.Sprintf("Empresa Numero %d", i)))
		candidates = append(candidates, fmt.Sprintf("EMPRESA numero %d", i))
	}
	res, err := NewEngine(logger.Nop(), Config{}).Run(context.Background(), candidates, records)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 230)
	assert.Zero(t, res.FailedBatches)
}

func TestEngineHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(logger.Nop(), Config{}).Run(ctx, []string{"a", "b"}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDedupeByRecord(t *testing.T) {
	r1, r2 := listing(1, "A"), listing(2, "B")
	out := DedupeByRecord([]Match{
		{Candidate: "b-folder", Record: r2, Similarity: 0.8},
		{Candidate: "z", Record: r1, Similarity: 0.9},
		{Candidate: "a", Record: r1, Similarity: 0.9},
		{Candidate: "low", Record: r1, Similarity: 0.75},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Candidate)
	assert.Equal(t, int64(2), out[1].Record.ScrapingID)
}
