package terms

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/entityquery/internal/graph"
)

func TestDefaultNormalizer(t *testing.T) {
	n := DefaultNormalizer{}
	tests := []struct {
		in, want string
	}{
		{"New York", "new york"},
		{"  New\t  York  ", "new york"},
		{"STRASSE", "strasse"},
		{"Straße", "strasse"},
		{"ﬁle", "file"}, // NFKC expands the ligature
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestAddReturnsNormalizedTerms(t *testing.T) {
	idx := New()
	got := idx.Add("e1", "CITY", "New  York", "NYC", "   ")
	assert.Equal(t, []string{"new york", "nyc"}, got)
	assert.Equal(t, 2, idx.Len())
}

func TestGetExactMatch(t *testing.T) {
	idx := New()
	idx.Add("e1", "CITY", "Paris")
	idx.Add("e2", "PERSON", "paris")
	idx.Add("e1", "CITY", "PARIS") // duplicate add is idempotent

	assert.Equal(t, []graph.EID{"e1", "e2"}, slices.Collect(idx.Get("  PARIS ")))
	assert.Empty(t, slices.Collect(idx.Get("par")))
	assert.Empty(t, slices.Collect(idx.Get("london")))
}

func TestValuesPrefixExpansion(t *testing.T) {
	idx := New()
	idx.Add("e3", "CITY", "paris")
	idx.Add("e1", "PERSON", "paris hilton")
	idx.Add("e2", "CITY", "parma")
	idx.Add("e3", "CITY", "paris, france")
	idx.Add("e4", "CITY", "pisa")

	// Keys in order: "paris", "paris hilton", "paris, france", "parma".
	assert.Equal(t, []graph.EID{"e3", "e1", "e2"}, slices.Collect(idx.Values("Par")))
	assert.Equal(t, []graph.EID{"e3", "e1"}, slices.Collect(idx.Values("paris")))
	assert.Empty(t, slices.Collect(idx.Values("rome")))
}

func TestValuesStopsEarly(t *testing.T) {
	idx := New()
	for i := range 100 {
		idx.Add(graph.EID(strings.Repeat("x", i+1)), "", "term"+strings.Repeat("a", i))
	}

	var got []graph.EID
	for id := range idx.Values("term") {
		got = append(got, id)
		if len(got) == 3 {
			break
		}
	}
	assert.Len(t, got, 3)
}

func TestValuesSnapshotIsolatedFromWrites(t *testing.T) {
	idx := New()
	idx.Add("e1", "", "alpha")
	seq := idx.Values("al")
	idx.Add("e2", "", "alps")

	assert.Equal(t, []graph.EID{"e1"}, slices.Collect(seq))
	assert.Equal(t, []graph.EID{"e1", "e2"}, slices.Collect(idx.Values("al")))
}

func TestStatsAndEntriesRoundTrip(t *testing.T) {
	idx := New()
	idx.Add("e1", "CITY", "paris", "city of light")
	idx.Add("e2", "PERSON", "paris")

	stats := idx.Stats()
	assert.Equal(t, 2, stats.Terms)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 3, stats.Postings)
	assert.Equal(t, 2, stats.ByLabel["CITY"])
	assert.Equal(t, 1, stats.ByLabel["PERSON"])

	copied := New()
	copied.Load(slices.Collect(idx.Entries())...)
	require.Equal(t, idx.Len(), copied.Len())
	assert.Equal(t, slices.Collect(idx.Get("paris")), slices.Collect(copied.Get("paris")))
	assert.Equal(t, slices.Collect(idx.Entries()), slices.Collect(copied.Entries()))
}

func TestCustomNormalizer(t *testing.T) {
	idx := New(WithNormalizer(NormalizerFunc(strings.TrimSpace)))
	idx.Add("e1", "", " Case ")
	assert.Equal(t, []graph.EID{"e1"}, slices.Collect(idx.Get("Case")))
	assert.Empty(t, slices.Collect(idx.Get("case")))
}
