package search

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"slices"
	"strings"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/query"
)

// Hop is one traversed relationship: its tag and the entity it reached.
type Hop struct {
	Tag string    `json:"tag"`
	ID  graph.EID `json:"id"`
}

// Result is an immutable path from a start entity through zero or more hops.
// Push never shares its backing array with the receiver, so a Result can be
// retained while its extensions are built.
type Result struct {
	start graph.EID
	hops  []Hop
}

// NewResult returns the zero-hop result for start.
func NewResult(start graph.EID) Result {
	return Result{start: start}
}

// Start returns the id the path started from.
func (r Result) Start() graph.EID { return r.start }

// Hops returns a copy of the hop sequence.
func (r Result) Hops() []Hop { return slices.Clone(r.hops) }

// Len returns the number of hops.
func (r Result) Len() int { return len(r.hops) }

// EndID is the id of the last entity on the path.
func (r Result) EndID() graph.EID {
	if len(r.hops) == 0 {
		return r.start
	}
	return r.hops[len(r.hops)-1].ID
}

// Push returns a new result extended by one hop.
func (r Result) Push(tag string, id graph.EID) Result {
	hops := make([]Hop, len(r.hops), len(r.hops)+1)
	copy(hops, r.hops)
	return Result{start: r.start, hops: append(hops, Hop{Tag: tag, ID: id})}
}

// Equal reports structural equality over start and hops.
func (r Result) Equal(o Result) bool {
	return r.start == o.start && slices.Equal(r.hops, o.hops)
}

// Key is a string uniquely identifying the path, suitable as a map key.
func (r Result) Key() string {
	var b strings.Builder
	b.WriteString(string(r.start))
	for _, h := range r.hops {
		b.WriteByte(0x1e)
		b.WriteString(h.Tag)
		b.WriteByte(0x1f)
		b.WriteString(string(h.ID))
	}
	return b.String()
}

// String renders the path as "a -[TAG]-> b".
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(string(r.start))
	for _, h := range r.hops {
		b.WriteString(" -[")
		b.WriteString(h.Tag)
		b.WriteString("]-> ")
		b.WriteString(string(h.ID))
	}
	return b.String()
}

type resultJSON struct {
	Start graph.EID `json:"start"`
	Hops  []Hop     `json:"hops"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	hops := r.hops
	if hops == nil {
		hops = []Hop{}
	}
	return json.Marshal(resultJSON{Start: r.start, Hops: hops})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var v resultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.start = v.Start
	r.hops = nil
	if len(v.Hops) > 0 {
		r.hops = v.Hops
	}
	return nil
}

// SearchResults is the read-only outcome of one search.
type SearchResults struct {
	graph   graph.Graph
	query   *query.Query
	results []Result
}

// Query returns the query that produced the results.
func (s *SearchResults) Query() *query.Query { return s.query }

// Len returns the number of results.
func (s *SearchResults) Len() int { return len(s.results) }

// At returns the i-th result in emission order.
func (s *SearchResults) At(i int) Result { return s.results[i] }

// All iterates the results in emission order.
func (s *SearchResults) All() iter.Seq[Result] {
	return slices.Values(s.results)
}

// Results returns a copy of the results in emission order.
func (s *SearchResults) Results() []Result { return slices.Clone(s.results) }

// Entities resolves the distinct end entities in first-seen order. Results
// whose end entity no longer exists are skipped.
func (s *SearchResults) Entities(ctx context.Context) ([]*graph.Entity, error) {
	seen := make(map[graph.EID]struct{})
	var out []*graph.Entity
	for _, r := range s.results {
		id := r.EndID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		e, err := s.graph.Entity(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MarshalJSON encodes the query and results.
func (s *SearchResults) MarshalJSON() ([]byte, error) {
	results := s.results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(struct {
		Query   *query.Query `json:"query"`
		Results []Result     `json:"results"`
	}{s.query, results})
}
