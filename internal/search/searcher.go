// Package search compiles queries into lazy layer pipelines over a graph and
// a term index, and ranks the entities they reach.
package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/metrics"
	"github.com/imyousuf/entityquery/internal/query"
)

// ErrNoTerms is returned when a query starts from a term or prefix but the
// searcher has no term index.
var ErrNoTerms = errors.New("query start needs a term index")

// TermIndex is the part of the term index a search reads.
type TermIndex interface {
	Get(term string) iter.Seq[graph.EID]
	Values(prefix string) iter.Seq[graph.EID]
}

// Group is one end entity and the results that reached it, in emission order.
type Group struct {
	Entity  *graph.Entity
	Results []Result
}

// MinHops is the fewest hops among the group's results.
func (g Group) MinHops() int {
	n := -1
	for _, r := range g.Results {
		if n < 0 || r.Len() < n {
			n = r.Len()
		}
	}
	return max(n, 0)
}

// Searcher runs queries against a graph and term index. The searcher never
// writes to either and holds no per-query state, so it is safe for
// concurrent use as long as the graph and index are.
type Searcher struct {
	graph   graph.Graph
	terms   TermIndex
	logger  *slog.Logger
	metrics *metrics.Metrics
	shared  *closureCache
	err     error
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// WithMetrics records search metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

// WithClosureCache shares relationship closures across searches, bounded by
// maxCost ids in total. Sharing only happens for graphs that implement
// graph.Versioned; entries are keyed by graph version so mutations are
// always observed. A non-positive maxCost disables sharing.
func WithClosureCache(maxCost int64) Option {
	return func(s *Searcher) {
		if maxCost <= 0 {
			return
		}
		s.shared, s.err = newClosureCache(maxCost)
	}
}

// NewSearcher creates a Searcher. t may be nil when no query starts from a
// term or prefix.
func NewSearcher(g graph.Graph, t TermIndex, opts ...Option) (*Searcher, error) {
	s := &Searcher{graph: g, terms: t, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

// Close releases the shared closure cache, if any.
func (s *Searcher) Close() {
	if s.shared != nil {
		s.shared.close()
	}
}

// Pipeline compiles q into its final layer without running it. Each range
// over the layer's results evaluates filters against the graph as it is then.
func (s *Searcher) Pipeline(q *query.Query) (Layer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch q.Start.Kind() {
	case query.StartPrefix, query.StartTerm:
		if s.terms == nil {
			return nil, ErrNoTerms
		}
	}

	newEval := func() *evaluator {
		return newEvaluator(s.graph, s.shared, s.metrics, s.logger)
	}
	var layer Layer = NewStartLayer(q.Start, s.graph, s.terms)
	for _, step := range q.Steps {
		switch st := step.(type) {
		case *query.WalkStep:
			layer = NewWalkLayer(st, layer, s.graph)
		case *query.FilterStep:
			layer = &FilterLayer{step: st, prev: layer, newEval: newEval}
		}
	}
	limit := -1
	if q.Goal.Limit != nil {
		limit = *q.Goal.Limit
	}
	s.logger.Debug("compiled search pipeline",
		"start", q.Start.Kind().String(), "steps", len(q.Steps), "limit", limit)
	return &runLayer{prev: NewGoalLayer(q.Goal, layer), newEval: newEval}, nil
}

// Search runs q and collects its results in emission order.
func (s *Searcher) Search(ctx context.Context, q *query.Query) (*SearchResults, error) {
	began := time.Now()
	results, err := s.search(ctx, q)
	s.metrics.ObserveSearch(time.Since(began), len(results), err)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search complete", "results", len(results), "elapsed", time.Since(began))
	return &SearchResults{graph: s.graph, query: q, results: results}, nil
}

func (s *Searcher) search(ctx context.Context, q *query.Query) ([]Result, error) {
	layer, err := s.Pipeline(q)
	if err != nil {
		return nil, err
	}
	var results []Result
	for r, err := range layer.Results(ctx) {
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Rollup runs q and groups the results by end entity in first-seen order.
// Results whose end entity cannot be found are dropped.
func (s *Searcher) Rollup(ctx context.Context, q *query.Query) ([]Group, error) {
	res, err := s.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	index := make(map[graph.EID]int)
	var groups []Group
	for _, r := range res.results {
		id := r.EndID()
		if i, ok := index[id]; ok {
			groups[i].Results = append(groups[i].Results, r)
			continue
		}
		ent, err := s.graph.Entity(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rollup: %w", err)
		}
		index[id] = len(groups)
		groups = append(groups, Group{Entity: ent, Results: []Result{r}})
	}
	return groups, nil
}

// MostRelevant returns the entity reached by the most results, preferring
// fewer hops on a tie. It returns nil when nothing matched.
func (s *Searcher) MostRelevant(ctx context.Context, q *query.Query) (*graph.Entity, error) {
	return s.best(ctx, q, byRelevance)
}

// Closest returns the entity reached in the fewest hops, preferring more
// results on a tie. It returns nil when nothing matched.
func (s *Searcher) Closest(ctx context.Context, q *query.Query) (*graph.Entity, error) {
	return s.best(ctx, q, byCloseness)
}

// Ranking names accepted by Rank.
const (
	RankRollup   = "rollup"
	RankRelevant = "relevant"
	RankClosest  = "closest"
)

// Rank returns a copy of groups ordered by ranking. Rollup and unknown names
// keep first-seen order.
func Rank(groups []Group, ranking string) []Group {
	out := slices.Clone(groups)
	switch ranking {
	case RankRelevant:
		slices.SortStableFunc(out, byRelevance)
	case RankClosest:
		slices.SortStableFunc(out, byCloseness)
	}
	return out
}

func byRelevance(a, b Group) int {
	return cmp.Or(
		cmp.Compare(len(b.Results), len(a.Results)),
		cmp.Compare(a.MinHops(), b.MinHops()),
	)
}

func byCloseness(a, b Group) int {
	return cmp.Or(
		cmp.Compare(a.MinHops(), b.MinHops()),
		cmp.Compare(len(b.Results), len(a.Results)),
	)
}

func (s *Searcher) best(ctx context.Context, q *query.Query, compare func(a, b Group) int) (*graph.Entity, error) {
	groups, err := s.Rollup(ctx, q)
	if err != nil {
		return nil, err
	}
	switch len(groups) {
	case 0:
		return nil, nil
	case 1:
		return groups[0].Entity, nil
	}
	slices.SortStableFunc(groups, compare)
	return groups[0].Entity, nil
}
