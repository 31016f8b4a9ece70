package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/metrics"
	"github.com/imyousuf/entityquery/internal/query"
)

// closure is a resolved id set.
type closure map[graph.EID]struct{}

// closureCache is shared across searches. Entries are keyed by filter
// fingerprint and graph version, so a mutated graph never hits a stale entry.
type closureCache struct {
	cache *ristretto.Cache[string, closure]
}

func newClosureCache(maxCost int64) (*closureCache, error) {
	// Cost is the number of ids held; ristretto wants ~10 counters per item.
	counters := min(max(maxCost*10, 1000), 1<<24)
	cache, err := ristretto.NewCache(&ristretto.Config[string, closure]{
		NumCounters:        counters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create closure cache: %w", err)
	}
	return &closureCache{cache: cache}, nil
}

func cacheKey(fingerprint string, version uint64) string {
	return strconv.FormatUint(version, 10) + "\x1d" + fingerprint
}

func (c *closureCache) get(fingerprint string, version uint64) (closure, bool) {
	return c.cache.Get(cacheKey(fingerprint, version))
}

func (c *closureCache) set(fingerprint string, version uint64, set closure) {
	c.cache.Set(cacheKey(fingerprint, version), set, int64(len(set))+1)
	c.cache.Wait()
}

func (c *closureCache) close() {
	c.cache.Close()
}

// evaluator evaluates filter steps for one search call. Closures computed
// during the call are kept for its duration only.
type evaluator struct {
	graph    graph.Graph
	shared   *closureCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	closures map[string]closure
}

func newEvaluator(g graph.Graph, shared *closureCache, m *metrics.Metrics, logger *slog.Logger) *evaluator {
	return &evaluator{
		graph:    g,
		shared:   shared,
		metrics:  m,
		logger:   logger,
		closures: make(map[string]closure),
	}
}

// step reports whether id passes s. Filters are combined with short-circuit
// AND or OR and the outcome is negated for excluding steps.
func (e *evaluator) step(ctx context.Context, s *query.FilterStep, id graph.EID) (bool, error) {
	matched := !s.IsOr()
	for _, f := range s.Filters {
		ok, err := e.filter(ctx, f, id)
		if err != nil {
			return false, err
		}
		if s.IsOr() && ok {
			matched = true
			break
		}
		if !s.IsOr() && !ok {
			matched = false
			break
		}
	}
	return matched != s.Exclude, nil
}

func (e *evaluator) filter(ctx context.Context, f query.Filter, id graph.EID) (bool, error) {
	switch f := f.(type) {
	case *query.LabelFilter:
		ent, err := e.graph.Entity(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("label filter: %w", err)
		}
		return f.Matches(ent.Label), nil
	case *query.RelationshipFilter:
		set, err := e.closure(ctx, f)
		if err != nil {
			return false, err
		}
		_, ok := set[id]
		return ok, nil
	default:
		return false, fmt.Errorf("%w: %T", query.ErrUnrecognizedFilterShape, f)
	}
}

// closure returns the closure of f, computing it at most once per call.
func (e *evaluator) closure(ctx context.Context, f *query.RelationshipFilter) (closure, error) {
	fp := f.Fingerprint()
	if set, ok := e.closures[fp]; ok {
		return set, nil
	}

	versioned, canShare := e.graph.(graph.Versioned)
	canShare = canShare && e.shared != nil
	var version uint64
	if canShare {
		version = versioned.Version()
		if set, ok := e.shared.get(fp, version); ok {
			e.metrics.ObserveClosure(true)
			e.closures[fp] = set
			return set, nil
		}
		e.metrics.ObserveClosure(false)
	}

	set, err := computeClosure(ctx, e.graph, f)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("computed relationship closure",
		"entities", f.Entities, "tags", f.TagList(), "incoming", f.Incoming, "size", len(set))
	e.closures[fp] = set
	if canShare {
		e.shared.set(fp, version, set)
	}
	return set, nil
}

// computeClosure runs a breadth-wise fixed point from the resolved seeds: each
// round fetches the neighbors of the frontier and continues with the ids not
// seen before, until the frontier is empty.
func computeClosure(ctx context.Context, g graph.Graph, f *query.RelationshipFilter) (closure, error) {
	seeds := make([]graph.EID, 0, len(f.Entities))
	for _, value := range f.Entities {
		id, ok, err := g.Resolve(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", value, err)
		}
		if ok {
			seeds = append(seeds, id)
		}
	}

	set := make(closure)
	visited := make(map[graph.EID]struct{}, len(seeds))
	for _, id := range seeds {
		visited[id] = struct{}{}
		if f.SelfOK {
			set[id] = struct{}{}
		}
	}

	dir := graph.DirectionOf(f.Incoming)
	frontier := seeds
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []graph.EID
		for _, tag := range f.TagList() {
			neighbors, err := g.Relationships(ctx, frontier, tag, dir)
			if err != nil {
				return nil, fmt.Errorf("closure over %s: %w", tag, err)
			}
			for _, n := range neighbors {
				set[n.ID] = struct{}{}
				if _, ok := visited[n.ID]; ok {
					continue
				}
				visited[n.ID] = struct{}{}
				next = append(next, n.ID)
			}
		}
		frontier = next
	}
	return set, nil
}
