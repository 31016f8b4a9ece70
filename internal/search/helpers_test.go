package search

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/query"
)

// buildGraph creates a MemStore from "id:LABEL" entity definitions and
// "src -TAG-> dst" relationship definitions.
func buildGraph(t *testing.T, entities []string, rels ...string) *graph.MemStore {
	t.Helper()
	ctx := context.Background()
	g := graph.NewMemStore()
	for _, def := range entities {
		id, label, _ := strings.Cut(def, ":")
		require.NoError(t, g.AddEntity(ctx, &graph.Entity{ID: graph.EID(id), Label: label, Value: "value of " + id}))
	}
	for _, def := range rels {
		addRel(t, g, def)
	}
	return g
}

func addRel(t *testing.T, g graph.Store, def string) {
	t.Helper()
	fields := strings.Fields(def)
	require.Len(t, fields, 3, "relationship %q", def)
	tag := strings.TrimSuffix(strings.TrimPrefix(fields[1], "-"), "->")
	require.NoError(t, g.AddRelationship(context.Background(), &graph.Relationship{
		Source: graph.EID(fields[0]),
		Tag:    tag,
		Target: graph.EID(fields[2]),
	}))
}

func newSearcher(t *testing.T, g graph.Graph, opts ...Option) *Searcher {
	t.Helper()
	s, err := NewSearcher(g, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func paths(t *testing.T, res *SearchResults) []string {
	t.Helper()
	out := make([]string, 0, res.Len())
	for r := range res.All() {
		out = append(out, r.String())
	}
	return out
}

func outWalk(maxHops int, tags ...string) *query.WalkStep {
	w := query.NewWalkStep(tags...)
	w.Incoming = false
	w.MaxHops = query.Int(maxHops)
	return w
}

// countingGraph counts traversal calls made against the wrapped graph.
type countingGraph struct {
	graph.Graph
	relationshipCalls atomic.Int64
}

func (c *countingGraph) Relationships(ctx context.Context, ids []graph.EID, tag string, direction graph.Direction) ([]graph.Neighbor, error) {
	c.relationshipCalls.Add(1)
	return c.Graph.Relationships(ctx, ids, tag, direction)
}
