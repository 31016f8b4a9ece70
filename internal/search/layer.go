package search

import (
	"context"
	"fmt"
	"iter"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/query"
)

// Layer is one stage of the search pipeline. Results are produced lazily:
// no work happens until the consumer ranges over the sequence, and a
// consumer that stops ranging stops all upstream work. A non-nil error is
// the final element of the sequence.
type Layer interface {
	Results(ctx context.Context) iter.Seq2[Result, error]
}

// StartLayer yields one zero-hop result per seed id, after resolving each id
// to its canonical form. Seeds that do not resolve are skipped.
type StartLayer struct {
	start query.Start
	graph graph.Graph
	terms TermIndex
}

// NewStartLayer creates the seed layer for start.
func NewStartLayer(start query.Start, g graph.Graph, t TermIndex) *StartLayer {
	return &StartLayer{start: start, graph: g, terms: t}
}

func (l *StartLayer) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		for raw, err := range l.seeds(ctx) {
			if err != nil {
				yield(Result{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Result{}, err)
				return
			}
			id, ok, err := l.graph.Resolve(ctx, string(raw))
			if err != nil {
				yield(Result{}, fmt.Errorf("resolve start %q: %w", raw, err))
				return
			}
			if !ok {
				continue
			}
			if !yield(NewResult(id), nil) {
				return
			}
		}
	}
}

func (l *StartLayer) seeds(ctx context.Context) iter.Seq2[graph.EID, error] {
	switch l.start.Kind() {
	case query.StartIDs:
		return func(yield func(graph.EID, error) bool) {
			for _, id := range l.start.IDs {
				if !yield(graph.EID(id), nil) {
					return
				}
			}
		}
	case query.StartPrefix:
		return withoutErrors(l.terms.Values(l.start.Prefix))
	case query.StartTerm:
		return withoutErrors(l.terms.Get(l.start.Term))
	default:
		return l.graph.IDs(ctx)
	}
}

func withoutErrors(seq iter.Seq[graph.EID]) iter.Seq2[graph.EID, error] {
	return func(yield func(graph.EID, error) bool) {
		for id := range seq {
			if !yield(id, nil) {
				return
			}
		}
	}
}

// WalkLayer expands every upstream result along matching relationships.
//
// For each upstream result the layer first re-emits it when the step is a
// passthru, then expands it depth first. A path is expanded before it is
// emitted, so deeper descendants come out ahead of the hop that found them.
// Hop counts are relative to the upstream result. A path already produced by
// this layer is never produced again, but the same entity reached over a
// different path is.
type WalkLayer struct {
	step  *query.WalkStep
	prev  Layer
	graph graph.Graph
}

// NewWalkLayer wraps prev with the walk described by step.
func NewWalkLayer(step *query.WalkStep, prev Layer, g graph.Graph) *WalkLayer {
	return &WalkLayer{step: step, prev: prev, graph: g}
}

func (l *WalkLayer) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		w := &walker{
			graph:   l.graph,
			tags:    l.step.TagList(),
			dir:     graph.DirectionOf(l.step.Incoming),
			maxHops: l.step.MaxHops,
			seen:    make(map[string]struct{}),
			yield:   yield,
		}
		for r, err := range l.prev.Results(ctx) {
			if err != nil {
				yield(Result{}, err)
				return
			}
			if l.step.Passthru && !yield(r, nil) {
				return
			}
			if !w.expand(ctx, r, 0) {
				return
			}
		}
	}
}

type walker struct {
	graph   graph.Graph
	tags    []string
	dir     graph.Direction
	maxHops *int
	seen    map[string]struct{}
	yield   func(Result, error) bool
}

// expand emits the descendants of r that are within the hop cap. It returns
// false once the consumer has stopped or an error has been yielded.
func (w *walker) expand(ctx context.Context, r Result, depth int) bool {
	if w.maxHops != nil && depth >= *w.maxHops {
		return true
	}
	for _, tag := range w.tags {
		if err := ctx.Err(); err != nil {
			w.yield(Result{}, err)
			return false
		}
		neighbors, err := w.graph.Relationships(ctx, []graph.EID{r.EndID()}, tag, w.dir)
		if err != nil {
			w.yield(Result{}, fmt.Errorf("walk %s from %s: %w", tag, r.EndID(), err))
			return false
		}
		for _, n := range neighbors {
			next := r.Push(n.Tag, n.ID)
			key := next.Key()
			if _, ok := w.seen[key]; ok {
				continue
			}
			w.seen[key] = struct{}{}
			if !w.expand(ctx, next, depth+1) {
				return false
			}
			if !w.yield(next, nil) {
				return false
			}
		}
	}
	return true
}

// FilterLayer keeps the upstream results whose end entity passes the step.
type FilterLayer struct {
	step    *query.FilterStep
	prev    Layer
	newEval func() *evaluator
}

func (l *FilterLayer) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		eval := evaluatorFrom(ctx)
		if eval == nil {
			eval = l.newEval()
		}
		for r, err := range l.prev.Results(ctx) {
			if err != nil {
				yield(Result{}, err)
				return
			}
			ok, err := eval.step(ctx, l.step, r.EndID())
			if err != nil {
				yield(Result{}, err)
				return
			}
			if ok && !yield(r, nil) {
				return
			}
		}
	}
}

type evaluatorKey struct{}

func evaluatorFrom(ctx context.Context) *evaluator {
	e, _ := ctx.Value(evaluatorKey{}).(*evaluator)
	return e
}

// runLayer starts every run of prev with a fresh evaluator shared by all of
// its filter layers, so closures never outlive one run.
type runLayer struct {
	prev    Layer
	newEval func() *evaluator
}

func (l *runLayer) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		ctx := context.WithValue(ctx, evaluatorKey{}, l.newEval())
		for r, err := range l.prev.Results(ctx) {
			if !yield(r, err) {
				return
			}
		}
	}
}

// GoalLayer passes through at most limit results and then stops pulling
// from upstream. A nil limit passes everything.
type GoalLayer struct {
	limit *int
	prev  Layer
}

// NewGoalLayer wraps prev with the goal's limit.
func NewGoalLayer(goal query.Goal, prev Layer) *GoalLayer {
	return &GoalLayer{limit: goal.Limit, prev: prev}
}

func (l *GoalLayer) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		if l.limit != nil && *l.limit <= 0 {
			return
		}
		n := 0
		for r, err := range l.prev.Results(ctx) {
			if !yield(r, err) || err != nil {
				return
			}
			n++
			if l.limit != nil && n >= *l.limit {
				return
			}
		}
	}
}
