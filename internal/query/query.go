// Package query defines the declarative query model: a start source, an
// ordered list of filter and walk steps, and a goal. Queries are plain values
// and can be encoded to and decoded from JSON, YAML and TOML.
package query

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StartKind identifies which source a Start draws from.
type StartKind int

const (
	StartAll StartKind = iota
	StartIDs
	StartPrefix
	StartTerm
)

func (k StartKind) String() string {
	switch k {
	case StartIDs:
		return "ids"
	case StartPrefix:
		return "prefix"
	case StartTerm:
		return "term"
	default:
		return "all"
	}
}

// Start names the seed entities of a query. At most one of IDs, Prefix and
// Term may be set; with none set every entity in the graph is a seed.
// A non-nil empty IDs is an explicit empty seed list.
type Start struct {
	IDs    []string
	Prefix string
	Term   string
}

// Kind reports which source the start uses.
func (s Start) Kind() StartKind {
	switch {
	case s.IDs != nil:
		return StartIDs
	case s.Prefix != "":
		return StartPrefix
	case s.Term != "":
		return StartTerm
	default:
		return StartAll
	}
}

// Validate returns ErrAmbiguousStart when more than one source is set.
func (s Start) Validate() error {
	n := 0
	if s.IDs != nil {
		n++
	}
	if s.Prefix != "" {
		n++
	}
	if s.Term != "" {
		n++
	}
	if n > 1 {
		return ErrAmbiguousStart
	}
	return nil
}

// Goal bounds how many results a search returns. A nil Limit is unbounded.
type Goal struct {
	Limit *int
}

// Query is a complete search request.
type Query struct {
	Start Start
	Steps []Step
	Goal  Goal
}

// New builds a query with the given start and steps and no limit.
func New(start Start, steps ...Step) *Query {
	return &Query{Start: start, Steps: steps}
}

// WithLimit sets the goal limit and returns q.
func (q *Query) WithLimit(n int) *Query {
	q.Goal.Limit = Int(n)
	return q
}

// Validate checks the structural invariants of q.
func (q *Query) Validate() error {
	if err := q.Start.Validate(); err != nil {
		return err
	}
	if q.Goal.Limit != nil && *q.Goal.Limit < 0 {
		return fmt.Errorf("%w: goal limit %d", ErrInvalidValue, *q.Goal.Limit)
	}
	for i, step := range q.Steps {
		switch s := step.(type) {
		case *WalkStep:
			if s == nil {
				return fmt.Errorf("steps[%d]: %w: nil walk", i, ErrInvalidValue)
			}
			if s.MaxHops != nil && *s.MaxHops < 0 {
				return fmt.Errorf("steps[%d]: %w: max_hops %d", i, ErrInvalidValue, *s.MaxHops)
			}
		case *FilterStep:
			if s == nil {
				return fmt.Errorf("steps[%d]: %w: nil filter step", i, ErrInvalidValue)
			}
			if s.Join != "" && s.Join != JoinAnd && s.Join != JoinOr {
				return fmt.Errorf("steps[%d]: %w: join %q", i, ErrInvalidValue, s.Join)
			}
			for j, f := range s.Filters {
				if f == nil || reflect.ValueOf(f).IsNil() {
					return fmt.Errorf("steps[%d].filters[%d]: %w: nil filter", i, j, ErrInvalidValue)
				}
			}
		default:
			return fmt.Errorf("steps[%d]: %w", i, ErrUnrecognizedStepShape)
		}
	}
	return nil
}

// Equal reports whether a and b describe the same query. Set-valued fields
// compare as sets.
func Equal(a, b *Query) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a.Encode(), b.Encode())
}

// MarshalJSON encodes q in its canonical tagged form.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Encode())
}

// UnmarshalJSON decodes q from the tagged or legacy form.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode query: %w", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		return err
	}
	*q = *decoded
	return nil
}
