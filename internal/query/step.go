package query

import (
	"fmt"
	"strings"
)

// Step is one stage of a query. It is a closed union of *FilterStep and *WalkStep.
type Step interface {
	stepType() string
}

// Join combines the filters of a FilterStep.
type Join string

const (
	JoinAnd Join = "AND"
	JoinOr  Join = "OR"
)

// ParseJoin parses a join name case-insensitively. The empty string is AND.
func ParseJoin(s string) (Join, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(JoinAnd):
		return JoinAnd, nil
	case string(JoinOr):
		return JoinOr, nil
	default:
		return "", fmt.Errorf("%w: join %q", ErrInvalidValue, s)
	}
}

// FilterStep keeps the results whose end entity passes its filters,
// combined with Join (short-circuiting), negated when Exclude is set.
type FilterStep struct {
	Filters []Filter
	Join    Join
	Exclude bool
}

// NewFilterStep builds an AND-joined FilterStep.
func NewFilterStep(filters ...Filter) *FilterStep {
	return &FilterStep{Filters: filters, Join: JoinAnd}
}

func (*FilterStep) stepType() string { return TypeFilter }

// IsOr reports whether the filters are OR-joined.
func (s *FilterStep) IsOr() bool { return s.Join == JoinOr }

// WalkStep expands each result along relationships tagged with one of Tags,
// up to MaxHops hops (unbounded when nil). With Passthru the incoming result
// is re-emitted before its expansions.
type WalkStep struct {
	Tags     []string
	Incoming bool
	MaxHops  *int
	Passthru bool
}

// NewWalkStep builds an incoming, unbounded WalkStep. No tags means any tag.
func NewWalkStep(tags ...string) *WalkStep {
	return &WalkStep{Tags: tagsOrAny(tags), Incoming: true}
}

func (*WalkStep) stepType() string { return TypeWalk }

// TagList returns the tags to traverse, or the wildcard when none are set.
func (s *WalkStep) TagList() []string {
	return tagsOrAny(s.Tags)
}

// Int returns a pointer to n, for optional fields such as MaxHops and Limit.
func Int(n int) *int { return &n }
