package query

import (
	"slices"
	"strconv"
	"strings"

	"github.com/imyousuf/entityquery/internal/graph"
)

// Variant discriminants used at the serialization boundary.
const (
	TypeLabel        = "label"
	TypeRelationship = "relationship"
	TypeFilter       = "filter"
	TypeWalk         = "walk"
)

// Filter is a predicate over entities. It is a closed union of
// *LabelFilter and *RelationshipFilter.
type Filter interface {
	filterType() string
}

// LabelFilter matches an entity iff its label is one of Labels.
type LabelFilter struct {
	Labels []string
}

// NewLabelFilter builds a LabelFilter over the given labels.
func NewLabelFilter(labels ...string) *LabelFilter {
	return &LabelFilter{Labels: canonicalSet(labels, nil)}
}

func (*LabelFilter) filterType() string { return TypeLabel }

// Matches reports whether label is accepted by the filter.
func (f *LabelFilter) Matches(label string) bool {
	return slices.Contains(f.Labels, label)
}

// RelationshipFilter matches an entity iff it lies in the transitive closure
// reachable from Entities over relationships tagged with one of Tags (any tag
// when Tags is empty) in the requested direction. With SelfOK the resolved
// seed entities are part of the closure as well.
//
// A RelationshipFilter is a plain value; it carries no cached closure. The
// searcher computes closures against the graph it is searching.
type RelationshipFilter struct {
	Entities []string
	Tags     []string
	Incoming bool
	SelfOK   bool
}

// NewRelationshipFilter builds an incoming RelationshipFilter.
func NewRelationshipFilter(entities []string, tags ...string) *RelationshipFilter {
	return &RelationshipFilter{
		Entities: canonicalSet(entities, nil),
		Tags:     canonicalSet(tags, graph.NormalizeTag),
		Incoming: true,
	}
}

func (*RelationshipFilter) filterType() string { return TypeRelationship }

// TagList returns the tags to traverse, or the wildcard when none are set.
func (f *RelationshipFilter) TagList() []string {
	return tagsOrAny(f.Tags)
}

// Fingerprint is a canonical string identifying the closure this filter
// computes. Two filters with equal fingerprints compute equal closures on
// the same graph.
func (f *RelationshipFilter) Fingerprint() string {
	var b strings.Builder
	b.WriteString("rel\x1e")
	b.WriteString(strings.Join(canonicalSet(f.Entities, nil), "\x1f"))
	b.WriteString("\x1e")
	b.WriteString(strings.Join(f.TagList(), "\x1f"))
	b.WriteString("\x1e")
	b.WriteString(strconv.FormatBool(f.Incoming))
	b.WriteString("\x1e")
	b.WriteString(strconv.FormatBool(f.SelfOK))
	return b.String()
}

// canonicalSet returns the sorted, de-duplicated values after applying fn.
// Empty input yields nil.
func canonicalSet(values []string, fn func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if fn != nil {
			v = fn(v)
		}
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func tagsOrAny(tags []string) []string {
	tags = canonicalSet(tags, graph.NormalizeTag)
	if len(tags) == 0 || slices.Contains(tags, graph.AnyTag) {
		return []string{graph.AnyTag}
	}
	return tags
}
