// Package terms implements the term index: an ordered prefix index mapping
// normalized surface strings to the entities they name.
package terms

import (
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/tidwall/btree"

	"github.com/imyousuf/entityquery/internal/graph"
)

// Entry is one indexed term with the entities (in insertion order) and
// labels recorded for it.
type Entry struct {
	Term   string      `json:"term"`
	IDs    []graph.EID `json:"ids"`
	Labels []string    `json:"labels,omitempty"`
}

// Stats summarizes the contents of a Terms index.
type Stats struct {
	Terms    int            `json:"terms"`
	Entities int            `json:"entities"`
	Postings int            `json:"postings"`
	ByLabel  map[string]int `json:"by_label"`
}

// Terms maps normalized strings to entity ids. Keys are kept in a B-tree so
// that prefix expansion is an ordered range scan.
//
// Terms is safe for concurrent use. Entries are never mutated in place; an
// add replaces the entry, so snapshots handed to lazy iterators stay valid.
type Terms struct {
	mu         sync.RWMutex
	tree       btree.Map[string, Entry]
	normalizer Normalizer
}

// Option configures a Terms index.
type Option func(*Terms)

// WithNormalizer overrides the DefaultNormalizer.
func WithNormalizer(n Normalizer) Option {
	return func(t *Terms) { t.normalizer = n }
}

// New creates an empty index.
func New(opts ...Option) *Terms {
	t := &Terms{normalizer: DefaultNormalizer{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Normalize applies the index normalizer to s.
func (t *Terms) Normalize(s string) string {
	return t.normalizer.Normalize(s)
}

// Add indexes id under each of terms and returns the normalized terms.
// Terms that normalize to the empty string are skipped. Adding the same
// id and term twice is a no-op.
func (t *Terms) Add(id graph.EID, label string, terms ...string) []string {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		if key := t.normalizer.Normalize(term); key != "" {
			normalized = append(normalized, key)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range normalized {
		e, _ := t.tree.Get(key)
		changed := false
		if !slices.Contains(e.IDs, id) {
			e.IDs = append(slices.Clip(e.IDs), id)
			changed = true
		}
		if label != "" && !slices.Contains(e.Labels, label) {
			e.Labels = append(slices.Clip(e.Labels), label)
			changed = true
		}
		if changed {
			e.Term = key
			t.tree.Set(key, e)
		}
	}
	return normalized
}

// Get returns the ids indexed under exactly term, in insertion order.
func (t *Terms) Get(term string) iter.Seq[graph.EID] {
	key := t.normalizer.Normalize(term)
	t.mu.RLock()
	e, ok := t.tree.Get(key)
	t.mu.RUnlock()
	return func(yield func(graph.EID) bool) {
		if !ok {
			return
		}
		for _, id := range e.IDs {
			if !yield(id) {
				return
			}
		}
	}
}

// Values returns the ids of every entry whose key starts with prefix,
// deduplicated in first-seen order. Entries are visited in key order and
// only as far as the consumer iterates.
func (t *Terms) Values(prefix string) iter.Seq[graph.EID] {
	key := t.normalizer.Normalize(prefix)
	t.mu.Lock()
	snapshot := t.tree.Copy()
	t.mu.Unlock()

	return func(yield func(graph.EID) bool) {
		seen := make(map[graph.EID]struct{})
		snapshot.Ascend(key, func(term string, e Entry) bool {
			if !strings.HasPrefix(term, key) {
				return false
			}
			for _, id := range e.IDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				if !yield(id) {
					return false
				}
			}
			return true
		})
	}
}

// Len returns the number of distinct indexed terms.
func (t *Terms) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// Stats returns aggregate statistics about the index.
func (t *Terms) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := Stats{ByLabel: make(map[string]int)}
	entities := make(map[graph.EID]struct{})
	t.tree.Scan(func(_ string, e Entry) bool {
		stats.Terms++
		stats.Postings += len(e.IDs)
		for _, id := range e.IDs {
			entities[id] = struct{}{}
		}
		for _, l := range e.Labels {
			stats.ByLabel[l]++
		}
		return true
	})
	stats.Entities = len(entities)
	return stats
}

// Entries iterates every entry in key order over a snapshot of the index.
func (t *Terms) Entries() iter.Seq[Entry] {
	t.mu.Lock()
	snapshot := t.tree.Copy()
	t.mu.Unlock()
	return func(yield func(Entry) bool) {
		snapshot.Scan(func(_ string, e Entry) bool {
			return yield(e)
		})
	}
}

// Load inserts already-normalized entries, merging with any existing ones.
func (t *Terms) Load(entries ...Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, in := range entries {
		if in.Term == "" {
			continue
		}
		e, _ := t.tree.Get(in.Term)
		e.Term = in.Term
		for _, id := range in.IDs {
			if !slices.Contains(e.IDs, id) {
				e.IDs = append(slices.Clip(e.IDs), id)
			}
		}
		for _, l := range in.Labels {
			if !slices.Contains(e.Labels, l) {
				e.Labels = append(slices.Clip(e.Labels), l)
			}
		}
		t.tree.Set(in.Term, e)
	}
}
