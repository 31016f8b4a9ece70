package graph

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

type adjacency struct {
	tag   string
	other EID
}

// MemStore is an in-memory Store. Iteration order follows insertion order,
// which keeps search output deterministic for a given load sequence.
type MemStore struct {
	mu       sync.RWMutex
	entities map[EID]*Entity
	order    []EID
	values   map[string]EID
	rels     map[string]*Relationship
	relOrder []string
	out      map[EID][]adjacency
	in       map[EID][]adjacency
	version  atomic.Uint64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entities: make(map[EID]*Entity),
		values:   make(map[string]EID),
		rels:     make(map[string]*Relationship),
		out:      make(map[EID][]adjacency),
		in:       make(map[EID][]adjacency),
	}
}

// Version returns the mutation counter of the store.
func (m *MemStore) Version() uint64 { return m.version.Load() }

func (m *MemStore) Resolve(_ context.Context, value string) (EID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.entities[EID(value)]; ok {
		return EID(value), true, nil
	}
	id, ok := m.values[value]
	return id, ok, nil
}

func (m *MemStore) Entity(_ context.Context, id EID) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("get entity %s: %w", id, ErrNotFound)
	}
	return cloneEntity(e), nil
}

func (m *MemStore) IDs(_ context.Context) iter.Seq2[EID, error] {
	return func(yield func(EID, error) bool) {
		m.mu.RLock()
		ids := slices.Clone(m.order)
		m.mu.RUnlock()
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (m *MemStore) Relationships(_ context.Context, ids []EID, tag string, direction Direction) ([]Neighbor, error) {
	if tag != AnyTag {
		tag = NormalizeTag(tag)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Neighbor
	collect := func(adj []adjacency) {
		for _, a := range adj {
			if tag == AnyTag || a.tag == tag {
				result = append(result, Neighbor{ID: a.other, Tag: a.tag})
			}
		}
	}
	for _, id := range ids {
		if direction == Outgoing || direction == Both {
			collect(m.out[id])
		}
		if direction == Incoming || direction == Both {
			collect(m.in[id])
		}
	}
	return result, nil
}

func (m *MemStore) AddEntity(_ context.Context, entity *Entity) error {
	e := cloneEntity(entity)
	if e.ID == "" {
		e.ID = NewEntityID(e.Label, e.Value)
		entity.ID = e.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entities[e.ID]; ok {
		if m.values[old.Value] == old.ID {
			delete(m.values, old.Value)
		}
	} else {
		m.order = append(m.order, e.ID)
	}
	m.entities[e.ID] = e
	if e.Value != "" {
		m.values[e.Value] = e.ID
	}
	m.version.Add(1)
	return nil
}

func (m *MemStore) DeleteEntity(_ context.Context, id EID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("delete entity %s: %w", id, ErrNotFound)
	}
	for _, a := range slices.Clone(m.out[id]) {
		m.unlinkLocked(id, a.tag, a.other)
	}
	for _, a := range slices.Clone(m.in[id]) {
		m.unlinkLocked(a.other, a.tag, id)
	}
	if m.values[e.Value] == id {
		delete(m.values, e.Value)
	}
	delete(m.entities, id)
	m.order = slices.DeleteFunc(m.order, func(x EID) bool { return x == id })
	m.version.Add(1)
	return nil
}

func (m *MemStore) AddRelationship(_ context.Context, rel *Relationship) error {
	r := *rel
	r.Tag = NormalizeTag(r.Tag)
	if r.Tag == "" || r.Tag == AnyTag {
		return fmt.Errorf("add relationship %s -> %s: invalid tag %q", r.Source, r.Target, rel.Tag)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := r.ID()
	if _, ok := m.rels[id]; ok {
		return nil
	}
	m.rels[id] = &r
	m.relOrder = append(m.relOrder, id)
	m.out[r.Source] = append(m.out[r.Source], adjacency{tag: r.Tag, other: r.Target})
	m.in[r.Target] = append(m.in[r.Target], adjacency{tag: r.Tag, other: r.Source})
	m.version.Add(1)
	return nil
}

func (m *MemStore) DeleteRelationship(_ context.Context, rel *Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.unlinkLocked(rel.Source, NormalizeTag(rel.Tag), rel.Target) {
		return fmt.Errorf("delete relationship %s -[%s]-> %s: not found", rel.Source, rel.Tag, rel.Target)
	}
	m.version.Add(1)
	return nil
}

// unlinkLocked removes one relationship from all indexes. The caller holds mu.
func (m *MemStore) unlinkLocked(source EID, tag string, target EID) bool {
	id := NewRelationshipID(source, tag, target)
	if _, ok := m.rels[id]; !ok {
		return false
	}
	delete(m.rels, id)
	m.relOrder = slices.DeleteFunc(m.relOrder, func(x string) bool { return x == id })
	m.out[source] = slices.DeleteFunc(m.out[source], func(a adjacency) bool {
		return a.tag == tag && a.other == target
	})
	m.in[target] = slices.DeleteFunc(m.in[target], func(a adjacency) bool {
		return a.tag == tag && a.other == source
	})
	return true
}

// Relations returns every stored relationship in insertion order.
func (m *MemStore) Relations() []*Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Relationship, 0, len(m.relOrder))
	for _, id := range m.relOrder {
		c := *m.rels[id]
		c.Properties = maps.Clone(c.Properties)
		result = append(result, &c)
	}
	return result
}

func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := NewGraphStats()
	for _, e := range m.entities {
		stats.EntityCount++
		stats.EntitiesByLabel[e.Label]++
	}
	for _, r := range m.rels {
		stats.RelationshipCount++
		stats.RelationshipsByTag[r.Tag]++
	}
	return stats, nil
}

func (m *MemStore) Close() error { return nil }

func cloneEntity(e *Entity) *Entity {
	c := *e
	c.Properties = maps.Clone(e.Properties)
	return &c
}
