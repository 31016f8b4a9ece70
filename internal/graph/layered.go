package graph

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// PropGraphSource is the entity property set on reads from a LayeredStore
// to record which layer served the entity ("main" or "local").
const PropGraphSource = "graph_source"

// LayeredStore implements Store with two layers: a read-only main store
// (typically a persisted graph) and a read-write local store for scratch data.
// Reads merge results from both stores; writes go to the local store only.
type LayeredStore struct {
	main  Store
	local Store
}

// NewLayeredStore creates a LayeredStore backed by the given main and local stores.
func NewLayeredStore(main, local Store) *LayeredStore {
	return &LayeredStore{main: main, local: local}
}

// Version combines the versions of both layers. A layer that is not
// Versioned contributes nothing.
func (ls *LayeredStore) Version() uint64 {
	var v uint64
	if mv, ok := ls.main.(Versioned); ok {
		v += mv.Version()
	}
	if lv, ok := ls.local.(Versioned); ok {
		v += lv.Version()
	}
	return v
}

func (ls *LayeredStore) Resolve(ctx context.Context, value string) (EID, bool, error) {
	id, ok, err := ls.local.Resolve(ctx, value)
	if err != nil {
		return "", false, fmt.Errorf("resolve in local store: %w", err)
	}
	if ok {
		return id, true, nil
	}
	id, ok, err = ls.main.Resolve(ctx, value)
	if err != nil {
		return "", false, fmt.Errorf("resolve in main store: %w", err)
	}
	return id, ok, nil
}

func (ls *LayeredStore) Entity(ctx context.Context, id EID) (*Entity, error) {
	// Try local first; if found, local overrides main.
	e, err := ls.local.Entity(ctx, id)
	if err == nil {
		tagEntitySource(e, "local")
		return e, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get entity from local: %w", err)
	}
	e, err = ls.main.Entity(ctx, id)
	if err == nil {
		tagEntitySource(e, "main")
	}
	return e, err
}

func (ls *LayeredStore) IDs(ctx context.Context) iter.Seq2[EID, error] {
	return func(yield func(EID, error) bool) {
		seen := make(map[EID]struct{})
		for id, err := range ls.local.IDs(ctx) {
			if err != nil {
				yield("", fmt.Errorf("iterate local store: %w", err))
				return
			}
			seen[id] = struct{}{}
			if !yield(id, nil) {
				return
			}
		}
		for id, err := range ls.main.IDs(ctx) {
			if err != nil {
				yield("", fmt.Errorf("iterate main store: %w", err))
				return
			}
			if _, ok := seen[id]; ok {
				continue
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (ls *LayeredStore) Relationships(ctx context.Context, ids []EID, tag string, direction Direction) ([]Neighbor, error) {
	localNeighbors, err := ls.local.Relationships(ctx, ids, tag, direction)
	if err != nil {
		return nil, fmt.Errorf("get relationships from local: %w", err)
	}
	mainNeighbors, err := ls.main.Relationships(ctx, ids, tag, direction)
	if err != nil {
		return nil, fmt.Errorf("get relationships from main: %w", err)
	}

	seen := make(map[Neighbor]struct{}, len(localNeighbors))
	result := make([]Neighbor, 0, len(localNeighbors)+len(mainNeighbors))
	for _, n := range localNeighbors {
		seen[n] = struct{}{}
		result = append(result, n)
	}
	for _, n := range mainNeighbors {
		if _, ok := seen[n]; !ok {
			result = append(result, n)
		}
	}
	return result, nil
}

func (ls *LayeredStore) AddEntity(ctx context.Context, entity *Entity) error {
	return ls.local.AddEntity(ctx, entity)
}

func (ls *LayeredStore) DeleteEntity(ctx context.Context, id EID) error {
	return ls.local.DeleteEntity(ctx, id)
}

func (ls *LayeredStore) AddRelationship(ctx context.Context, rel *Relationship) error {
	return ls.local.AddRelationship(ctx, rel)
}

func (ls *LayeredStore) DeleteRelationship(ctx context.Context, rel *Relationship) error {
	return ls.local.DeleteRelationship(ctx, rel)
}

func (ls *LayeredStore) Stats(ctx context.Context) (*GraphStats, error) {
	mainStats, err := ls.main.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("main stats: %w", err)
	}
	localStats, err := ls.local.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("local stats: %w", err)
	}

	merged := NewGraphStats()
	merged.EntityCount = mainStats.EntityCount + localStats.EntityCount
	merged.RelationshipCount = mainStats.RelationshipCount + localStats.RelationshipCount
	for _, s := range []*GraphStats{mainStats, localStats} {
		for k, v := range s.EntitiesByLabel {
			merged.EntitiesByLabel[k] += v
		}
		for k, v := range s.RelationshipsByTag {
			merged.RelationshipsByTag[k] += v
		}
	}
	return merged, nil
}

func (ls *LayeredStore) Close() error {
	mainErr := ls.main.Close()
	localErr := ls.local.Close()
	if mainErr != nil {
		return mainErr
	}
	return localErr
}

// tagEntitySource sets the PropGraphSource property on an entity to indicate
// whether it came from the main (persisted) or local (scratch) store.
func tagEntitySource(e *Entity, source string) {
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	e.Properties[PropGraphSource] = source
}
