package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/entityquery/internal/graph"
)

// Key prefixes for the BadgerDB key scheme. Adjacency keys separate their
// parts with a NUL byte so ids and tags may contain any printable character.
const (
	prefixEntity         = "n:"
	prefixValue          = "v:"
	prefixRelationship   = "e:"
	prefixTerm           = "t:"
	prefixIdxLabel       = "idx:label:"
	prefixIdxEdge        = "idx:edge:"
	prefixIdxReverseEdge = "idx:redge:"

	sep = "\x00"
)

// Store implements graph.Store and graph.Versioned on BadgerDB.
type Store struct {
	db      *badger.DB
	version atomic.Uint64
}

var (
	_ graph.Store     = (*Store)(nil)
	_ graph.Versioned = (*Store)(nil)
	_ graph.Exporter  = (*Store)(nil)
	_ graph.Importer  = (*Store)(nil)
)

// NewStore opens (or creates) a BadgerDB-backed graph store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // suppress badger logs
	return open(opts)
}

// NewInMemoryStore creates a store that keeps everything in memory.
func NewInMemoryStore() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Version returns the in-process mutation counter.
func (s *Store) Version() uint64 { return s.version.Load() }

func (s *Store) bump() { s.version.Add(1) }

// --- key functions ---

func entityKey(id graph.EID) []byte { return []byte(prefixEntity + string(id)) }

func valueKey(value string) []byte { return []byte(prefixValue + value) }

func relationshipKey(id string) []byte { return []byte(prefixRelationship + id) }

func termKey(term string) []byte { return []byte(prefixTerm + term) }

func indexLabelKey(label string, id graph.EID) []byte {
	return []byte(prefixIdxLabel + label + sep + string(id))
}

// indexEdgeKey returns the forward adjacency key source\x00TAG\x00target.
func indexEdgeKey(source graph.EID, tag string, target graph.EID) []byte {
	return []byte(prefixIdxEdge + string(source) + sep + tag + sep + string(target))
}

// indexReverseEdgeKey returns the reverse adjacency key target\x00TAG\x00source.
func indexReverseEdgeKey(target graph.EID, tag string, source graph.EID) []byte {
	return []byte(prefixIdxReverseEdge + string(target) + sep + tag + sep + string(source))
}

// adjacencyPrefix narrows an adjacency scan to one node and, unless tag is
// the wildcard, to one tag.
func adjacencyPrefix(prefix string, id graph.EID, tag string) []byte {
	p := prefix + string(id) + sep
	if tag != graph.AnyTag {
		p += tag + sep
	}
	return []byte(p)
}

// --- reads ---

func (s *Store) Resolve(_ context.Context, value string) (graph.EID, bool, error) {
	var id graph.EID
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(entityKey(graph.EID(value))); err == nil {
			id, ok = graph.EID(value), true
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		item, err := txn.Get(valueKey(value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id, ok = graph.EID(val), true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("resolve %q: %w", value, err)
	}
	return id, ok, nil
}

func (s *Store) Entity(_ context.Context, id graph.EID) (*graph.Entity, error) {
	var e *graph.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getEntityInTxn(txn, id)
		return err
	})
	return e, err
}

func getEntityInTxn(txn *badger.Txn, id graph.EID) (*graph.Entity, error) {
	item, err := txn.Get(entityKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("get entity %s: %w", id, graph.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	var e graph.Entity
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal entity %s: %w", id, err)
	}
	return &e, nil
}

// IDs iterates entity ids in key order inside a single read transaction.
func (s *Store) IDs(ctx context.Context) iter.Seq2[graph.EID, error] {
	return func(yield func(graph.EID, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefixEntity)
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(opts.Prefix); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				id := graph.EID(bytes.TrimPrefix(it.Item().Key(), opts.Prefix))
				if !yield(id, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", fmt.Errorf("scan entity ids: %w", err))
		}
	}
}

func (s *Store) Relationships(_ context.Context, ids []graph.EID, tag string, direction graph.Direction) ([]graph.Neighbor, error) {
	if tag != graph.AnyTag {
		tag = graph.NormalizeTag(tag)
	}
	var result []graph.Neighbor
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if direction == graph.Outgoing || direction == graph.Both {
				if err := scanAdjacency(txn, prefixIdxEdge, id, tag, &result); err != nil {
					return err
				}
			}
			if direction == graph.Incoming || direction == graph.Both {
				if err := scanAdjacency(txn, prefixIdxReverseEdge, id, tag, &result); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("relationships: %w", err)
	}
	return result, nil
}

// scanAdjacency appends one Neighbor per adjacency key of id.
func scanAdjacency(txn *badger.Txn, prefix string, id graph.EID, tag string, out *[]graph.Neighbor) error {
	keyPrefix := []byte(prefix + string(id) + sep)
	for key := range scanKeys(txn, adjacencyPrefix(prefix, id, tag)) {
		rest := bytes.TrimPrefix(key, keyPrefix)
		t, other, ok := bytes.Cut(rest, []byte(sep))
		if !ok {
			return fmt.Errorf("malformed adjacency key %q", key)
		}
		*out = append(*out, graph.Neighbor{ID: graph.EID(other), Tag: string(t)})
	}
	return nil
}

// scanKeys iterates copies of all keys with the given prefix.
func scanKeys(txn *badger.Txn, prefix []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.Valid(); it.Next() {
			if !yield(it.Item().KeyCopy(nil)) {
				return
			}
		}
	}
}

// scanValues decodes every JSON value under prefix into a fresh T and calls
// fn with it. Undecodable values are skipped. Return false from fn to stop.
func scanValues[T any](txn *badger.Txn, prefix string, fn func(*T) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(opts.Prefix); it.Valid(); it.Next() {
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			continue
		}
		if !fn(&v) {
			break
		}
	}
	return nil
}

// EntitiesWithLabel returns the ids of all entities carrying label, in key order.
func (s *Store) EntitiesWithLabel(_ context.Context, label string) ([]graph.EID, error) {
	prefix := []byte(prefixIdxLabel + label + sep)
	var ids []graph.EID
	err := s.db.View(func(txn *badger.Txn) error {
		for key := range scanKeys(txn, prefix) {
			ids = append(ids, graph.EID(bytes.TrimPrefix(key, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entities with label %q: %w", label, err)
	}
	return ids, nil
}

// --- writes ---

func (s *Store) AddEntity(_ context.Context, entity *graph.Entity) error {
	if entity.ID == "" {
		entity.ID = graph.NewEntityID(entity.Label, entity.Value)
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if old, err := getEntityInTxn(txn, entity.ID); err == nil {
			if err := unindexEntityInTxn(txn, old); err != nil {
				return err
			}
		} else if !errors.Is(err, graph.ErrNotFound) {
			return err
		}
		if err := txn.Set(entityKey(entity.ID), data); err != nil {
			return err
		}
		if entity.Value != "" {
			if err := txn.Set(valueKey(entity.Value), []byte(entity.ID)); err != nil {
				return err
			}
		}
		return txn.Set(indexLabelKey(entity.Label, entity.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("add entity %s: %w", entity.ID, err)
	}
	s.bump()
	return nil
}

// unindexEntityInTxn removes the secondary index entries of e. The value
// index is only removed while it still points at e.
func unindexEntityInTxn(txn *badger.Txn, e *graph.Entity) error {
	if e.Value != "" {
		item, err := txn.Get(valueKey(e.Value))
		switch {
		case err == nil:
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if graph.EID(owner) == e.ID {
				if err := txn.Delete(valueKey(e.Value)); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
	}
	return txn.Delete(indexLabelKey(e.Label, e.ID))
}

func (s *Store) DeleteEntity(_ context.Context, id graph.EID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e, err := getEntityInTxn(txn, id)
		if err != nil {
			return err
		}
		var out, in []graph.Neighbor
		if err := scanAdjacency(txn, prefixIdxEdge, id, graph.AnyTag, &out); err != nil {
			return err
		}
		if err := scanAdjacency(txn, prefixIdxReverseEdge, id, graph.AnyTag, &in); err != nil {
			return err
		}
		for _, n := range out {
			if err := unlinkInTxn(txn, id, n.Tag, n.ID); err != nil {
				return err
			}
		}
		for _, n := range in {
			if err := unlinkInTxn(txn, n.ID, n.Tag, id); err != nil {
				return err
			}
		}
		if err := unindexEntityInTxn(txn, e); err != nil {
			return err
		}
		return txn.Delete(entityKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	s.bump()
	return nil
}

func (s *Store) AddRelationship(_ context.Context, rel *graph.Relationship) error {
	r := *rel
	r.Tag = graph.NormalizeTag(r.Tag)
	if r.Tag == "" || r.Tag == graph.AnyTag {
		return fmt.Errorf("add relationship %s -> %s: invalid tag %q", r.Source, r.Target, rel.Tag)
	}
	data, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal relationship: %w", err)
	}
	added := false
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(relationshipKey(r.ID())); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		if err := txn.Set(relationshipKey(r.ID()), data); err != nil {
			return err
		}
		if err := txn.Set(indexEdgeKey(r.Source, r.Tag, r.Target), nil); err != nil {
			return err
		}
		return txn.Set(indexReverseEdgeKey(r.Target, r.Tag, r.Source), nil)
	})
	if err != nil {
		return fmt.Errorf("add relationship %s: %w", r.ID(), err)
	}
	if added {
		s.bump()
	}
	return nil
}

func (s *Store) DeleteRelationship(_ context.Context, rel *graph.Relationship) error {
	tag := graph.NormalizeTag(rel.Tag)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(relationshipKey(graph.NewRelationshipID(rel.Source, tag, rel.Target))); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.New("not found")
			}
			return err
		}
		return unlinkInTxn(txn, rel.Source, tag, rel.Target)
	})
	if err != nil {
		return fmt.Errorf("delete relationship %s -[%s]-> %s: %w", rel.Source, rel.Tag, rel.Target, err)
	}
	s.bump()
	return nil
}

func unlinkInTxn(txn *badger.Txn, source graph.EID, tag string, target graph.EID) error {
	if err := txn.Delete(relationshipKey(graph.NewRelationshipID(source, tag, target))); err != nil {
		return err
	}
	if err := txn.Delete(indexEdgeKey(source, tag, target)); err != nil {
		return err
	}
	return txn.Delete(indexReverseEdgeKey(target, tag, source))
}

// Relations iterates every stored relationship in key order.
func (s *Store) Relations(ctx context.Context) iter.Seq2[*graph.Relationship, error] {
	return func(yield func(*graph.Relationship, error) bool) {
		var ctxErr error
		err := s.db.View(func(txn *badger.Txn) error {
			return scanValues(txn, prefixRelationship, func(r *graph.Relationship) bool {
				if ctxErr = ctx.Err(); ctxErr != nil {
					return false
				}
				return yield(r, nil)
			})
		})
		if err == nil {
			err = ctxErr
		}
		if err != nil {
			yield(nil, fmt.Errorf("scan relationships: %w", err))
		}
	}
}

func (s *Store) Stats(_ context.Context) (*graph.GraphStats, error) {
	stats := graph.NewGraphStats()
	err := s.db.View(func(txn *badger.Txn) error {
		// The label index holds exactly one key per entity.
		for key := range scanKeys(txn, []byte(prefixIdxLabel)) {
			label, _, ok := bytes.Cut(bytes.TrimPrefix(key, []byte(prefixIdxLabel)), []byte(sep))
			if !ok {
				return fmt.Errorf("malformed label index key %q", key)
			}
			stats.EntityCount++
			stats.EntitiesByLabel[string(label)]++
		}
		return scanValues(txn, prefixRelationship, func(r *graph.Relationship) bool {
			stats.RelationshipCount++
			stats.RelationshipsByTag[r.Tag]++
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// Clear removes all data from the store.
func (s *Store) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	s.bump()
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// deleteKeysByPrefix removes all keys with the given prefix in batches.
func (s *Store) deleteKeysByPrefix(prefix []byte) error {
	const batchSize = 1000
	for {
		var keys [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			for key := range scanKeys(txn, prefix) {
				keys = append(keys, key)
				if len(keys) >= batchSize {
					break
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
}
