package graph

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned when an entity lookup by id misses.
var ErrNotFound = errors.New("entity not found")

// Direction specifies the traversal direction for relationship queries.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// DirectionOf maps the query-level incoming flag onto a Direction.
func DirectionOf(incoming bool) Direction {
	if incoming {
		return Incoming
	}
	return Outgoing
}

// Graph is the read-only view the query engine consumes.
type Graph interface {
	// Resolve maps a value to a canonical entity id. An existing id resolves
	// to itself; otherwise the entity whose Value equals value is used.
	// A miss returns ok == false and no error.
	Resolve(ctx context.Context, value string) (id EID, ok bool, err error)

	// Entity retrieves a single entity by id, or ErrNotFound.
	Entity(ctx context.Context, id EID) (*Entity, error)

	// IDs lazily iterates all entity ids.
	IDs(ctx context.Context) iter.Seq2[EID, error]

	// Relationships returns the neighbors of ids reachable over relationships
	// tagged tag (or any tag when tag is AnyTag) in the given direction.
	// Outgoing yields targets, Incoming yields sources.
	Relationships(ctx context.Context, ids []EID, tag string, direction Direction) ([]Neighbor, error)
}

// Store is a Graph that can also be mutated.
type Store interface {
	Graph

	// AddEntity inserts or replaces an entity.
	AddEntity(ctx context.Context, entity *Entity) error

	// DeleteEntity removes an entity by id along with its relationships.
	DeleteEntity(ctx context.Context, id EID) error

	// AddRelationship inserts a relationship. Adding an existing one is a no-op.
	AddRelationship(ctx context.Context, rel *Relationship) error

	// DeleteRelationship removes the relationship matching source, tag and target.
	DeleteRelationship(ctx context.Context, rel *Relationship) error

	// Stats returns aggregate statistics about the graph.
	Stats(ctx context.Context) (*GraphStats, error)

	// Close releases resources held by the store.
	Close() error
}

// Versioned is implemented by graphs that can report a monotonic version
// which changes whenever the graph is mutated.
type Versioned interface {
	Version() uint64
}
