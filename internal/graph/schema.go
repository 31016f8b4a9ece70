package graph

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// EID is an opaque entity identifier.
type EID string

// AnyTag is the wildcard tag marker matching every relationship tag.
const AnyTag = "*"

// Entity is a typed node in the graph.
type Entity struct {
	ID         EID               `json:"id"`
	Label      string            `json:"label"`
	Value      string            `json:"value"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Relationship is a directed, tagged edge between two entities.
type Relationship struct {
	Source     EID               `json:"source"`
	Tag        string            `json:"tag"`
	Target     EID               `json:"target"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ID returns the deterministic identifier of the relationship.
func (r *Relationship) ID() string {
	return NewRelationshipID(r.Source, r.Tag, r.Target)
}

// Neighbor is one entity reached over a relationship, together with the
// tag of the relationship that reached it.
type Neighbor struct {
	ID  EID
	Tag string
}

// GraphStats holds aggregate statistics about the graph.
type GraphStats struct {
	EntityCount        int64            `json:"entity_count"`
	RelationshipCount  int64            `json:"relationship_count"`
	EntitiesByLabel    map[string]int64 `json:"entities_by_label"`
	RelationshipsByTag map[string]int64 `json:"relationships_by_tag"`
}

// NormalizeTag returns the canonical (upper-cased, trimmed) form of a tag.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// NewEntityID generates a deterministic entity ID from the label and value.
// The ID is a hex-encoded SHA-256 hash prefix to keep keys compact and collision-resistant.
func NewEntityID(label, value string) EID {
	raw := fmt.Sprintf("%s:%s", label, value)
	h := sha256.Sum256([]byte(raw))
	return EID(fmt.Sprintf("%x", h[:12]))
}

// NewRelationshipID generates a deterministic relationship ID.
func NewRelationshipID(source EID, tag string, target EID) string {
	raw := fmt.Sprintf("%s\x00%s\x00%s", source, NormalizeTag(tag), target)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:12])
}

// NewGraphStats returns an empty GraphStats with initialized maps.
func NewGraphStats() *GraphStats {
	return &GraphStats{
		EntitiesByLabel:    make(map[string]int64),
		RelationshipsByTag: make(map[string]int64),
	}
}
