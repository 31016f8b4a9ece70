package graph

import (
	"context"
	"io"
)

// ImportStats counts the records an import read.
type ImportStats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Terms         int `json:"terms"`
}

// Exporter writes a graph and its term index as JSON-lines records.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// Importer replaces a graph and its term index with the JSON-lines records
// read from r.
type Importer interface {
	Import(ctx context.Context, r io.Reader) (*ImportStats, error)
}
