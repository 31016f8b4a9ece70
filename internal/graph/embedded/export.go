package embedded

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/terms"
)

// Record kinds of the JSON-lines format.
const (
	KindEntity       = "entity"
	KindRelationship = "relationship"
	KindTerm         = "term"
)

// exportRecord is the JSON-lines format for export/import.
type exportRecord struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// entityRecord is an entity plus optional surface terms to index it under.
type entityRecord struct {
	graph.Entity
	Terms []string `json:"terms,omitempty"`
}

// ReadJSONL reads JSON-lines records from r into dst and idx. Entity records
// may carry a "terms" list, which is normalized and indexed under the
// entity. Term records are loaded as already normalized. idx may be nil, in
// which case terms are ignored.
func ReadJSONL(ctx context.Context, r io.Reader, dst graph.Store, idx *terms.Terms) (*graph.ImportStats, error) {
	stats := &graph.ImportStats{}
	scanner := bufio.NewScanner(r)
	// Increase buffer for potentially large lines.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec exportRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return stats, fmt.Errorf("line %d: unmarshal record: %w", line, err)
		}

		switch rec.Kind {
		case KindEntity:
			var e entityRecord
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				return stats, fmt.Errorf("line %d: unmarshal entity: %w", line, err)
			}
			if err := dst.AddEntity(ctx, &e.Entity); err != nil {
				return stats, fmt.Errorf("line %d: import entity %s: %w", line, e.ID, err)
			}
			stats.Entities++
			if idx != nil && len(e.Terms) > 0 {
				stats.Terms += len(idx.Add(e.ID, e.Label, e.Terms...))
			}
		case KindRelationship:
			var rel graph.Relationship
			if err := json.Unmarshal(rec.Data, &rel); err != nil {
				return stats, fmt.Errorf("line %d: unmarshal relationship: %w", line, err)
			}
			if err := dst.AddRelationship(ctx, &rel); err != nil {
				return stats, fmt.Errorf("line %d: import relationship: %w", line, err)
			}
			stats.Relationships++
		case KindTerm:
			var e terms.Entry
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				return stats, fmt.Errorf("line %d: unmarshal term: %w", line, err)
			}
			if idx != nil {
				idx.Load(e)
				stats.Terms++
			}
		default:
			return stats, fmt.Errorf("line %d: unknown record kind: %q", line, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read records: %w", err)
	}
	return stats, nil
}

// Export writes all entities, relationships and terms to w in JSON-lines format.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	return s.db.View(func(txn *badger.Txn) error {
		if err := exportPrefix[graph.Entity](ctx, txn, enc, prefixEntity, KindEntity); err != nil {
			return err
		}
		if err := exportPrefix[graph.Relationship](ctx, txn, enc, prefixRelationship, KindRelationship); err != nil {
			return err
		}
		return exportPrefix[terms.Entry](ctx, txn, enc, prefixTerm, KindTerm)
	})
}

func exportPrefix[T any](ctx context.Context, txn *badger.Txn, enc *json.Encoder, prefix, kind string) error {
	var werr error
	err := scanValues(txn, prefix, func(v *T) bool {
		var data []byte
		data, werr = json.Marshal(v)
		if werr == nil {
			werr = enc.Encode(exportRecord{Kind: kind, Data: data})
		}
		if werr == nil {
			werr = ctx.Err()
		}
		return werr == nil
	})
	if err == nil {
		err = werr
	}
	if err != nil {
		return fmt.Errorf("export %s records: %w", kind, err)
	}
	return nil
}

// Import reads JSON-lines from r, clears the store, and inserts all records.
// Terms carried by the input replace the persisted term index.
func (s *Store) Import(ctx context.Context, r io.Reader) (*graph.ImportStats, error) {
	// Clear all existing data.
	if err := s.Clear(); err != nil {
		return nil, err
	}
	idx := terms.New()
	stats, err := ReadJSONL(ctx, r, s, idx)
	if err != nil {
		return stats, err
	}
	if err := s.SaveTerms(ctx, idx); err != nil {
		return stats, err
	}
	return stats, nil
}
