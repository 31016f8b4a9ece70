package embedded

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/entityquery/internal/terms"
)

// SaveTerms replaces the persisted term records with the contents of t.
func (s *Store) SaveTerms(ctx context.Context, t *terms.Terms) error {
	if err := s.deleteKeysByPrefix([]byte(prefixTerm)); err != nil {
		return fmt.Errorf("clear terms: %w", err)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for e := range t.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal term %q: %w", e.Term, err)
		}
		if err := wb.Set(termKey(e.Term), data); err != nil {
			return fmt.Errorf("write term %q: %w", e.Term, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush terms: %w", err)
	}
	return nil
}

// LoadTerms builds a term index from the persisted records.
func (s *Store) LoadTerms(ctx context.Context, opts ...terms.Option) (*terms.Terms, error) {
	t := terms.New(opts...)
	var entries []terms.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		return scanValues(txn, prefixTerm, func(e *terms.Entry) bool {
			entries = append(entries, *e)
			return ctx.Err() == nil
		})
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}
	t.Load(entries...)
	return t, nil
}
