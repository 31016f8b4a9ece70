package embedded

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/terms"
)

const (
	backupPrefix     = "entityquery-"
	backupExt        = ".bak"
	backupTimeLayout = "20060102T150405.000000000"
)

// Load copies the persisted graph and term index into memory. Entities are
// added in key order and relationships in the order of their source.
func (s *Store) Load(ctx context.Context, opts ...terms.Option) (*graph.MemStore, *terms.Terms, error) {
	mem := graph.NewMemStore()
	for id, err := range s.IDs(ctx) {
		if err != nil {
			return nil, nil, err
		}
		e, err := s.Entity(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load: %w", err)
		}
		if err := mem.AddEntity(ctx, e); err != nil {
			return nil, nil, fmt.Errorf("load: %w", err)
		}
	}
	for rel, err := range s.Relations(ctx) {
		if err != nil {
			return nil, nil, fmt.Errorf("load: %w", err)
		}
		if err := mem.AddRelationship(ctx, rel); err != nil {
			return nil, nil, fmt.Errorf("load: %w", err)
		}
	}
	t, err := s.LoadTerms(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return mem, t, nil
}

// relationLister is implemented by graphs that can list their relationships
// with properties, such as *graph.MemStore.
type relationLister interface {
	Relations() []*graph.Relationship
}

// Save replaces the store contents with src and t. When src can list its
// relationships they are copied with their properties; otherwise they are
// read as the outgoing neighbors of each entity.
func (s *Store) Save(ctx context.Context, src graph.Graph, t *terms.Terms) error {
	if err := s.Clear(); err != nil {
		return err
	}
	lister, hasRelations := src.(relationLister)
	for id, err := range src.IDs(ctx) {
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		e, err := src.Entity(ctx, id)
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if err := s.AddEntity(ctx, e); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if hasRelations {
			continue
		}
		neighbors, err := src.Relationships(ctx, []graph.EID{id}, graph.AnyTag, graph.Outgoing)
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		for _, n := range neighbors {
			if err := s.AddRelationship(ctx, &graph.Relationship{Source: id, Tag: n.Tag, Target: n.ID}); err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}
	}
	if hasRelations {
		for _, rel := range lister.Relations() {
			if err := s.AddRelationship(ctx, rel); err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}
	}
	if t == nil {
		return nil
	}
	return s.SaveTerms(ctx, t)
}

// Backup writes a full backup into dir and removes all but the keep newest
// backups there. A keep below one keeps everything. It returns the path of
// the new backup.
func (s *Store) Backup(dir string, keep int) (string, error) {
	return s.backupAt(dir, keep, time.Now())
}

func (s *Store) backupAt(dir string, keep int, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(dir, backupPrefix+now.UTC().Format(backupTimeLayout)+backupExt)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := s.db.Backup(f, 0); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if keep > 0 {
		if err := rotateBackups(dir, keep); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Backups lists the backups in dir, newest first.
func Backups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	// Timestamps sort lexically.
	slices.Sort(paths)
	slices.Reverse(paths)
	return paths, nil
}

func rotateBackups(dir string, keep int) error {
	paths, err := Backups(dir)
	if err != nil {
		return err
	}
	if len(paths) <= keep {
		return nil
	}
	for _, p := range paths[keep:] {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("rotate backups: %w", err)
		}
	}
	return nil
}

// Restore replaces the store contents with the backup at path. The backup
// is first loaded into a scratch in-memory database, so a truncated or
// corrupt file fails before the store is touched.
func (s *Store) Restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()
	if err := checkBackup(f); err != nil {
		return fmt.Errorf("load backup %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind backup: %w", err)
	}
	if err := s.Clear(); err != nil {
		return err
	}
	if err := s.db.Load(f, 256); err != nil {
		return fmt.Errorf("load backup: %w", err)
	}
	s.bump()
	return nil
}

func checkBackup(r io.Reader) error {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	scratch, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open scratch db: %w", err)
	}
	defer scratch.Close()
	return scratch.Load(r, 256)
}
