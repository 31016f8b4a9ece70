package embedded

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/imyousuf/entityquery/internal/graph"
	"github.com/imyousuf/entityquery/internal/terms"
)

func collect(seq func(func(graph.EID) bool)) []graph.EID {
	var out []graph.EID
	for id := range seq {
		out = append(out, id)
	}
	return out
}

func TestTermsSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idx := terms.New()
	idx.Add("alice", "PERSON", "Alice Smith", "Ally")
	idx.Add("bob", "PERSON", "Bob Jones")
	if err := s.SaveTerms(ctx, idx); err != nil {
		t.Fatalf("SaveTerms: %v", err)
	}

	loaded, err := s.LoadTerms(ctx)
	if err != nil {
		t.Fatalf("LoadTerms: %v", err)
	}
	if loaded.Len() != 3 {
		t.Errorf("Len = %d, want 3", loaded.Len())
	}
	if got := collect(loaded.Get("ALICE smith")); !slices.Equal(got, []graph.EID{"alice"}) {
		t.Errorf("Get = %v, want [alice]", got)
	}

	// Saving again replaces rather than merges.
	if err := s.SaveTerms(ctx, terms.New()); err != nil {
		t.Fatalf("SaveTerms: %v", err)
	}
	loaded, err = s.LoadTerms(ctx)
	if err != nil {
		t.Fatalf("LoadTerms: %v", err)
	}
	if loaded.Len() != 0 {
		t.Errorf("Len after empty save = %d, want 0", loaded.Len())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()
	seed(t, src)
	idx := terms.New()
	idx.Add("acme", "ORG", "Acme Corp", "ACME")
	if err := src.SaveTerms(ctx, idx); err != nil {
		t.Fatalf("SaveTerms: %v", err)
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	lines := strings.Count(buf.String(), "\n")
	if lines != 3+3+2 {
		t.Errorf("exported %d lines, want 8", lines)
	}

	dst := newTestStore(t)
	if err := dst.AddEntity(ctx, &graph.Entity{ID: "stale", Label: "X"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	stats, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Entities != 3 || stats.Relationships != 3 || stats.Terms != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := dst.Entity(ctx, "stale"); err == nil {
		t.Error("import did not clear existing data")
	}

	e, err := dst.Entity(ctx, "alice")
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if e.Value != "Alice Smith" || e.Properties["age"] != "31" {
		t.Errorf("entity = %+v", e)
	}
	out, err := dst.Relationships(ctx, []graph.EID{"alice"}, "KNOWS", graph.Outgoing)
	if err != nil || len(out) != 1 {
		t.Errorf("KNOWS = %v, %v", out, err)
	}
	loaded, err := dst.LoadTerms(ctx)
	if err != nil {
		t.Fatalf("LoadTerms: %v", err)
	}
	if got := collect(loaded.Values("ac")); !slices.Equal(got, []graph.EID{"acme"}) {
		t.Errorf("Values(ac) = %v", got)
	}
}

func TestReadJSONLEntityTerms(t *testing.T) {
	ctx := context.Background()
	input := strings.Join([]string{
		`{"kind":"entity","data":{"id":"paris","label":"CITY","value":"Paris","terms":["Paris","City of Light"]}}`,
		``,
		`{"kind":"entity","data":{"id":"fr","label":"COUNTRY","value":"France"}}`,
		`{"kind":"relationship","data":{"source":"paris","tag":"located_in","target":"fr"}}`,
	}, "\n")

	mem := graph.NewMemStore()
	idx := terms.New()
	stats, err := ReadJSONL(ctx, strings.NewReader(input), mem, idx)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if stats.Entities != 2 || stats.Relationships != 1 || stats.Terms != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if got := collect(idx.Get("city of light")); !slices.Equal(got, []graph.EID{"paris"}) {
		t.Errorf("Get = %v", got)
	}
	out, err := mem.Relationships(ctx, []graph.EID{"paris"}, "LOCATED_IN", graph.Outgoing)
	if err != nil || len(out) != 1 || out[0].ID != "fr" {
		t.Errorf("LOCATED_IN = %v, %v", out, err)
	}
}

func TestReadJSONLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", `{"kind":`, "line 1"},
		{"unknown kind", `{"kind":"widget","data":{}}`, `unknown record kind: "widget"`},
		{"bad relationship", "\n" + `{"kind":"relationship","data":{"source":"a","tag":"*","target":"b"}}`, "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSONL(context.Background(), strings.NewReader(tt.input), graph.NewMemStore(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSaveLoadMemStore(t *testing.T) {
	ctx := context.Background()
	mem := graph.NewMemStore()
	seed(t, mem)
	idx := terms.New()
	idx.Add("bob", "PERSON", "Bobby")

	s := newTestStore(t)
	if err := s.Save(ctx, mem, idx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntityCount != 3 || stats.RelationshipCount != 3 {
		t.Errorf("stats = %+v", stats)
	}

	back, loadedTerms, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, id := range []graph.EID{"alice", "bob", "acme"} {
		want, _ := mem.Relationships(ctx, []graph.EID{id}, graph.AnyTag, graph.Both)
		got, _ := back.Relationships(ctx, []graph.EID{id}, graph.AnyTag, graph.Both)
		slices.SortFunc(want, compareNeighbors)
		slices.SortFunc(got, compareNeighbors)
		if !slices.Equal(got, want) {
			t.Errorf("%s: got %v, want %v", id, got, want)
		}
	}
	if got := collect(loadedTerms.Get("bobby")); !slices.Equal(got, []graph.EID{"bob"}) {
		t.Errorf("terms Get = %v", got)
	}
	var since string
	for _, rel := range back.Relations() {
		if rel.Tag == "KNOWS" {
			since = rel.Properties["since"]
		}
	}
	if since != "2019" {
		t.Errorf("KNOWS properties lost on save, since = %q", since)
	}
}

func TestBackupRotation(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var made []string
	for i := range 4 {
		p, err := s.backupAt(dir, 2, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
		made = append(made, p)
	}

	// A foreign file is never rotated away.
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Backups(dir)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	want := []string{made[3], made[2]}
	if !slices.Equal(got, want) {
		t.Errorf("Backups = %v, want %v", got, want)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("foreign file removed: %v", err)
	}
}

func TestBackupsMissingDir(t *testing.T) {
	got, err := Backups(filepath.Join(t.TempDir(), "nope"))
	if err != nil || got != nil {
		t.Errorf("Backups = %v, %v", got, err)
	}
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	path, err := s.Backup(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if err := s.DeleteEntity(ctx, "alice"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if err := s.AddEntity(ctx, &graph.Entity{ID: "zed", Label: "PERSON", Value: "Zed"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	v := s.Version()
	if err := s.Restore(path); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if s.Version() <= v {
		t.Error("restore did not advance the version")
	}
	if _, err := s.Entity(ctx, "alice"); err != nil {
		t.Errorf("alice missing after restore: %v", err)
	}
	if _, err := s.Entity(ctx, "zed"); err == nil {
		t.Error("zed survived restore")
	}
	out, _ := s.Relationships(ctx, []graph.EID{"alice"}, graph.AnyTag, graph.Outgoing)
	if len(out) != 2 {
		t.Errorf("alice outgoing = %v", out)
	}
}

func TestImportThroughInterface(t *testing.T) {
	ctx := context.Background()
	var imp graph.Importer = newTestStore(t)
	input := `{"kind":"entity","data":{"id":"x","label":"THING","value":"X"}}`
	stats, err := imp.Import(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Entities != 1 {
		t.Errorf("stats = %+v", stats)
	}
	var exp graph.Exporter = imp.(*Store)
	var buf bytes.Buffer
	if err := exp.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), `"id":"x"`) {
		t.Errorf("export = %s", buf.String())
	}
}

func TestRestoreRejectsTruncatedBackup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	path, err := s.Backup(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	v := s.Version()
	if err := s.Restore(path); err == nil {
		t.Fatal("expected error restoring a truncated backup")
	}
	if s.Version() != v {
		t.Error("failed restore modified the store")
	}
	if _, err := s.Entity(ctx, "alice"); err != nil {
		t.Errorf("alice missing after failed restore: %v", err)
	}
}
