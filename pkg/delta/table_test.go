package delta

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BartekS5/breweries/pkg/models"
)

func breweryFrame(rows ...[]any) *models.Frame {
	return &models.Frame{
		Columns: []models.Column{
			{Name: "id", Type: models.TypeString},
			{Name: "name", Type: models.TypeString},
			{Name: "state", Type: models.TypeString},
		},
		Rows: rows,
	}
}

func TestOverwrite_RoundTrip(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "raw_delta_table"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	frame := &models.Frame{
		Columns: []models.Column{
			{Name: "state", Type: models.TypeString},
			{Name: "id", Type: models.TypeString},
			{Name: "longitude", Type: models.TypeDouble},
			{Name: "employees", Type: models.TypeLong},
			{Name: "open", Type: models.TypeBoolean},
		},
		Rows: [][]any{
			{"CA", "a1", -122.4, int64(12), true},
			{nil, "b2", nil, nil, false},
		},
	}
	version, err := tbl.Overwrite(ctx, frame)
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if version != 0 {
		t.Errorf("first version = %d, want 0", version)
	}

	got, err := tbl.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(frame, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestOverwrite_ReplacesPreviousContents(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "raw"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	if _, err := tbl.Overwrite(ctx, breweryFrame([]any{"a1", "Acme Brew", "CA"}, []any{"b2", "Bolt", "OR"})); err != nil {
		t.Fatalf("first Overwrite: %v", err)
	}
	v, err := tbl.Overwrite(ctx, breweryFrame([]any{"c3", "Cask", "WA"}))
	if err != nil {
		t.Fatalf("second Overwrite: %v", err)
	}
	if v != 1 {
		t.Errorf("second version = %d, want 1", v)
	}

	got, err := tbl.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := [][]any{{"c3", "Cask", "WA"}}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("rows after overwrite (-want +got):\n%s", diff)
	}

	snap, err := tbl.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Files) != 1 {
		t.Errorf("active files = %d, want 1", len(snap.Files))
	}

	old, err := tbl.ReadVersion(ctx, 0)
	if err != nil {
		t.Fatalf("ReadVersion(0): %v", err)
	}
	if old.NumRows() != 2 {
		t.Errorf("version 0 rows = %d, want 2", old.NumRows())
	}
}

func TestOverwrite_KeepsTableIDAcrossSchemaChange(t *testing.T) {
	tbl, _ := Open(filepath.Join(t.TempDir(), "raw"))
	ctx := context.Background()

	if _, err := tbl.Overwrite(ctx, breweryFrame([]any{"a1", "Acme", "CA"})); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	first, _ := tbl.Snapshot()

	wider := breweryFrame([]any{"a1", "Acme", "CA", "Oakland"})
	wider.Columns = append(wider.Columns, models.Column{Name: "city", Type: models.TypeString})
	if _, err := tbl.Overwrite(ctx, wider); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	second, _ := tbl.Snapshot()

	if second.TableID != first.TableID {
		t.Errorf("table id changed: %s -> %s", first.TableID, second.TableID)
	}
	if diff := cmp.Diff(wider.Columns, second.Columns); diff != "" {
		t.Errorf("schema not updated (-want +got):\n%s", diff)
	}
}

func TestCommit_ConflictLeavesPreviousVersion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	tbl, _ := Open(dir)
	ctx := context.Background()

	if _, err := tbl.Overwrite(ctx, breweryFrame([]any{"a1", "Acme", "CA"})); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	// Another writer claims version 1 between our snapshot and commit.
	if err := tbl.commit(1, []action{{CommitInfo: &commitInfo{Operation: "WRITE"}}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	err := tbl.commit(1, []action{{CommitInfo: &commitInfo{Operation: "WRITE"}}})
	if !errors.Is(err, ErrConcurrentCommit) {
		t.Fatalf("commit error = %v, want ErrConcurrentCommit", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, logDirName))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}

func TestRead_EmptyTable(t *testing.T) {
	tbl, _ := Open(filepath.Join(t.TempDir(), "raw"))
	if _, err := tbl.Read(context.Background()); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("Read error = %v, want ErrEmptyTable", err)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	tbl, _ := Open(filepath.Join(t.TempDir(), "raw"))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := tbl.Overwrite(ctx, breweryFrame([]any{"a1", "Acme", "CA"})); err != nil {
			t.Fatalf("Overwrite %d: %v", i, err)
		}
	}

	history, err := tbl.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Version != 2 || history[0].Removed != 1 || history[0].Added != 1 {
		t.Errorf("latest commit = %+v", history[0])
	}
	if history[2].Mode != "Overwrite" || history[2].Removed != 0 {
		t.Errorf("first commit = %+v", history[2])
	}
}

func TestOverwrite_RejectsTypeMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	tbl, _ := Open(dir)
	frame := &models.Frame{
		Columns: []models.Column{{Name: "n", Type: models.TypeLong}},
		Rows:    [][]any{{"not a number"}},
	}
	if _, err := tbl.Overwrite(context.Background(), frame); err == nil {
		t.Fatal("expected type mismatch error")
	}
	snap, _ := tbl.Snapshot()
	if snap.Version != -1 {
		t.Errorf("version = %d, want -1 after failed write", snap.Version)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if len(matches) != 0 {
		t.Errorf("orphan data files left: %v", matches)
	}
}
