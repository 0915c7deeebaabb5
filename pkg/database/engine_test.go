package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/BartekS5/breweries/pkg/models"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := OpenEngine(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestReadJSON_UnionOfKeysInFirstSeenOrder(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	payload := `[{"id":"a1","name":"Acme Brew","rank":1},{"id":"b2","state":"OR","rank":2.5,"open":true}]`
	cols, err := e.ReadJSON(ctx, "tmp", payload)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	want := []models.Column{
		{Name: "id", Type: models.TypeString},
		{Name: "name", Type: models.TypeString},
		{Name: "rank", Type: models.TypeDouble},
		{Name: "state", Type: models.TypeString},
		{Name: "open", Type: models.TypeBoolean},
	}
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	frame, err := e.Frame(ctx, "tmp")
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	wantRows := [][]any{
		{"a1", "Acme Brew", 1.0, nil, nil},
		{"b2", nil, 2.5, "OR", true},
	}
	if diff := cmp.Diff(wantRows, frame.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSON_NestedValuesKeptAsJSONText(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.ReadJSON(ctx, "tmp", `[{"id":"a1","tags":["x","y"]}]`); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	frame, err := e.Frame(ctx, "tmp")
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if got := frame.Rows[0][1]; got != `["x","y"]` {
		t.Errorf("tags = %v, want JSON text", got)
	}
}

func TestReadJSON_Errors(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"malformed", `[{"id":`, ErrMalformedJSON},
		{"empty body", ``, ErrMalformedJSON},
		{"object", `{"id":"a1"}`, ErrNotArray},
		{"scalars", `[1,2]`, ErrNotArray},
		{"empty array", `[]`, ErrNoSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.ReadJSON(ctx, "bad", tc.payload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ReadJSON(%q) error = %v, want %v", tc.payload, err, tc.want)
			}
			exists, err := e.RelationExists(ctx, "bad")
			if err != nil {
				t.Fatalf("RelationExists: %v", err)
			}
			if exists {
				t.Error("relation should not be created on error")
			}
		})
	}
}

func TestDropRelation(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if _, err := e.ReadJSON(ctx, "tmp", `[{"id":"a1"}]`); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	exists, _ := e.RelationExists(ctx, "tmp")
	if !exists {
		t.Fatal("expected relation to exist after ReadJSON")
	}
	if err := e.DropRelation(ctx, "tmp"); err != nil {
		t.Fatalf("DropRelation: %v", err)
	}
	exists, _ = e.RelationExists(ctx, "tmp")
	if exists {
		t.Error("relation still exists after DropRelation")
	}
	if err := e.DropRelation(ctx, "tmp"); err != nil {
		t.Errorf("second DropRelation should be a no-op, got %v", err)
	}
}

func TestFrame_MissingRelation(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.Frame(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing relation")
	}
}

func TestReadJSON_IntegersBeyondInt64(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.Column
		rows    [][]any
	}{
		{
			name:    "max int64 stays long",
			payload: `[{"n":9223372036854775807},{"n":-9223372036854775808}]`,
			want:    models.Column{Name: "n", Type: models.TypeLong},
			rows:    [][]any{{int64(9223372036854775807)}, {int64(-9223372036854775808)}},
		},
		{
			name:    "just past max",
			payload: `[{"n":9223372036854775808},{"n":1}]`,
			want:    models.Column{Name: "n", Type: models.TypeDouble},
			rows:    [][]any{{9223372036854775808.0}, {1.0}},
		},
		{
			name:    "far past max",
			payload: `[{"n":123456789012345678901234567890}]`,
			want:    models.Column{Name: "n", Type: models.TypeDouble},
			rows:    [][]any{{123456789012345678901234567890.0}},
		},
		{
			name:    "mixed with text keeps digits",
			payload: `[{"n":"x"},{"n":123456789012345678901234567890},{"n":7}]`,
			want:    models.Column{Name: "n", Type: models.TypeString},
			rows:    [][]any{{"x"}, {"123456789012345678901234567890"}, {"7"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := openTestEngine(t)
			ctx := context.Background()

			cols, err := e.ReadJSON(ctx, "tmp", tc.payload)
			if err != nil {
				t.Fatalf("ReadJSON: %v", err)
			}
			if diff := cmp.Diff([]models.Column{tc.want}, cols); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
			frame, err := e.Frame(ctx, "tmp")
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if diff := cmp.Diff(tc.rows, frame.Rows, cmpopts.EquateApprox(1e-15, 0)); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadJSON_KeysDifferingOnlyInCase(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	cols, err := e.ReadJSON(ctx, "tmp", `[{"id":"a1","ID":"upper","Id_2":"other"}]`)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	frame, err := e.Frame(ctx, "tmp")
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if diff := cmp.Diff(cols, frame.Columns); diff != "" {
		t.Errorf("frame columns differ from ingested keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"id", "ID", "Id_2"}, frame.ColumnNames()); diff != "" {
		t.Errorf("column names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]any{{"a1", "upper", "other"}}, frame.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if err := e.DropRelation(ctx, "tmp"); err != nil {
		t.Fatalf("DropRelation: %v", err)
	}
	if _, ok := e.keys["tmp"]; ok {
		t.Error("recorded keys kept after drop")
	}
}
