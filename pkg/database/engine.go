package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BartekS5/breweries/pkg/models"
	"github.com/BartekS5/breweries/pkg/utils"

	_ "modernc.org/sqlite"
)

var (
	ErrMalformedJSON = errors.New("engine: malformed JSON input")
	ErrNotArray      = errors.New("engine: JSON input is not an array of records")
	ErrNoSchema      = errors.New("engine: cannot infer a schema from an empty record set")
)

// Engine is the embedded query engine. It owns exactly one database
// connection; temporary relations live on that connection, so the pool is
// capped at one.
type Engine struct {
	db   *sql.DB
	path string

	mu sync.Mutex
	// record keys of relations created by ReadJSON; SQL column names may
	// carry a suffix where keys differ only in case.
	keys map[string][]string
}

// OpenEngine opens (or creates) the engine database file at path. Use
// ":memory:" for a throwaway engine.
func OpenEngine(ctx context.Context, path string) (*Engine, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create engine directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open engine database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to engine database (ping failed): %w", err)
	}
	return &Engine{db: db, path: path, keys: make(map[string][]string)}, nil
}

// DB exposes the shared connection for other stores in the same file.
func (e *Engine) DB() *sql.DB { return e.db }

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

func (e *Engine) Close() error {
	return e.db.Close()
}

// ReadJSON ingests a JSON array of objects into a new temporary relation.
// The column set is the union of keys across all records, in first-seen
// order; each column's type is inferred from the values seen for that key.
// Integers outside the int64 range make their column double.
func (e *Engine) ReadJSON(ctx context.Context, relation, jsonText string) ([]models.Column, error) {
	var valid int
	if err := e.db.QueryRowContext(ctx, `SELECT json_valid(?1)`, jsonText).Scan(&valid); err != nil {
		return nil, fmt.Errorf("validate json: %w", err)
	}
	if valid != 1 {
		return nil, ErrMalformedJSON
	}

	var kind string
	if err := e.db.QueryRowContext(ctx, `SELECT json_type(?1)`, jsonText).Scan(&kind); err != nil {
		return nil, fmt.Errorf("inspect json: %w", err)
	}
	if kind != "array" {
		return nil, fmt.Errorf("%w: top-level %s", ErrNotArray, kind)
	}

	var total, nonObjects int
	err := e.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(type <> 'object'), 0) FROM json_each(?1)`, jsonText,
	).Scan(&total, &nonObjects)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	if nonObjects > 0 {
		return nil, fmt.Errorf("%w: %d of %d elements are not objects", ErrNotArray, nonObjects, total)
	}

	columns, err := e.inferColumns(ctx, jsonText)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, ErrNoSchema
	}

	sqlNames := columnNames(columns)
	defs := make([]string, len(columns))
	names := make([]string, len(columns))
	selects := make([]string, len(columns))
	keys := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	args = append(args, jsonText)
	for i, c := range columns {
		defs[i] = quoteIdent(sqlNames[i]) + " " + sqlType(c.Type)
		names[i] = quoteIdent(sqlNames[i])
		selects[i] = fmt.Sprintf("(SELECT %s FROM json_each(r.value) AS f WHERE f.key = ?%d)", valueExpr(c.Type), i+2)
		keys[i] = c.Name
		args = append(args, c.Name)
	}

	create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quoteIdent(relation), strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create relation %s: %w", relation, err)
	}

	insert := fmt.Sprintf("INSERT INTO temp.%s (%s) SELECT %s FROM json_each(?1) AS r ORDER BY r.key",
		quoteIdent(relation), strings.Join(names, ", "), strings.Join(selects, ", "))
	if _, err := e.db.ExecContext(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("populate relation %s: %w", relation, err)
	}

	e.mu.Lock()
	e.keys[relation] = keys
	e.mu.Unlock()
	return columns, nil
}

func (e *Engine) inferColumns(ctx context.Context, jsonText string) ([]models.Column, error) {
	// An integer whose JSON text differs from its SQL value did not fit in
	// int64; it is typed as real.
	rows, err := e.db.QueryContext(ctx, `
		SELECT f.key, group_concat(DISTINCT CASE
			WHEN f.type = 'integer'
				AND (typeof(f.atom) <> 'integer' OR (r.value -> f.fullkey) <> CAST(f.atom AS TEXT))
			THEN 'real'
			ELSE f.type END)
		FROM json_each(?1) AS r, json_each(r.value) AS f
		GROUP BY f.key
		ORDER BY min(r.key * 1048576 + f.id)`, jsonText)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var name, types string
		if err := rows.Scan(&name, &types); err != nil {
			return nil, fmt.Errorf("infer schema: %w", err)
		}
		columns = append(columns, models.Column{
			Name: name,
			Type: utils.InferColumnType(strings.Split(types, ",")),
		})
	}
	return columns, rows.Err()
}

// Frame materializes a temporary relation as an in-memory frame, rows in
// insertion order.
func (e *Engine) Frame(ctx context.Context, relation string) (*models.Frame, error) {
	columns, err := e.relationColumns(ctx, relation)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("relation %s does not exist", relation)
	}
	e.mu.Lock()
	keys := e.keys[relation]
	e.mu.Unlock()
	if len(keys) == len(columns) {
		for i := range columns {
			columns[i].Name = keys[i]
		}
	}

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM temp.%s ORDER BY rowid", quoteIdent(relation)))
	if err != nil {
		return nil, fmt.Errorf("query relation %s: %w", relation, err)
	}
	defer rows.Close()

	frame := &models.Frame{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, c := range columns {
			v, err := utils.ConvertToColumnType(values[i], c.Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			row[i] = v
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame, rows.Err()
}

func (e *Engine) relationColumns(ctx context.Context, relation string) ([]models.Column, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA temp.table_info(%s)", quoteIdent(relation)))
	if err != nil {
		return nil, fmt.Errorf("describe relation %s: %w", relation, err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, declType   string
			dflt             interface{}
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, models.Column{Name: name, Type: columnType(declType)})
	}
	return columns, rows.Err()
}

// DropRelation removes a temporary relation. Dropping a missing relation is
// not an error.
func (e *Engine) DropRelation(ctx context.Context, relation string) error {
	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS temp."+quoteIdent(relation)); err != nil {
		return fmt.Errorf("drop relation %s: %w", relation, err)
	}
	e.mu.Lock()
	delete(e.keys, relation)
	e.mu.Unlock()
	return nil
}

// RelationExists reports whether a temporary relation is currently defined.
func (e *Engine) RelationExists(ctx context.Context, relation string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_temp_master WHERE type = 'table' AND name = ?`, relation,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// columnNames returns SQL column names for columns. SQLite compares column
// names case-insensitively, so a key that collides with an earlier one gets a
// numeric suffix.
func columnNames(columns []models.Column) []string {
	names := make([]string, len(columns))
	taken := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := c.Name
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", c.Name, n)
		}
		taken[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

// valueExpr selects a record value for a column of type t. Integers are read
// from their JSON text where the SQL value could lose digits.
func valueExpr(t models.ColumnType) string {
	switch t {
	case models.TypeDouble:
		return "CASE WHEN f.type = 'integer' THEN CAST((r.value -> f.fullkey) AS REAL) ELSE f.value END"
	case models.TypeString:
		return "CASE WHEN f.type = 'integer' THEN (r.value -> f.fullkey) ELSE f.value END"
	default:
		return "f.value"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(t models.ColumnType) string {
	switch t {
	case models.TypeLong:
		return "INTEGER"
	case models.TypeDouble:
		return "REAL"
	case models.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func columnType(decl string) models.ColumnType {
	switch strings.ToUpper(decl) {
	case "INTEGER":
		return models.TypeLong
	case "REAL":
		return models.TypeDouble
	case "BOOLEAN":
		return models.TypeBoolean
	default:
		return models.TypeString
	}
}
