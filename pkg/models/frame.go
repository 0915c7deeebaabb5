package models

// ColumnType names a column's logical type. The values match the primitive
// type names of the transactional table schema.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeLong    ColumnType = "long"
	TypeDouble  ColumnType = "double"
	TypeBoolean ColumnType = "boolean"
)

// Column describes one column of a Frame.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Frame is an in-memory table: ordered columns and rows of values.
// Row values are string, int64, float64, bool or nil, matching the column type.
type Frame struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NumRows returns the number of rows in the frame.
func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// ColumnNames returns column names in frame order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Record returns row i as a column name -> value map.
func (f *Frame) Record(i int) map[string]any {
	rec := make(map[string]any, len(f.Columns))
	for j, c := range f.Columns {
		rec[c.Name] = f.Rows[i][j]
	}
	return rec
}
