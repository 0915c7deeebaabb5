package delta

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/BartekS5/breweries/pkg/models"
)

func parquetSchema(columns []models.Column) *parquet.Schema {
	group := parquet.Group{}
	for _, c := range columns {
		group[c.Name] = parquet.Optional(leafNode(c.Type))
	}
	return parquet.NewSchema("raw", group)
}

func leafNode(t models.ColumnType) parquet.Node {
	switch t {
	case models.TypeLong:
		return parquet.Int(64)
	case models.TypeDouble:
		return parquet.Leaf(parquet.DoubleType)
	case models.TypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// writeParquet writes frame to a new Parquet file at path and returns its size.
// Leaf columns in a Parquet group are ordered by name, so each frame column is
// placed at its leaf index rather than its frame position.
func writeParquet(path string, frame *models.Frame) (int64, error) {
	schema := parquetSchema(frame.Columns)
	leafIndex := make(map[string]int, len(frame.Columns))
	for i, p := range schema.Columns() {
		leafIndex[p[0]] = i
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("create data file: %w", err)
	}

	w := parquet.NewWriter(f, schema, parquet.Compression(&parquet.Snappy))
	rows := make([]parquet.Row, 0, len(frame.Rows))
	for i, r := range frame.Rows {
		row := make(parquet.Row, len(frame.Columns))
		for j, c := range frame.Columns {
			idx := leafIndex[c.Name]
			v, err := toValue(r[j], c.Type)
			if err != nil {
				f.Close()
				return 0, fmt.Errorf("row %d column %s: %w", i, c.Name, err)
			}
			def := 1
			if v.IsNull() {
				def = 0
			}
			row[idx] = v.Level(0, def, idx)
		}
		rows = append(rows, row)
	}

	if _, err := w.WriteRows(rows); err != nil {
		f.Close()
		return 0, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	return st.Size(), f.Close()
}

func toValue(v any, t models.ColumnType) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch t {
	case models.TypeLong:
		n, ok := v.(int64)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected int64, got %T", v)
		}
		return parquet.Int64Value(n), nil
	case models.TypeDouble:
		n, ok := v.(float64)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected float64, got %T", v)
		}
		return parquet.DoubleValue(n), nil
	case models.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected bool, got %T", v)
		}
		return parquet.BooleanValue(b), nil
	default:
		s, ok := v.(string)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected string, got %T", v)
		}
		return parquet.ByteArrayValue([]byte(s)), nil
	}
}

func fromValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return string(v.ByteArray())
	}
}

// readParquet appends the rows of the Parquet file at path to frame, mapping
// leaf columns back to frame positions by name.
func readParquet(path string, frame *models.Frame) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return fmt.Errorf("open parquet %s: %w", path, err)
	}

	leaves := pf.Schema().Columns()
	pos := make([]int, len(leaves))
	for i, p := range leaves {
		pos[i] = frame.ColumnIndex(p[0])
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				out := make([]any, len(frame.Columns))
				for _, v := range row {
					col := v.Column()
					if col < 0 || col >= len(pos) || pos[col] < 0 {
						continue
					}
					out[pos[col]] = fromValue(v)
				}
				frame.Rows = append(frame.Rows, out)
			}
			if err == io.EOF || (n == 0 && err == nil) {
				break
			}
			if err != nil {
				rows.Close()
				return fmt.Errorf("read rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}
