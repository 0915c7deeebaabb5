package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BartekS5/breweries/pkg/database"
	"github.com/BartekS5/breweries/pkg/logger"
	"github.com/BartekS5/breweries/pkg/models"
)

// TempRelation is the engine relation a load stages its rows in.
const TempRelation = "temp_raw_data"

// TableWriter is the destination of a load.
type TableWriter interface {
	Overwrite(ctx context.Context, frame *models.Frame) (int64, error)
}

// LoadResult describes the table state a load committed.
type LoadResult struct {
	Rows    int
	Columns []string
	Version int64
}

// TableLoader ingests a payload through the query engine and replaces the
// raw table with it.
type TableLoader struct {
	Engine   *database.Engine
	Table    TableWriter
	Relation string
}

func NewTableLoader(engine *database.Engine, table TableWriter) *TableLoader {
	return &TableLoader{Engine: engine, Table: table, Relation: TempRelation}
}

// Load overwrites the table with exactly the records in payload. The
// temporary relation is dropped before returning on every path.
func (l *TableLoader) Load(ctx context.Context, payload Payload) (res *LoadResult, err error) {
	logger.Infof("Creating raw table from json (%d records)...", len(payload))

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	defer func() {
		if dropErr := l.Engine.DropRelation(context.WithoutCancel(ctx), l.Relation); dropErr != nil {
			logger.Errorf("Failed to drop %s: %v", l.Relation, dropErr)
			res, err = nil, errors.Join(err, dropErr)
		}
	}()

	if _, err := l.Engine.ReadJSON(ctx, l.Relation, string(text)); err != nil {
		return nil, fmt.Errorf("ingest payload: %w", err)
	}

	frame, err := l.Engine.Frame(ctx, l.Relation)
	if err != nil {
		return nil, fmt.Errorf("materialize frame: %w", err)
	}

	version, err := l.Table.Overwrite(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("overwrite raw table: %w", err)
	}

	logger.Infof("Raw table overwritten: version %d, %d rows, %d columns", version, frame.NumRows(), len(frame.Columns))
	return &LoadResult{Rows: frame.NumRows(), Columns: frame.ColumnNames(), Version: version}, nil
}
