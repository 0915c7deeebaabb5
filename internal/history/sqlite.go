package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BartekS5/breweries/pkg/models"
)

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps run records in the pipeline's embedded database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			dag_id TEXT NOT NULL,
			trigger_type TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			status TEXT NOT NULL,
			records INTEGER NOT NULL DEFAULT 0,
			snapshot_path TEXT NOT NULL DEFAULT '',
			table_version INTEGER NOT NULL DEFAULT -1,
			error TEXT NOT NULL DEFAULT '',
			steps_json TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return s.addColumn(ctx, "owner", "TEXT NOT NULL DEFAULT ''")
}

// addColumn adds a column to pipeline_runs files created before it existed.
func (s *SQLiteStore) addColumn(ctx context.Context, name, decl string) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pragma_table_info('pipeline_runs') WHERE name = ?`, name,
	).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE pipeline_runs ADD COLUMN %s %s", name, decl))
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, run *models.Run) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(id, dag_id, trigger_type, owner, started_at, finished_at, status, records, snapshot_path, table_version, error, steps_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			records = excluded.records,
			snapshot_path = excluded.snapshot_path,
			table_version = excluded.table_version,
			error = excluded.error,
			steps_json = excluded.steps_json`,
		run.ID, run.DagID, run.Trigger, run.Owner,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		string(run.Status), run.Records, run.SnapshotPath, run.TableVersion, run.Error, string(steps),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dag_id, trigger_type, owner, started_at, finished_at, status, records, snapshot_path, table_version, error, steps_json
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var (
			r                 models.Run
			started, finished string
			status, steps     string
		)
		if err := rows.Scan(&r.ID, &r.DagID, &r.Trigger, &r.Owner, &started, &finished, &status,
			&r.Records, &r.SnapshotPath, &r.TableVersion, &r.Error, &steps); err != nil {
			return nil, err
		}
		r.Status = models.RunStatus(status)
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
			return nil, fmt.Errorf("run %s steps: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
