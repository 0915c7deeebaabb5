// Package delta implements a transactional table on a local directory: a
// commit log of newline-delimited JSON actions under _delta_log/ and Parquet
// data files beside it. Only the full-overwrite write mode is supported.
package delta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/breweries/pkg/models"
)

var (
	// ErrConcurrentCommit is returned when another writer published the
	// same table version first.
	ErrConcurrentCommit = errors.New("delta: concurrent commit detected")
	// ErrEmptyTable is returned when reading a table that has no commits.
	ErrEmptyTable = errors.New("delta: table has no commits")
)

const engineInfo = "breweries-pipeline"

// Table is a handle on one table directory.
type Table struct {
	path   string
	logDir string
	now    func() time.Time
}

// DataFile is a data file that belongs to a table version.
type DataFile struct {
	Path string
	Size int64
}

// Snapshot is the replayed state of the table at one version.
// Version is -1 when nothing has been committed yet.
type Snapshot struct {
	Version     int64
	TableID     string
	Columns     []models.Column
	Files       []DataFile
	CreatedTime time.Time
}

// Commit summarizes one log entry.
type Commit struct {
	Version   int64
	Timestamp time.Time
	Operation string
	Mode      string
	Added     int
	Removed   int
}

// Open returns a handle on the table at path, creating the directory and
// its log directory if absent.
func Open(path string) (*Table, error) {
	logDir := filepath.Join(path, logDirName)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create table log directory: %w", err)
	}
	return &Table{path: path, logDir: logDir, now: time.Now}, nil
}

// Path returns the table directory.
func (t *Table) Path() string { return t.path }

// Snapshot replays the whole log and returns the latest state.
func (t *Table) Snapshot() (*Snapshot, error) {
	return t.SnapshotAt(-1)
}

// SnapshotAt replays the log up to and including version. A negative version
// means the latest.
func (t *Table) SnapshotAt(version int64) (*Snapshot, error) {
	versions, err := listVersions(t.logDir)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Version: -1}
	active := map[string]DataFile{}
	var order []string
	for _, v := range versions {
		if version >= 0 && v > version {
			break
		}
		actions, err := readCommit(t.logDir, v)
		if err != nil {
			return nil, err
		}
		for _, a := range actions {
			switch {
			case a.MetaData != nil:
				cols, err := decodeSchema(a.MetaData.SchemaString)
				if err != nil {
					return nil, err
				}
				snap.TableID = a.MetaData.ID
				snap.Columns = cols
				snap.CreatedTime = time.UnixMilli(a.MetaData.CreatedTime)
			case a.Add != nil:
				if _, ok := active[a.Add.Path]; !ok {
					order = append(order, a.Add.Path)
				}
				active[a.Add.Path] = DataFile{Path: a.Add.Path, Size: a.Add.Size}
			case a.Remove != nil:
				delete(active, a.Remove.Path)
			}
		}
		snap.Version = v
	}
	if version >= 0 && snap.Version != version {
		return nil, fmt.Errorf("delta: version %d not found", version)
	}

	for _, p := range order {
		if f, ok := active[p]; ok {
			snap.Files = append(snap.Files, f)
		}
	}
	return snap, nil
}

// Overwrite replaces the table contents with frame in one commit and returns
// the new version. The previous version stays current if any step fails.
func (t *Table) Overwrite(ctx context.Context, frame *models.Frame) (int64, error) {
	if frame == nil || len(frame.Columns) == 0 {
		return -1, errors.New("delta: cannot write a frame without columns")
	}
	snap, err := t.Snapshot()
	if err != nil {
		return -1, err
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	name := fmt.Sprintf("part-00000-%s-c000.snappy.parquet", uuid.NewString())
	dataPath := filepath.Join(t.path, name)
	size, err := writeParquet(dataPath, frame)
	if err != nil {
		os.Remove(dataPath)
		return -1, err
	}

	now := t.now().UnixMilli()
	version := snap.Version + 1
	actions := []action{{CommitInfo: &commitInfo{
		Timestamp:           now,
		Operation:           "WRITE",
		OperationParameters: map[string]string{"mode": "Overwrite", "partitionBy": "[]"},
		EngineInfo:          engineInfo,
	}}}

	if snap.Version < 0 {
		actions = append(actions, action{Protocol: &protocol{MinReaderVersion: 1, MinWriterVersion: 2}})
	}
	if snap.Version < 0 || !sameColumns(snap.Columns, frame.Columns) {
		schema, err := encodeSchema(frame.Columns)
		if err != nil {
			os.Remove(dataPath)
			return -1, err
		}
		id, created := snap.TableID, snap.CreatedTime.UnixMilli()
		if id == "" {
			id, created = uuid.NewString(), now
		}
		actions = append(actions, action{MetaData: &metaData{
			ID:               id,
			Format:           format{Provider: "parquet", Options: map[string]string{}},
			SchemaString:     schema,
			PartitionColumns: []string{},
			Configuration:    map[string]string{},
			CreatedTime:      created,
		}})
	}
	for _, f := range snap.Files {
		actions = append(actions, action{Remove: &removeFile{Path: f.Path, DeletionTimestamp: now, DataChange: true}})
	}
	actions = append(actions, action{Add: &addFile{
		Path:             name,
		PartitionValues:  map[string]string{},
		Size:             size,
		ModificationTime: now,
		DataChange:       true,
		Stats:            fmt.Sprintf(`{"numRecords":%d}`, frame.NumRows()),
	}})

	if err := t.commit(version, actions); err != nil {
		os.Remove(dataPath)
		return -1, err
	}
	return version, nil
}

// commit publishes the log entry for version. The entry is staged in a temp
// file and hard-linked into place, so it appears complete or not at all and
// an existing entry is never replaced.
func (t *Table) commit(version int64, actions []action) error {
	data, err := encodeCommit(actions)
	if err != nil {
		return fmt.Errorf("encode commit: %w", err)
	}

	tmp, err := os.CreateTemp(t.logDir, ".tmp-commit-*")
	if err != nil {
		return fmt.Errorf("stage commit: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("stage commit: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("stage commit: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage commit: %w", err)
	}

	target := filepath.Join(t.logDir, commitFileName(version))
	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: version %d", ErrConcurrentCommit, version)
		}
		return fmt.Errorf("publish commit %d: %w", version, err)
	}
	return nil
}

// Read loads the current table contents into a frame.
func (t *Table) Read(ctx context.Context) (*models.Frame, error) {
	snap, err := t.Snapshot()
	if err != nil {
		return nil, err
	}
	return t.readSnapshot(ctx, snap)
}

// ReadVersion loads the table contents as of version.
func (t *Table) ReadVersion(ctx context.Context, version int64) (*models.Frame, error) {
	snap, err := t.SnapshotAt(version)
	if err != nil {
		return nil, err
	}
	return t.readSnapshot(ctx, snap)
}

func (t *Table) readSnapshot(ctx context.Context, snap *Snapshot) (*models.Frame, error) {
	if snap.Version < 0 {
		return nil, ErrEmptyTable
	}
	frame := &models.Frame{Columns: snap.Columns}
	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := readParquet(filepath.Join(t.path, f.Path), frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// History lists commits, newest first.
func (t *Table) History() ([]Commit, error) {
	versions, err := listVersions(t.logDir)
	if err != nil {
		return nil, err
	}
	out := make([]Commit, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		actions, err := readCommit(t.logDir, versions[i])
		if err != nil {
			return nil, err
		}
		c := Commit{Version: versions[i]}
		for _, a := range actions {
			switch {
			case a.CommitInfo != nil:
				c.Timestamp = time.UnixMilli(a.CommitInfo.Timestamp)
				c.Operation = a.CommitInfo.Operation
				c.Mode = a.CommitInfo.OperationParameters["mode"]
			case a.Add != nil:
				c.Added++
			case a.Remove != nil:
				c.Removed++
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func sameColumns(a, b []models.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
