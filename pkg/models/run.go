package models

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// StepResult is the outcome of one named step within a run.
type StepResult struct {
	Name     string        `json:"name" bson:"name"`
	Attempts int           `json:"attempts" bson:"attempts"`
	Duration time.Duration `json:"duration" bson:"duration"`
	Error    string        `json:"error,omitempty" bson:"error,omitempty"`
}

// Run is the historical record of one pipeline run.
type Run struct {
	ID           string       `json:"id" bson:"_id"`
	DagID        string       `json:"dagId" bson:"dag_id"`
	Trigger      string       `json:"trigger" bson:"trigger"` // "manual" | "schedule"
	Owner        string       `json:"owner,omitempty" bson:"owner,omitempty"`
	StartedAt    time.Time    `json:"startedAt" bson:"started_at"`
	FinishedAt   time.Time    `json:"finishedAt" bson:"finished_at"`
	Status       RunStatus    `json:"status" bson:"status"`
	Steps        []StepResult `json:"steps" bson:"steps"`
	Records      int          `json:"records" bson:"records"`
	SnapshotPath string       `json:"snapshotPath,omitempty" bson:"snapshot_path,omitempty"`
	TableVersion int64        `json:"tableVersion" bson:"table_version"`
	Error        string       `json:"error,omitempty" bson:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
