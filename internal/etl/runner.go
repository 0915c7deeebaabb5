package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/breweries/internal/history"
	"github.com/BartekS5/breweries/internal/observability"
	"github.com/BartekS5/breweries/pkg/logger"
	"github.com/BartekS5/breweries/pkg/models"
)

// Runner executes a pipeline once per call, guarded against overlap, and
// records the outcome.
type Runner struct {
	DagID    string
	Owner    string
	Pipeline *Pipeline
	Guard    RunGuard
	Store    history.Store
	Metrics  *observability.Metrics
	Now      func() time.Time
}

func NewRunner(dagID string, p *Pipeline, guard RunGuard, store history.Store, metrics *observability.Metrics) *Runner {
	if metrics != nil {
		p.Observer = metrics.ObserveStep
	}
	return &Runner{DagID: dagID, Pipeline: p, Guard: guard, Store: store, Metrics: metrics, Now: time.Now}
}

// Run executes every step in order. When another run holds the guard it
// returns a skipped run and ErrRunInProgress without touching any data.
func (r *Runner) Run(ctx context.Context, trigger string) (*models.Run, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	run := &models.Run{
		ID:           uuid.NewString(),
		DagID:        r.DagID,
		Trigger:      trigger,
		Owner:        r.Owner,
		StartedAt:    now(),
		TableVersion: -1,
	}

	if r.Guard != nil {
		release, ok, err := r.Guard.TryAcquire(ctx, r.DagID)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			run.Status = models.RunSkipped
			run.FinishedAt = now()
			run.Error = ErrRunInProgress.Error()
			logger.Warnf("Skipping %s run: %v", r.DagID, ErrRunInProgress)
			r.Metrics.ObserveRun(run)
			return run, ErrRunInProgress
		}
		defer release()
	}

	logger.Infof("Starting %s run %s (%s, owner %s)", r.DagID, run.ID, trigger, r.Owner)
	res, runErr := r.Pipeline.Run(ctx)
	run.FinishedAt = now()
	if res != nil {
		run.Steps = res.Steps
		if fr, ok := res.Outputs[StepFetch].(*FetchResult); ok && fr != nil {
			run.SnapshotPath = fr.SnapshotPath
			run.Records = len(fr.Payload)
		}
		if lr, ok := res.Outputs[StepLoad].(*LoadResult); ok && lr != nil {
			run.Records = lr.Rows
			run.TableVersion = lr.Version
		}
	}

	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
		logger.Errorf("Run %s failed in %s: %v", run.ID, run.Duration(), runErr)
	} else {
		run.Status = models.RunSuccess
		logger.Infof("Run %s finished successfully in %s", run.ID, run.Duration())
	}

	r.Metrics.ObserveRun(run)
	if r.Store != nil {
		if err := r.Store.Save(context.WithoutCancel(ctx), run); err != nil {
			logger.Warnf("Failed to record run %s: %v", run.ID, err)
		}
	}
	return run, runErr
}

// IsSkipped reports whether err means the run did not start because another
// one was active.
func IsSkipped(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
