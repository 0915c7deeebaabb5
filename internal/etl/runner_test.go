package etl

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BartekS5/breweries/internal/history"
	"github.com/BartekS5/breweries/internal/observability"
	"github.com/BartekS5/breweries/pkg/models"
)

type stubTransformer struct {
	calls int
	err   error
}

func (s *stubTransformer) Transform(context.Context) error {
	s.calls++
	return s.err
}

type runnerFixture struct {
	runner  *Runner
	store   *history.SQLiteStore
	metrics *observability.Metrics
	guard   *LocalGuard
	xform   *stubTransformer
}

func newRunnerFixture(t *testing.T, status int, body string) *runnerFixture {
	t.Helper()
	fetcher, _ := newTestFetcher(t, status, body)
	loader, engine, _ := newTestLoader(t)

	store, err := history.NewSQLiteStore(context.Background(), engine.DB())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	xform := &stubTransformer{}
	p := NewBreweriesPipeline(DagConfig{
		Name:        "breweries_data_pipeline",
		Extractor:   fetcher,
		Loader:      loader,
		Transformer: xform,
		Validator:   NewValidator(50),
	})
	p.wait = noWait

	guard := NewLocalGuard()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return &runnerFixture{
		runner:  NewRunner("breweries_data_pipeline", p, guard, store, metrics),
		store:   store,
		metrics: metrics,
		guard:   guard,
		xform:   xform,
	}
}

func TestRunner_Success(t *testing.T) {
	f := newRunnerFixture(t, http.StatusOK, `[{"id":"a1","name":"Acme Brew","state":"CA"}]`)
	ctx := context.Background()

	f.runner.Owner = "data-platform"

	run, err := f.runner.Run(ctx, "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Owner != "data-platform" {
		t.Errorf("Owner = %q", run.Owner)
	}
	if run.Status != models.RunSuccess || run.Records != 1 || run.TableVersion != 0 {
		t.Errorf("run = %+v", run)
	}
	if run.SnapshotPath == "" {
		t.Error("snapshot path not recorded")
	}
	if len(run.Steps) != 3 || run.Steps[2].Name != StepTransform {
		t.Errorf("steps = %+v", run.Steps)
	}
	if f.xform.calls != 1 {
		t.Errorf("transform calls = %d, want 1", f.xform.calls)
	}

	runs, err := f.store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Owner != "data-platform" {
		t.Errorf("stored runs = %+v", runs)
	}
	if got := testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success runs metric = %v", got)
	}
}

func TestRunner_FetchFailureStopsPipeline(t *testing.T) {
	f := newRunnerFixture(t, http.StatusInternalServerError, `oops`)

	run, err := f.runner.Run(context.Background(), "schedule")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if run.Status != models.RunFailed || run.TableVersion != -1 {
		t.Errorf("run = %+v", run)
	}
	if len(run.Steps) != 1 || run.Steps[0].Name != StepFetch {
		t.Errorf("steps = %+v", run.Steps)
	}
	if f.xform.calls != 0 {
		t.Error("transform ran after fetch failed")
	}
}

func TestRunner_TransformFailureKeepsLoad(t *testing.T) {
	f := newRunnerFixture(t, http.StatusOK, `[{"id":"a1"}]`)
	f.xform.err = errors.New("dbt exited 1")

	run, err := f.runner.Run(context.Background(), "manual")
	if err == nil {
		t.Fatal("expected transform error")
	}
	if run.Status != models.RunFailed || run.TableVersion != 0 || run.Records != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestRunner_SkipsWhenGuardHeld(t *testing.T) {
	f := newRunnerFixture(t, http.StatusOK, `[{"id":"a1"}]`)
	release, ok, _ := f.guard.TryAcquire(context.Background(), "breweries_data_pipeline")
	if !ok {
		t.Fatal("could not pre-acquire guard")
	}
	defer release()

	run, err := f.runner.Run(context.Background(), "schedule")
	if !IsSkipped(err) {
		t.Fatalf("error = %v, want ErrRunInProgress", err)
	}
	if run.Status != models.RunSkipped || len(run.Steps) != 0 {
		t.Errorf("run = %+v", run)
	}
}

func TestNewBreweriesPipeline_WithoutTransform(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.StatusOK, `[{"id":"a1"}]`)
	loader, _, table := newTestLoader(t)

	p := NewBreweriesPipeline(DagConfig{Name: "dag", Extractor: fetcher, Loader: loader})
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(p.Steps))
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := table.Read(context.Background()); err != nil {
		t.Errorf("table not written: %v", err)
	}
}
