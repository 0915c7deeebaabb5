package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BartekS5/breweries/pkg/models"
)

func TestObserveStep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveStep("fetch_breweries_data", 1, 10*time.Millisecond, errors.New("boom"))
	m.ObserveStep("fetch_breweries_data", 2, 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(m.StepAttempts.WithLabelValues("fetch_breweries_data", "failure")); got != 1 {
		t.Errorf("failure attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StepAttempts.WithLabelValues("fetch_breweries_data", "success")); got != 1 {
		t.Errorf("success attempts = %v, want 1", got)
	}
}

func TestObserveRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	finished := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	m.ObserveRun(&models.Run{Status: models.RunSuccess, Records: 50, TableVersion: 7, FinishedAt: finished})
	m.ObserveRun(&models.Run{Status: models.RunFailed})

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsLoaded); got != 50 {
		t.Errorf("records = %v, want 50", got)
	}
	if got := testutil.ToFloat64(m.TableVersion); got != 7 {
		t.Errorf("table version = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.LastSuccessUTC); got != float64(finished.Unix()) {
		t.Errorf("last success = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("x", 1, time.Second, nil)
	m.ObserveRun(&models.Run{Status: models.RunSuccess})
}
