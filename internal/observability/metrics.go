package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BartekS5/breweries/pkg/logger"
	"github.com/BartekS5/breweries/pkg/models"
)

// Metrics are the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	StepAttempts   *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	RecordsLoaded  prometheus.Gauge
	TableVersion   prometheus.Gauge
	LastSuccessUTC prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breweries_pipeline_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"status"}),
		StepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breweries_pipeline_step_attempts_total",
			Help: "Step attempts by step and outcome",
		}, []string{"step", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breweries_pipeline_step_duration_seconds",
			Help:    "Duration of a single step attempt",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
		RecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breweries_raw_table_records",
			Help: "Rows in the raw table after the last successful run",
		}),
		TableVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breweries_raw_table_version",
			Help: "Raw table version committed by the last successful run",
		}),
		LastSuccessUTC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breweries_pipeline_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished",
		}),
	}
	reg.MustRegister(m.RunsTotal, m.StepAttempts, m.StepDuration, m.RecordsLoaded, m.TableVersion, m.LastSuccessUTC)
	return m
}

// ObserveStep records one step attempt.
func (m *Metrics) ObserveStep(step string, _ int, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.StepAttempts.WithLabelValues(step, outcome).Inc()
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run *models.Run) {
	if m == nil || run == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	if run.Status == models.RunSuccess {
		m.RecordsLoaded.Set(float64(run.Records))
		m.TableVersion.Set(float64(run.TableVersion))
		m.LastSuccessUTC.Set(float64(run.FinishedAt.Unix()))
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
