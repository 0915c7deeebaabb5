package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BartekS5/breweries/internal/config"
	"github.com/BartekS5/breweries/internal/etl"
	"github.com/BartekS5/breweries/internal/history"
	"github.com/BartekS5/breweries/internal/observability"
	"github.com/BartekS5/breweries/internal/scheduler"
	"github.com/BartekS5/breweries/pkg/database"
	"github.com/BartekS5/breweries/pkg/delta"
	"github.com/BartekS5/breweries/pkg/logger"
)

// runLockTTL bounds how long a crashed run can hold the Redis lock. It covers
// every retry of every step at the default delay.
const runLockTTL = 2 * time.Hour

// app holds the resources shared by every command.
type app struct {
	cfg      *config.Config
	pipeline *config.Pipeline
	engine   *database.Engine
	table    *delta.Table
	store    history.Store
	guard    etl.RunGuard
	registry *prometheus.Registry
	metrics  *observability.Metrics

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	level := logger.INFO
	if cfg.LogLevel == "debug" {
		level = logger.DEBUG
	}
	if err := logger.InitLogger(cfg.LogFile, level); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	a := &app{cfg: cfg, closers: []func(){logger.Close}}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	p, err := config.LoadPipeline(a.cfg.PipelineFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("Pipeline file %s not found, using built-in definition", a.cfg.PipelineFile)
		p, err = config.DefaultPipeline(), nil
	}
	if err != nil {
		return err
	}
	a.pipeline = p

	if err := a.cfg.EnsureLayout(); err != nil {
		return err
	}

	engine, err := database.OpenEngine(ctx, a.cfg.EnginePath)
	if err != nil {
		return err
	}
	a.engine = engine
	a.closers = append(a.closers, func() { engine.Close() })

	table, err := delta.Open(a.cfg.RawTablePath)
	if err != nil {
		return err
	}
	a.table = table

	if a.cfg.MongoConnString != "" {
		client, err := database.ConnectMongo(a.cfg.MongoConnString)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		a.store = history.NewMongoStore(client, a.cfg.MongoDatabase)
	} else {
		store, err := history.NewSQLiteStore(ctx, engine.DB())
		if err != nil {
			return err
		}
		a.store = store
	}

	if a.cfg.RedisURL != "" {
		client, err := database.ConnectRedis(a.cfg.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.guard = etl.NewRedisGuard(client, runLockTTL)
	} else {
		a.guard = etl.NewLocalGuard()
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) fetcher() *etl.HTTPFetcher {
	return etl.NewHTTPFetcher(a.cfg.APIURL, a.cfg.BronzePath)
}

func (a *app) loader() *etl.TableLoader {
	return etl.NewTableLoader(a.engine, a.table)
}

func (a *app) runner(skipTransform bool) (*etl.Runner, error) {
	delay, err := a.pipeline.RetryDelay()
	if err != nil {
		return nil, err
	}

	var transformer etl.Transformer
	if !skipTransform {
		transformer = etl.NewDbtRunner(a.pipeline.Transform, a.cfg.RawTablePath)
	}

	p := etl.NewBreweriesPipeline(etl.DagConfig{
		Name:           a.pipeline.DagID,
		Extractor:      a.fetcher(),
		Loader:         a.loader(),
		Transformer:    transformer,
		Validator:      etl.NewValidator(a.cfg.PageSize),
		TaskRetry:      etl.RetryPolicy{Retries: a.pipeline.DefaultArgs.Retries, Delay: delay},
		TransformRetry: etl.RetryPolicy{Retries: a.pipeline.Transform.Retries, Delay: delay},
	})
	r := etl.NewRunner(a.pipeline.DagID, p, a.guard, a.store, a.metrics)
	r.Owner = a.pipeline.DefaultArgs.Owner
	return r, nil
}

func runPipeline(ctx context.Context, opts *RunOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.runner(opts.SkipTransform)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, "manual")
	return err
}

func runSchedule(ctx context.Context, opts *RunOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.runner(opts.SkipTransform)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, a.pipeline.Schedule, func(ctx context.Context) error {
		_, err := r.Run(ctx, "schedule")
		if etl.IsSkipped(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	metricsErr := make(chan error, 1)
	go func() {
		metricsErr <- observability.Serve(ctx, net.JoinHostPort("", a.cfg.MetricsPort), a.registry)
	}()

	sched.Start()
	defer sched.Stop()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested, waiting for the current run to finish")
		return nil
	case err := <-metricsErr:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}

func runFetch(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.fetcher().Fetch(ctx)
	if err != nil {
		return err
	}
	for _, w := range etl.NewValidator(a.cfg.PageSize).Check(res.Payload) {
		logger.Warnf("Payload check: %s", w)
	}
	fmt.Println(res.SnapshotPath)
	return nil
}

func runLoad(ctx context.Context, opts *LoadOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	payload, err := etl.ReadSnapshot(opts.Snapshot)
	if err != nil {
		return err
	}
	res, err := a.loader().Load(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Printf("Raw table version %d: %d rows, %d columns\n", res.Version, res.Rows, len(res.Columns))
	return nil
}

func showTable(ctx context.Context, out io.Writer, opts *TableOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if opts.History {
		commits, err := a.table.History()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "VERSION\tTIMESTAMP\tOPERATION\tMODE\tADDED\tREMOVED")
		for _, c := range commits {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", c.Version, c.Timestamp.UTC().Format(time.RFC3339), c.Operation, c.Mode, c.Added, c.Removed)
		}
		return nil
	}

	frame, err := a.table.ReadVersion(ctx, opts.Version)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		for i := 0; i < frame.NumRows() && i < opts.Limit; i++ {
			if err := enc.Encode(frame.Record(i)); err != nil {
				return err
			}
		}
		return nil
	}

	header := make([]string, len(frame.Columns))
	for i, c := range frame.Columns {
		header[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for i := 0; i < frame.NumRows() && i < opts.Limit; i++ {
		cells := make([]string, len(frame.Columns))
		for j, v := range frame.Rows[i] {
			if v == nil {
				cells[j] = "NULL"
				continue
			}
			cells[j] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(w, "(%d rows)\n", frame.NumRows())
	return nil
}

func listRuns(ctx context.Context, out io.Writer, opts *RunsOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.List(ctx, opts.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTRIGGER\tOWNER\tSTARTED\tDURATION\tSTATUS\tRECORDS\tVERSION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Trigger, r.Owner, r.StartedAt.UTC().Format(time.RFC3339), r.Duration().Round(time.Millisecond),
			r.Status, r.Records, r.TableVersion, r.Error)
	}
	return nil
}
