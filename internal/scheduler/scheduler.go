// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BartekS5/breweries/pkg/logger"
)

// Trigger starts one run. It is called from the cron goroutine.
type Trigger func(ctx context.Context) error

// Scheduler fires Trigger once per schedule tick, in UTC. Missed ticks are
// not back-filled and a tick that fires while the previous run is still
// going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	ctx     context.Context
	trigger Trigger
}

// New parses spec (standard five-field cron or a descriptor like @daily).
func New(ctx context.Context, spec string, trigger Trigger) (*Scheduler, error) {
	log := cronLogger{sugar: logger.Sugared()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	s := &Scheduler{cron: c, spec: spec, ctx: ctx, trigger: trigger}
	id, err := c.AddFunc(spec, s.fire)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) fire() {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.trigger(s.ctx); err != nil {
		logger.Errorf("Scheduled run failed: %v", err)
	}
}

func (s *Scheduler) Start() {
	logger.Infof("Scheduler started (%s), next run at %s", s.spec, s.Next().Format(time.RFC3339))
	s.cron.Start()
}

// Stop prevents new runs and waits for a running one to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Scheduler stopped")
}

// Next returns the next activation time.
func (s *Scheduler) Next() time.Time {
	if e := s.cron.Entry(s.entry); !e.Next.IsZero() {
		return e.Next
	}
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now().UTC())
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
