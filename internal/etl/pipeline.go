package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/breweries/pkg/logger"
	"github.com/BartekS5/breweries/pkg/models"
)

// RetryPolicy bounds how often a failed step is re-attempted. Retries counts
// attempts after the first one.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// Step is one named unit of work. Build steps with NewStep so the input and
// output types are checked where the step is declared.
type Step struct {
	Name  string
	Retry RetryPolicy
	run   func(ctx context.Context, in any) (any, error)
}

// NewStep wraps a typed function as a step. The pipeline feeds it the
// previous step's output.
func NewStep[I, O any](name string, retry RetryPolicy, fn func(context.Context, I) (O, error)) Step {
	return Step{
		Name:  name,
		Retry: retry,
		run: func(ctx context.Context, in any) (any, error) {
			var typed I
			if in != nil {
				v, ok := in.(I)
				if !ok {
					return nil, fmt.Errorf("step %s: unexpected input type %T", name, in)
				}
				typed = v
			}
			return fn(ctx, typed)
		},
	}
}

// StepError identifies which step stopped the pipeline.
type StepError struct {
	Step     string
	Index    int
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed after %d attempt(s): %v", e.Index+1, e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepObserver is told about every attempt.
type StepObserver func(step string, attempt int, d time.Duration, err error)

// Result is what a pipeline run produced, including the steps it reached.
type Result struct {
	Steps   []models.StepResult
	Outputs map[string]any
}

// Pipeline runs its steps strictly in order; a step starts only after the
// previous one succeeded.
type Pipeline struct {
	Name     string
	Steps    []Step
	Observer StepObserver

	wait func(ctx context.Context, d time.Duration) error
}

func NewPipeline(name string, steps ...Step) *Pipeline {
	return &Pipeline{Name: name, Steps: steps, wait: sleepContext}
}

func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{Outputs: make(map[string]any, len(p.Steps))}
	var in any

	for i, step := range p.Steps {
		logger.Infof("[%s] Starting step %s", p.Name, step.Name)
		started := time.Now()
		out, attempts, err := p.runStep(ctx, step, in)

		sr := models.StepResult{Name: step.Name, Attempts: attempts, Duration: time.Since(started)}
		if err != nil {
			sr.Error = err.Error()
			res.Steps = append(res.Steps, sr)
			logger.Errorf("[%s] Step %s failed after %d attempt(s): %v", p.Name, step.Name, attempts, err)
			return res, &StepError{Step: step.Name, Index: i, Attempts: attempts, Err: err}
		}
		res.Steps = append(res.Steps, sr)
		res.Outputs[step.Name] = out
		in = out
	}
	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, in any) (any, int, error) {
	for attempt := 1; ; attempt++ {
		started := time.Now()
		out, err := step.run(ctx, in)
		if p.Observer != nil {
			p.Observer(step.Name, attempt, time.Since(started), err)
		}
		if err == nil {
			return out, attempt, nil
		}
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			return nil, attempt, errors.Join(err, cerr)
		}
		if attempt > step.Retry.Retries || ctx.Err() != nil {
			return nil, attempt, err
		}

		logger.Warnf("[%s] Step %s attempt %d failed: %v; retrying in %s", p.Name, step.Name, attempt, err, step.Retry.Delay)
		wait := p.wait
		if wait == nil {
			wait = sleepContext
		}
		if werr := wait(ctx, step.Retry.Delay); werr != nil {
			return nil, attempt, errors.Join(err, werr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
