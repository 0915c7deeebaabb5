package etl

import (
	"context"

	"github.com/BartekS5/breweries/pkg/logger"
)

// Step names, in execution order.
const (
	StepFetch     = "fetch_breweries_data"
	StepLoad      = "create_raw_table"
	StepTransform = "transform_data"
)

// DagConfig wires the brewery steps together.
type DagConfig struct {
	Name           string
	Extractor      Extractor
	Loader         Loader
	Transformer    Transformer // nil leaves the transform step out
	Validator      *Validator  // nil skips payload warnings
	TaskRetry      RetryPolicy
	TransformRetry RetryPolicy
}

// NewBreweriesPipeline builds fetch -> load -> transform.
func NewBreweriesPipeline(cfg DagConfig) *Pipeline {
	fetch := NewStep(StepFetch, cfg.TaskRetry, func(ctx context.Context, _ struct{}) (*FetchResult, error) {
		res, err := cfg.Extractor.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.Validator != nil {
			for _, w := range cfg.Validator.Check(res.Payload) {
				logger.Warnf("Payload check: %s", w)
			}
		}
		return res, nil
	})

	load := NewStep(StepLoad, cfg.TaskRetry, func(ctx context.Context, in *FetchResult) (*LoadResult, error) {
		return cfg.Loader.Load(ctx, in.Payload)
	})

	steps := []Step{fetch, load}
	if cfg.Transformer != nil {
		steps = append(steps, NewStep(StepTransform, cfg.TransformRetry, func(ctx context.Context, in *LoadResult) (*LoadResult, error) {
			if err := cfg.Transformer.Transform(ctx); err != nil {
				return nil, err
			}
			return in, nil
		}))
	}
	return NewPipeline(cfg.Name, steps...)
}
