package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the declarative definition of the scheduled pipeline.
type Pipeline struct {
	DagID       string      `yaml:"dag_id"`
	Schedule    string      `yaml:"schedule"`
	Catchup     bool        `yaml:"catchup"`
	DefaultArgs DefaultArgs `yaml:"default_args"`
	Transform   Transform   `yaml:"transform"`
}

// DefaultArgs apply to every task unless the task overrides them.
type DefaultArgs struct {
	Owner      string `yaml:"owner"`
	Retries    int    `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`
}

// Transform configures the external dbt task group.
type Transform struct {
	GroupID     string   `yaml:"group_id"`
	ProfileName string   `yaml:"profile_name"`
	TargetName  string   `yaml:"target_name"`
	ProfilesDir string   `yaml:"profiles_dir"`
	ProjectDir  string   `yaml:"project_dir"`
	Executable  string   `yaml:"executable"`
	Command     string   `yaml:"command"`
	ExtraArgs   []string `yaml:"extra_args"`
	Retries     int      `yaml:"retries"`
}

// DefaultPipeline returns the built-in definition: a daily run, no
// catch-up, three retries five minutes apart, dbt retried twice.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		DagID:    "breweries_data_pipeline",
		Schedule: "@daily",
		Catchup:  false,
		DefaultArgs: DefaultArgs{
			Owner:      "data-platform",
			Retries:    3,
			RetryDelay: "5m",
		},
		Transform: Transform{
			GroupID:     "transform_data",
			ProfileName: "dbt_cosmos",
			TargetName:  "dev",
			ProfilesDir: "dbt_cosmos",
			ProjectDir:  "dbt_cosmos",
			Executable:  "dbt",
			Command:     "build",
			Retries:     2,
		},
	}
}

// LoadPipeline reads and parses the pipeline definition at filePath.
// Fields missing from the file keep their DefaultPipeline values.
func LoadPipeline(filePath string) (*Pipeline, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file '%s': %w", filePath, err)
	}

	p := DefaultPipeline()
	if err := yaml.Unmarshal(bytes, p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file '%s': %w", filePath, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline file '%s': %w", filePath, err)
	}
	return p, nil
}

func (p *Pipeline) Validate() error {
	if p.DagID == "" {
		return errors.New("dag_id is required")
	}
	if p.Schedule == "" {
		return errors.New("schedule is required")
	}
	if p.Catchup {
		return errors.New("catchup is not supported")
	}
	if p.DefaultArgs.Retries < 0 || p.Transform.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	if _, err := p.RetryDelay(); err != nil {
		return err
	}
	if p.Transform.Executable == "" || p.Transform.ProjectDir == "" {
		return errors.New("transform.executable and transform.project_dir are required")
	}
	return nil
}

// RetryDelay parses default_args.retry_delay.
func (p *Pipeline) RetryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(p.DefaultArgs.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("retry_delay: %w", err)
	}
	if d < 0 {
		return 0, errors.New("retry_delay must not be negative")
	}
	return d, nil
}
