package cli

import (
	"github.com/spf13/cobra"
)

type RunOptions struct {
	SkipTransform bool
}

type LoadOptions struct {
	Snapshot string
}

type TableOptions struct {
	History bool
	JSON    bool
	Version int64
	Limit   int
}

type RunsOptions struct {
	Limit int
}

// NewRunCmd runs the whole pipeline once.
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run fetch, load and transform once",
		RunE: func(c *cobra.Command, args []string) error {
			return runPipeline(c.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipTransform, "skip-transform", false, "Stop after the raw table is written")
	return cmd
}

// NewScheduleCmd runs the pipeline on its cron schedule until interrupted.
func NewScheduleCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on its schedule and serve metrics",
		RunE: func(c *cobra.Command, args []string) error {
			return runSchedule(c.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipTransform, "skip-transform", false, "Stop each run after the raw table is written")
	return cmd
}

func NewFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the API response into the bronze layer only",
		RunE: func(c *cobra.Command, args []string) error {
			return runFetch(c.Context())
		},
	}
}

func NewLoadCmd() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Overwrite the raw table from a bronze snapshot",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Snapshot, "snapshot", "s", "", "Path to a raw_data_*.json snapshot")
	cmd.MarkFlagRequired("snapshot")
	return cmd
}

func NewTableCmd() *cobra.Command {
	opts := &TableOptions{}

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show the raw table schema, contents or commit history",
		RunE: func(c *cobra.Command, args []string) error {
			return showTable(c.Context(), c.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "List commits instead of rows")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print rows as JSON lines")
	cmd.Flags().Int64VarP(&opts.Version, "version", "v", -1, "Read this version instead of the latest")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of rows to print")
	return cmd
}

func NewRunsCmd() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs, most recent first",
		RunE: func(c *cobra.Command, args []string) error {
			return listRuns(c.Context(), c.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "Maximum number of runs to list")
	return cmd
}
