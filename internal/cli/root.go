// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "breweries",
		Short: "breweries - Open Brewery DB ingestion pipeline",
		Long: `breweries fetches the brewery list from the Open Brewery DB API, lands the
raw response in the bronze layer, overwrites the raw table with it and runs
the dbt project that builds the silver and gold layers.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewRunCmd(),
		NewScheduleCmd(),
		NewFetchCmd(),
		NewLoadCmd(),
		NewTableCmd(),
		NewRunsCmd(),
	)

	return rootCmd
}
