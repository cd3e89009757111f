package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	return newRootCmd(DefaultJob())
}

func newRootCmd(job Job) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jaffle-shop",
		Short: "Load the Jaffle Shop REST API into DuckDB",
		Long: `jaffle-shop extracts orders, customers and products from the Jaffle Shop
REST API and loads them into the rest_api_data dataset of a local DuckDB
database. Orders are loaded incrementally by ordered_at and only orders above
500 are kept; customers and products are merged by their keys.

Engine settings are read from the environment (or a .env file), e.g.
EXTRACT__WORKERS, NORMALIZE__WORKERS, LOAD__WORKERS and
DESTINATION__DUCKDB__CREDENTIALS.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), job)
		},
	}

	return rootCmd
}
