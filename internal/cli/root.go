package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leadq",
	Short: "Merge CRM lead exports into one deduplicated lead store",
	Long: `leadq imports CRM lead exports (CSV or JSON), merges each row into the
existing lead with the same id using per-field rules, and folds leads that
share a phone number into one record. It is pipe-friendly: every listing
supports --json, --ndjson, --yaml and --tsv.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides LEADQ_DB_PATH)")
}
