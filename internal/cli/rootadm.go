package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "leadqadm",
	Short: "Administrative CLI for the leadq database lifecycle",
	Long: `leadqadm is the administrative companion to leadq. It creates and
migrates the database and wipes stored leads and history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Path to database file (overrides LEADQ_DB_PATH)")
}
