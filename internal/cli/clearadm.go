package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
)

var clearAdmCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored lead and all upload history",
	Long: `Clear wipes leads, upload history and phone merge history. The event
log keeps a system.cleared entry. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runClearAdm),
}

var clearYes bool

func init() {
	rootAdmCmd.AddCommand(clearAdmCmd)
	clearAdmCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deleting all data")
}

func runClearAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if !clearYes {
		return exitError(2, fmt.Errorf("refusing to delete all data without --yes"))
	}

	n, err := app.Store.Count(cmd.Context())
	if err != nil {
		return err
	}
	if err := app.Store.Clear(cmd.Context()); err != nil {
		return exitError(1, fmt.Errorf("failed to clear data: %w", err))
	}
	app.AfterClear(cmd.Context())
	app.Logger.WithField("leads", n).Info("data cleared")

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %d lead(s) and all upload history\n", n)
	return nil
}
