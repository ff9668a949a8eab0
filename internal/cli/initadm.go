package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/db"
)

var initAdmCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the leadq database",
	Long: `Initialize creates the SQLite database and runs migrations. Running it
against an existing database only applies pending migrations.

For the postgres backend use 'leadqadm migrate' instead.`,
	Args: cobra.NoArgs,
	RunE: runInitAdm,
}

func init() {
	rootAdmCmd.AddCommand(initAdmCmd)
}

func runInitAdm(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}

	// Override DB path from flag if provided
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cfg.Backend != "" && cfg.Backend != "sqlite" {
		return exitError(2, fmt.Errorf("init only manages sqlite databases (backend: %s)", cfg.Backend))
	}

	// Check if database already exists
	dbExists := false
	if _, err := os.Stat(cfg.DBPath); err == nil {
		dbExists = true
	}

	// Open database (creates file if it doesn't exist)
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	out := cmd.OutOrStdout()
	if !dbExists {
		fmt.Fprintf(out, "✓ Initialized new database at %s\n", cfg.DBPath)
		fmt.Fprintf(out, "✓ Applied %d migration(s)\n", len(applied))
	} else {
		fmt.Fprintf(out, "✓ Database already initialized at %s\n", cfg.DBPath)
		fmt.Fprintf(out, "✓ Migrations applied (%d new)\n", len(applied))
	}

	return nil
}
