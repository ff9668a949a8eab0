package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/store/postgres"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending database migrations",
	Long: `Migrate applies any pending SQL migrations to the database.

Migrations are embedded in the leadq binaries and tracked via the schema_migrations
table. Each migration file (e.g., 000001_baseline.sql) is applied exactly once.

This command is safe to run multiple times - it only applies migrations that
haven't been applied yet.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	RunE: runMigrateAdm,
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateAdmCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrateAdm(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}

	// Use database path from flag if provided
	dbPathFlag := cmd.Flag("db").Value.String()
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}

	if cfg.Backend == "postgres" {
		return migratePostgres(cmd, cfg)
	}

	if cfg.DBPath == "" {
		return exitError(2, fmt.Errorf("database path not specified (use --db flag or set LEADQ_DB_PATH)"))
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	out := cmd.OutOrStdout()

	// Handle --status flag
	if migrateStatus {
		return showMigrationStatus(out, database)
	}

	// Handle --dry-run flag
	if migrateDryRun {
		return showPendingMigrations(out, database)
	}

	// Run migrations
	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date. No migrations to apply.")
	} else {
		for _, m := range applied {
			fmt.Fprintf(out, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(out, "\nApplied %d migration(s).\n", len(applied))
	}

	return nil
}

func showMigrationStatus(out io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	if len(applied) > 0 {
		fmt.Fprintln(out, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(out, "  ○ %s\n", m)
		}
	}

	return nil
}

func showPendingMigrations(out io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return nil
	}

	fmt.Fprintln(out, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(out, "  ○ %s\n", m)
	}
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))

	return nil
}

// migratePostgres applies the idempotent Postgres schema. It has no
// versioned history, so --status and --dry-run only report that.
func migratePostgres(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	if migrateStatus || migrateDryRun {
		fmt.Fprintln(out, "Postgres schema is applied idempotently; run without flags to apply it.")
		return nil
	}

	st, err := postgres.Open(cmd.Context(), cfg.PostgresURL)
	if err != nil {
		return exitError(1, err)
	}
	defer st.Close()

	if err := st.EnsureSchema(cmd.Context()); err != nil {
		return exitError(1, fmt.Errorf("failed to apply postgres schema: %w", err))
	}
	fmt.Fprintln(out, "✓ Postgres schema is up to date")
	return nil
}
