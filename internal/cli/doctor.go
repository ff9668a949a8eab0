package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/insights"
	"github.com/onsitehq/leadq/internal/render"
)

var (
	doctorJSON    bool
	doctorVerbose bool
)

type checkResult struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type doctorReport struct {
	Version       string        `json:"version"`
	Backend       string        `json:"backend"`
	DBPath        string        `json:"db_path,omitempty"`
	Checks        []checkResult `json:"checks"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	OverallStatus string        `json:"overall_status"`
}

// newDoctorCmd builds the doctor command; leadq and leadqadm each get one.
func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check database health and configuration",
		Long:  `Performs health checks on configuration, the SQLite database and schema, stored lead invariants, and the summary cache.`,
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
	cmd.Flags().BoolVar(&doctorJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "Verbose output")
	return cmd
}

func init() {
	rootCmd.AddCommand(newDoctorCmd())
	rootAdmCmd.AddCommand(newDoctorCmd())
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}

	report := buildDoctorReport(cmd.Context(), cfg)

	if doctorJSON {
		if err := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: render.FormatJSON}).RenderJSON(report); err != nil {
			return err
		}
	} else {
		printHumanReport(cmd.OutOrStdout(), report)
	}

	if report.Errors > 0 {
		return exitError(1, fmt.Errorf("doctor found %d error(s)", report.Errors))
	}
	return nil
}

func buildDoctorReport(ctx context.Context, cfg *config.Config) *doctorReport {
	report := &doctorReport{
		Version:       Version,
		Backend:       cfg.Backend,
		Checks:        []checkResult{},
		OverallStatus: "ok",
	}

	if cfg.Backend == "" || cfg.Backend == "sqlite" {
		report.DBPath = cfg.DBPath
		report.Checks = append(report.Checks, checkDatabaseFile(cfg.DBPath)...)

		database, err := db.Open(cfg.DBPath)
		if err == nil {
			defer database.Close()
			report.Checks = append(report.Checks, checkDatabasePragmas(database)...)
			report.Checks = append(report.Checks, checkSchema(database)...)
			report.Checks = append(report.Checks, checkDataIntegrity(database)...)
			report.Checks = append(report.Checks, checkPerformance(database)...)
		} else {
			report.Checks = append(report.Checks, checkResult{
				Name:    "database_open",
				Status:  "error",
				Message: fmt.Sprintf("Failed to open database: %v", err),
			})
		}
	} else {
		report.Checks = append(report.Checks, checkResult{
			Name:    "backend",
			Status:  "ok",
			Message: fmt.Sprintf("Backend %s (file checks skipped)", cfg.Backend),
		})
	}

	report.Checks = append(report.Checks, checkCache(ctx, cfg)...)

	// Count warnings and errors
	for _, check := range report.Checks {
		if check.Status == "warning" {
			report.Warnings++
		} else if check.Status == "error" {
			report.Errors++
			report.OverallStatus = "error"
		}
	}

	if report.Warnings > 0 && report.OverallStatus == "ok" {
		report.OverallStatus = "warning"
	}
	return report
}

func checkDatabaseFile(dbPath string) []checkResult {
	var results []checkResult

	// Check file exists
	info, err := os.Stat(dbPath)
	if err != nil {
		results = append(results, checkResult{
			Name:    "db_file_exists",
			Status:  "error",
			Message: fmt.Sprintf("Database file not found: %s", dbPath),
			Details: []string{"Run 'leadqadm init' to create it"},
		})
		return results
	}

	results = append(results, checkResult{
		Name:    "db_file_exists",
		Status:  "ok",
		Message: fmt.Sprintf("Database file: %s (%.1f MB)", dbPath, float64(info.Size())/(1024*1024)),
	})

	// Check file is readable/writable
	f, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		results = append(results, checkResult{
			Name:    "db_file_permissions",
			Status:  "error",
			Message: fmt.Sprintf("Database file not writable: %v", err),
		})
	} else {
		f.Close()
		results = append(results, checkResult{
			Name:    "db_file_permissions",
			Status:  "ok",
			Message: "Database file is readable and writable",
		})
	}

	return results
}

func checkDatabasePragmas(database *db.DB) []checkResult {
	var results []checkResult

	// Check WAL mode
	var journalMode string
	database.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if journalMode == "wal" {
		results = append(results, checkResult{
			Name:    "wal_mode",
			Status:  "ok",
			Message: "WAL mode enabled",
		})
	} else {
		results = append(results, checkResult{
			Name:    "wal_mode",
			Status:  "warning",
			Message: fmt.Sprintf("WAL mode not enabled (current: %s)", journalMode),
			Details: []string{"Run 'PRAGMA journal_mode=WAL' to enable"},
		})
	}

	// Check foreign keys
	var foreignKeys int
	database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
	if foreignKeys == 1 {
		results = append(results, checkResult{
			Name:    "foreign_keys",
			Status:  "ok",
			Message: "Foreign keys enabled",
		})
	} else {
		results = append(results, checkResult{
			Name:    "foreign_keys",
			Status:  "error",
			Message: "Foreign keys not enabled",
			Details: []string{"Phone merge history would not follow deleted batches"},
		})
	}

	// Check integrity
	var integrityCheck string
	database.QueryRow("PRAGMA integrity_check").Scan(&integrityCheck)
	if integrityCheck == "ok" {
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  "ok",
			Message: "Database integrity check passed",
		})
	} else {
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  "error",
			Message: fmt.Sprintf("Database integrity check failed: %s", integrityCheck),
			Details: []string{"Database may be corrupted", "Restore from backup recommended"},
		})
	}

	return results
}

var requiredTables = []string{"leads", "upload_history", "phone_merges", "event_log"}

func checkSchema(database *db.DB) []checkResult {
	var missingTables []string
	for _, table := range requiredTables {
		var count int
		err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil || count == 0 {
			missingTables = append(missingTables, table)
		}
	}

	if len(missingTables) > 0 {
		return []checkResult{{
			Name:    "schema_tables",
			Status:  "error",
			Message: fmt.Sprintf("Missing tables: %v", missingTables),
			Details: []string{"Run 'leadqadm migrate' to create missing tables"},
		}}
	}

	results := []checkResult{{
		Name:    "schema_tables",
		Status:  "ok",
		Message: fmt.Sprintf("All required tables present (%d/%d)", len(requiredTables), len(requiredTables)),
	}}

	_, pending, err := database.MigrationStatus()
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "migrations", Status: "error", Message: fmt.Sprintf("Failed to read migration status: %v", err)})
	case len(pending) > 0:
		results = append(results, checkResult{
			Name:    "migrations",
			Status:  "warning",
			Message: fmt.Sprintf("%d pending migration(s)", len(pending)),
			Details: pending,
		})
	default:
		results = append(results, checkResult{Name: "migrations", Status: "ok", Message: "Schema is up to date"})
	}
	return results
}

// checkDataIntegrity verifies the invariants uploads maintain: at most one
// lead per ten-digit phone, absorbed ids never stored as leads, and merge
// history pointing at recorded batches.
func checkDataIntegrity(database *db.DB) []checkResult {
	var results []checkResult

	var sharedPhones int
	database.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT phone_normalized
			FROM leads
			WHERE length(phone_normalized) = 10
			GROUP BY phone_normalized
			HAVING COUNT(*) > 1
		)
	`).Scan(&sharedPhones)

	if sharedPhones == 0 {
		results = append(results, checkResult{
			Name:    "shared_phones",
			Status:  "ok",
			Message: "No two leads share a phone number",
		})
	} else {
		results = append(results, checkResult{
			Name:    "shared_phones",
			Status:  "warning",
			Message: fmt.Sprintf("%d phone numbers are shared by several leads", sharedPhones),
			Details: []string{"The next import folds them into one lead each"},
		})
	}

	var aliasIDs []string
	rows, err := database.Query(`SELECT merged_from FROM leads WHERE merged_from != ''`)
	if err == nil {
		for rows.Next() {
			var merged string
			if rows.Scan(&merged) == nil {
				for _, id := range strings.Split(merged, ",") {
					if id = strings.TrimSpace(id); id != "" {
						aliasIDs = append(aliasIDs, id)
					}
				}
			}
		}
		rows.Close()
	}
	var live []string
	for _, id := range aliasIDs {
		var n int
		database.QueryRow(`SELECT COUNT(*) FROM leads WHERE external_id = ?`, id).Scan(&n)
		if n > 0 {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		results = append(results, checkResult{
			Name:    "absorbed_ids",
			Status:  "ok",
			Message: fmt.Sprintf("%d absorbed ids, none stored as leads", len(aliasIDs)),
		})
	} else {
		results = append(results, checkResult{
			Name:    "absorbed_ids",
			Status:  "error",
			Message: fmt.Sprintf("%d absorbed ids are still stored as leads", len(live)),
			Details: live,
		})
	}

	var orphanMerges int
	database.QueryRow(`
		SELECT COUNT(*) FROM phone_merges
		WHERE batch_id NOT IN (SELECT id FROM upload_history)
	`).Scan(&orphanMerges)
	if orphanMerges == 0 {
		results = append(results, checkResult{
			Name:    "orphaned_merges",
			Status:  "ok",
			Message: "No orphaned phone merge records",
		})
	} else {
		results = append(results, checkResult{
			Name:    "orphaned_merges",
			Status:  "warning",
			Message: fmt.Sprintf("%d phone merges reference unknown batches", orphanMerges),
		})
	}

	return results
}

func checkPerformance(database *db.DB) []checkResult {
	var results []checkResult

	var leads, uploads, merges int
	database.QueryRow("SELECT COUNT(*) FROM leads").Scan(&leads)
	database.QueryRow("SELECT COUNT(*) FROM upload_history").Scan(&uploads)
	database.QueryRow("SELECT COUNT(*) FROM phone_merges").Scan(&merges)

	results = append(results, checkResult{
		Name:    "lead_counts",
		Status:  "ok",
		Message: fmt.Sprintf("%d leads, %d uploads, %d phone merges", leads, uploads, merges),
	})

	// Database size
	var pageCount, pageSize int64
	database.QueryRow("PRAGMA page_count").Scan(&pageCount)
	database.QueryRow("PRAGMA page_size").Scan(&pageSize)
	dbSize := pageCount * pageSize

	results = append(results, checkResult{
		Name:    "database_size",
		Status:  "ok",
		Message: fmt.Sprintf("Database size: %.1f MB (%d pages)", float64(dbSize)/(1024*1024), pageCount),
	})

	return results
}

func checkCache(ctx context.Context, cfg *config.Config) []checkResult {
	if cfg.RedisURL == "" {
		return []checkResult{{
			Name:    "summary_cache",
			Status:  "ok",
			Message: "Summary cache disabled (no redis_url)",
		}}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ttl, _ := cfg.SummaryTTLDuration()
	cache, err := insights.NewRedisCache(cfg.RedisURL, ttl)
	if err != nil {
		return []checkResult{{
			Name:    "summary_cache",
			Status:  "warning",
			Message: fmt.Sprintf("Summary cache unreachable: %v", err),
			Details: []string{"Summaries are still computed, just not cached"},
		}}
	}
	defer cache.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		return []checkResult{{Name: "summary_cache", Status: "warning", Message: fmt.Sprintf("Summary cache ping failed: %v", err)}}
	}
	return []checkResult{{Name: "summary_cache", Status: "ok", Message: fmt.Sprintf("Summary cache reachable (ttl %s)", ttl)}}
}

var doctorCategories = []struct {
	title string
	names []string
}{
	{"Database File", []string{"db_file_exists", "db_file_permissions", "database_open", "backend"}},
	{"Database Health", []string{"wal_mode", "foreign_keys", "integrity_check"}},
	{"Schema", []string{"schema_tables", "migrations"}},
	{"Lead Integrity", []string{"shared_phones", "absorbed_ids", "orphaned_merges"}},
	{"Size", []string{"lead_counts", "database_size"}},
	{"Cache", []string{"summary_cache"}},
}

func printHumanReport(w io.Writer, report *doctorReport) {
	fmt.Fprintf(w, "leadq doctor %s\n\n", report.Version)
	if report.DBPath != "" {
		fmt.Fprintf(w, "Database: %s\n\n", report.DBPath)
	} else {
		fmt.Fprintf(w, "Backend: %s\n\n", report.Backend)
	}

	byName := make(map[string]checkResult, len(report.Checks))
	for _, check := range report.Checks {
		byName[check.Name] = check
	}

	for _, category := range doctorCategories {
		var checks []checkResult
		for _, name := range category.names {
			if c, ok := byName[name]; ok {
				checks = append(checks, c)
			}
		}
		if len(checks) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s\n", category.title)
		for _, check := range checks {
			icon := "✓"
			if check.Status == "warning" {
				icon = "⚠"
			} else if check.Status == "error" {
				icon = "✗"
			}

			fmt.Fprintf(w, "  %s %s\n", icon, check.Message)

			if doctorVerbose && len(check.Details) > 0 {
				for _, detail := range check.Details {
					fmt.Fprintf(w, "      %s\n", detail)
				}
			}
		}
		fmt.Fprintln(w)
	}

	// Summary
	if report.Errors > 0 {
		fmt.Fprintf(w, "Summary: %d error(s), %d warning(s)\n", report.Errors, report.Warnings)
	} else if report.Warnings > 0 {
		fmt.Fprintf(w, "Summary: %d warning(s)\n", report.Warnings)
	} else {
		fmt.Fprintf(w, "Summary: All checks passed ✓\n")
	}

	if !doctorVerbose && (report.Warnings > 0 || report.Errors > 0) {
		fmt.Fprintf(w, "\nRun with --verbose for detailed information\n")
	}
}
