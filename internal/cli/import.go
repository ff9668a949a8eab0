package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/bulk"
	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/ingest"
	"github.com/onsitehq/leadq/internal/merge"
	"github.com/onsitehq/leadq/internal/render"
)

var importCmd = &cobra.Command{
	Use:     "import FILE...",
	Aliases: []string{"upload"},
	Short:   "Merge CRM export files into the lead store",
	Long: `Import reads each file (CSV, JSON array or NDJSON), merges its rows into
the stored leads, then folds leads that share a phone number.

Files are parsed in parallel and merged one at a time in the order given.
Use --dry-run to see what would change without writing anything, and
--diff with --dry-run to see field-level differences for updated leads.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runImport),
}

var (
	importSource          string
	importDryRun          bool
	importDiff            bool
	importJSON            bool
	importContinueOnError bool
	importJobs            int
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importSource, "source", "", "Source tag for new leads (default from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would change without writing")
	importCmd.Flags().BoolVar(&importDiff, "diff", false, "With --dry-run, print field diffs for updated leads")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Output summaries as JSON")
	importCmd.Flags().BoolVar(&importContinueOnError, "continue-on-error", false, "Keep importing after a file fails")
	importCmd.Flags().IntVarP(&importJobs, "jobs", "j", 0, "Parallel parse workers (0 = CPU count)")
}

// importResult is one file's outcome.
type importResult struct {
	File     string         `json:"file"`
	Warnings []string       `json:"warnings,omitempty"`
	Summary  *merge.Summary `json:"summary"`
	Changes  []merge.Change `json:"changes,omitempty"`
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	source := app.Config.Source(importSource)

	op := &bulk.Operation{
		Jobs:            importJobs,
		ContinueOnError: importContinueOnError,
		ShowProgress:    !importJSON,
		Out:             cmd.ErrOrStderr(),
	}

	var results []importResult
	res := bulk.ParseThenApply(ctx, op, args,
		func(_ context.Context, file string) ([]domain.Row, error) {
			return ingest.ReadFile(file)
		},
		func(ctx context.Context, file string, rows []domain.Row) error {
			r, err := importRows(ctx, app, file, rows, source)
			if err != nil {
				return err
			}
			results = append(results, *r)
			return nil
		})

	if importJSON {
		if err := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: render.FormatJSON}).RenderJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printImportResult(cmd.OutOrStdout(), r)
		}
	}

	if len(args) > 1 || res.Failed > 0 {
		res.PrintSummary(cmd.ErrOrStderr())
	}
	if code := res.ExitCode(); code != 0 {
		return exitError(code, fmt.Errorf("%d of %d file(s) failed", res.Failed, res.TotalItems))
	}
	return nil
}

// importRows merges (or plans) one parsed file.
func importRows(ctx context.Context, app *appctx.App, file string, rows []domain.Row, source string) (*importResult, error) {
	label := filepath.Base(file)
	r := &importResult{File: file, Warnings: ingest.Check(rows)}
	for _, w := range r.Warnings {
		app.Logger.WithField("file", label).Warn(w)
	}

	if importDryRun {
		plan, err := app.Engine.Plan(ctx, rows, label, source)
		if err != nil {
			return nil, err
		}
		r.Summary = plan.Summary
		r.Changes = plan.Changes
		return r, nil
	}

	sum, err := app.Engine.Upload(ctx, rows, label, source)
	if err != nil {
		return nil, err
	}
	app.AfterUpload(ctx, label, source, sum)
	r.Summary = sum
	return r, nil
}

func printImportResult(w io.Writer, r importResult) {
	s := r.Summary
	prefix := ""
	if s.DryRun {
		prefix = "(dry run) "
	}
	fmt.Fprintf(w, "%s%s: %d rows → %d new, %d updated, %d unchanged, %d skipped, %d duplicate, %d phone-merged (total %d, %dms)\n",
		prefix, r.File, s.TotalProcessed, s.NewLeads, s.UpdatedLeads, s.UnchangedLeads,
		s.SkippedRows, s.DuplicateRows, s.PhoneMerged, s.TotalAfterMerge, s.DurationMS)

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", warn)
	}
	if len(s.ChangesByField) > 0 {
		fmt.Fprintf(w, "  changed fields:")
		for i, fc := range s.ChangesByField {
			if i == 10 {
				fmt.Fprintf(w, " …")
				break
			}
			fmt.Fprintf(w, " %s=%d", fc.Field, fc.Count)
		}
		fmt.Fprintln(w)
	}
	for _, m := range s.PhoneMergeDetails {
		fmt.Fprintf(w, "  phone %s: kept %s (%s), merged %v\n", m.Phone, m.KeptLeadID, m.KeptName, m.MergedIDs)
	}

	if !importDiff {
		return
	}
	for _, c := range r.Changes {
		switch c.Kind {
		case merge.ChangeUpdate, merge.ChangeMerge:
			if text := leadDiff(c.Before, c.After); text != "" {
				fmt.Fprint(w, text)
			}
		case merge.ChangeInsert:
			fmt.Fprintf(w, "+ %s (new)\n", c.ExternalID)
		case merge.ChangeDelete:
			fmt.Fprintf(w, "- %s (merged away)\n", c.ExternalID)
		}
	}
}

// leadDiff renders a unified diff of two lead versions, one field per line.
func leadDiff(before, after *domain.Lead) string {
	if before == nil || after == nil {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        fieldLines(before),
		B:        fieldLines(after),
		FromFile: before.ExternalID + " (stored)",
		ToFile:   after.ExternalID + " (incoming)",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func fieldLines(l *domain.Lead) []string {
	names := l.FieldNames()
	lines := make([]string, 0, len(names)+1)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %q\n", name, l.Get(name)))
	}
	if len(l.MergedFrom) > 0 {
		merged := append([]string(nil), l.MergedFrom...)
		sort.Strings(merged)
		lines = append(lines, fmt.Sprintf("merged_from: %v\n", merged))
	}
	return lines
}
