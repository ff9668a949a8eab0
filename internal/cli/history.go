package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/events"
	"github.com/onsitehq/leadq/internal/render"
)

var uploadsCmd = &cobra.Command{
	Use:     "uploads",
	Aliases: []string{"history"},
	Short:   "List recorded upload batches, newest first",
	Args:    cobra.NoArgs,
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runUploads),
}

var (
	uploadsOutput outputFlags
	uploadsLimit  int
)

func init() {
	rootCmd.AddCommand(uploadsCmd)
	addOutputFlags(uploadsCmd, &uploadsOutput)
	uploadsCmd.Flags().IntVar(&uploadsLimit, "limit", 20, "Maximum number of batches (0 = all)")
}

func runUploads(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := uploadsOutput.renderer(app, cmd)
	if err != nil {
		return err
	}
	batches, err := app.Store.ListUploads(cmd.Context(), uploadsLimit)
	if err != nil {
		return err
	}

	listing := render.Listing{Headers: []string{"ID", "FILE", "SOURCE", "UPLOADED", "ROWS", "NEW", "UPDATED", "UNCHANGED", "SKIPPED", "MERGED", "TOTAL"}}
	for _, b := range batches {
		listing.Rows = append(listing.Rows, []string{
			b.ID, b.FileName, b.Source, db.FormatTime(b.UploadedAt),
			strconv.Itoa(b.TotalRows), strconv.Itoa(b.NewLeads), strconv.Itoa(b.UpdatedLeads),
			strconv.Itoa(b.UnchangedLeads), strconv.Itoa(b.SkippedRows), strconv.Itoa(b.PhoneMerged),
			strconv.Itoa(b.TotalAfter),
		})
		listing.Items = append(listing.Items, b)
	}
	if batches == nil {
		batches = []*domain.UploadBatch{}
	}
	return r.Render(listing, batches)
}

var mergesCmd = &cobra.Command{
	Use:   "merges",
	Short: "List recorded phone merges, newest first",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runMerges),
}

var (
	mergesOutput outputFlags
	mergesLimit  int
)

func init() {
	rootCmd.AddCommand(mergesCmd)
	addOutputFlags(mergesCmd, &mergesOutput)
	mergesCmd.Flags().IntVar(&mergesLimit, "limit", 50, "Maximum number of merges (0 = all)")
}

func runMerges(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := mergesOutput.renderer(app, cmd)
	if err != nil {
		return err
	}
	merges, err := app.Store.ListPhoneMerges(cmd.Context(), mergesLimit)
	if err != nil {
		return err
	}

	listing := render.Listing{Headers: []string{"PHONE", "KEPT", "NAME", "MERGED", "IDS", "BATCH", "AT"}}
	for _, m := range merges {
		listing.Rows = append(listing.Rows, []string{
			m.Phone, m.KeptLeadID, m.KeptName, strconv.Itoa(m.MergedCount),
			strings.Join(m.MergedIDs, ","), m.BatchID, db.FormatTime(m.CreatedAt),
		})
		listing.Items = append(listing.Items, m)
	}
	if merges == nil {
		merges = []*domain.PhoneMerge{}
	}
	return r.Render(listing, merges)
}

var logCmd = &cobra.Command{
	Use:   "log [ID]",
	Short: "Show the event log, optionally for one lead",
	Long: `Shows lead creations, updates, phone merges, deletions and recorded
batches from the event log, newest first. Only the sqlite backend keeps
an event log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logOutput outputFlags
	logBatch  string
	logType   string
	logLimit  int
)

func init() {
	rootCmd.AddCommand(logCmd)
	addOutputFlags(logCmd, &logOutput)
	logCmd.Flags().StringVar(&logBatch, "batch", "", "Only events from this upload batch")
	logCmd.Flags().StringVar(&logType, "type", "", "Only events of this type (e.g. lead.updated)")
	logCmd.Flags().IntVar(&logLimit, "limit", 100, "Maximum number of events (0 = all)")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.SQLite == nil {
		return exitError(2, fmt.Errorf("the event log is only kept by the sqlite backend (current: %s)", app.Config.Backend))
	}
	r, err := logOutput.renderer(app, cmd)
	if err != nil {
		return err
	}

	filter := events.Filter{BatchID: logBatch, EventType: logType, Limit: logLimit}
	if len(args) == 1 {
		filter.ResourceID = args[0]
	}
	evs, err := app.SQLite.Events().List(filter)
	if err != nil {
		return err
	}

	listing := render.Listing{Headers: []string{"AT", "TYPE", "RESOURCE", "BATCH", "PAYLOAD"}}
	for _, e := range evs {
		listing.Rows = append(listing.Rows, []string{
			db.FormatTime(e.Timestamp), e.EventType, deref(e.ResourceID), deref(e.BatchID), deref(e.Payload),
		})
		listing.Items = append(listing.Items, e)
	}
	if evs == nil {
		evs = []*domain.Event{}
	}
	return r.Render(listing, evs)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
