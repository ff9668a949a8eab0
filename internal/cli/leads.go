package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/render"
	"github.com/onsitehq/leadq/internal/store"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored leads",
	Long:    `Lists stored leads ordered by id (default) or by last update, newest first.`,
	Args:    cobra.NoArgs,
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var (
	lsOutput outputFlags
	lsLimit  int
	lsCursor string
	lsSort   string
	lsStatus string
	lsSource string
)

func init() {
	rootCmd.AddCommand(lsCmd)

	addOutputFlags(lsCmd, &lsOutput)
	lsCmd.Flags().IntVar(&lsLimit, "limit", 0, "Maximum number of results to return (0 = no limit)")
	lsCmd.Flags().StringVar(&lsCursor, "cursor", "", "Pagination cursor from previous page")
	lsCmd.Flags().StringVar(&lsSort, "sort", store.SortByID, "Sort order: id or updated")
	lsCmd.Flags().StringVar(&lsStatus, "status", "", "Only leads with this lead_status")
	lsCmd.Flags().StringVar(&lsSource, "source", "", "Only leads with this source tag")
}

// leadPage is the json/yaml envelope for one page of leads.
type leadPage struct {
	Leads      []*domain.Lead `json:"leads" yaml:"leads"`
	NextCursor string         `json:"next_cursor,omitempty" yaml:"next_cursor,omitempty"`
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := lsOutput.renderer(app, cmd)
	if err != nil {
		return err
	}

	leads, next, err := app.Store.ListLeads(cmd.Context(), store.ListOptions{
		Limit:  lsLimit,
		Cursor: lsCursor,
		Sort:   lsSort,
		Status: lsStatus,
		Source: lsSource,
	})
	if err != nil {
		return exitError(2, err)
	}

	listing := render.Listing{Headers: []string{"ID", "NAME", "STATUS", "STAGE", "PHONE", "SOURCE", "UPDATED"}}
	for _, l := range leads {
		listing.Rows = append(listing.Rows, []string{
			l.ExternalID, l.Name(), l.Status(), l.Stage(), l.Get(domain.FieldPhone), l.Source, db.FormatTime(l.LastUpdated),
		})
		listing.Items = append(listing.Items, l)
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}
	if err := r.Render(listing, leadPage{Leads: leads, NextCursor: next}); err != nil {
		return err
	}

	if next != "" && !lsOutput.json && !lsOutput.yaml {
		fmt.Fprintf(cmd.ErrOrStderr(), "next cursor: %s\n", next)
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:     "show ID",
	Aliases: []string{"cat"},
	Short:   "Show one lead with every stored field",
	Long: `Shows one lead. An id that was absorbed into another lead by a phone
merge resolves to the surviving lead.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runShow),
}

var showOutput outputFlags

func init() {
	rootCmd.AddCommand(showCmd)
	addOutputFlags(showCmd, &showOutput)
}

func runShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	lead, err := lookupLead(cmd.Context(), app.Store, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return exitError(3, err)
	}
	if err != nil {
		return err
	}

	r, err := showOutput.renderer(app, cmd)
	if err != nil {
		return err
	}
	if showOutput.json || showOutput.yaml || showOutput.ndjson {
		return r.Render(render.Listing{Items: []interface{}{lead}}, lead)
	}

	pairs := [][2]string{
		{"external_id", lead.ExternalID},
		{"source", lead.Source},
		{"created_at", db.FormatTime(lead.CreatedAt)},
		{"last_updated", db.FormatTime(lead.LastUpdated)},
	}
	if len(lead.MergedFrom) > 0 {
		pairs = append(pairs, [2]string{"merged_from", strings.Join(lead.MergedFrom, ", ")})
	}
	for _, name := range lead.FieldNames() {
		pairs = append(pairs, [2]string{name, lead.Get(name)})
	}
	return r.RenderKV(pairs)
}

// lookupLead gets a lead by id, falling back to the lead that absorbed it.
func lookupLead(ctx context.Context, st store.Store, id string) (*domain.Lead, error) {
	lead, err := st.Get(ctx, id)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return lead, err
	}

	all, scanErr := st.ScanAll(ctx)
	if scanErr != nil {
		return nil, scanErr
	}
	for _, l := range all {
		if l.HasAlias(id) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored leads",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runCount),
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func runCount(app *appctx.App, cmd *cobra.Command, args []string) error {
	n, err := app.Store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
