package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/insights"
	"github.com/onsitehq/leadq/internal/render"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the dashboard summary of stored leads",
	Long: `Summary prints headline KPIs, status/source/stage/region distributions,
the deal owner table and stale-lead counts. Results are cached in Redis
when redis_url is configured; --refresh recomputes.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runSummary),
}

var (
	summaryOutput  outputFlags
	summaryRefresh bool
)

func init() {
	rootCmd.AddCommand(summaryCmd)
	addOutputFlags(summaryCmd, &summaryOutput)
	summaryCmd.Flags().BoolVar(&summaryRefresh, "refresh", false, "Bypass the summary cache")
}

func runSummary(app *appctx.App, cmd *cobra.Command, args []string) error {
	sum, cached, err := app.Insights.Summary(cmd.Context(), summaryRefresh)
	if err != nil {
		return err
	}
	app.Logger.WithField("cached", cached).Debug("summary served")

	if summaryOutput.json || summaryOutput.yaml || summaryOutput.ndjson {
		r, err := summaryOutput.renderer(app, cmd)
		if err != nil {
			return err
		}
		return r.Render(render.Listing{Items: []interface{}{sum}}, sum)
	}
	printSummary(cmd.OutOrStdout(), sum)
	return nil
}

func printSummary(w io.Writer, s *insights.Summary) {
	k := s.KPIs
	r := render.NewRenderer(w, render.Options{})
	fmt.Fprintln(w, "KPIs")
	r.RenderKV([][2]string{
		{"total", fmt.Sprint(k.Total)},
		{"demo booked", fmt.Sprint(k.DemoBooked)},
		{"demo done", fmt.Sprint(k.DemoDone)},
		{"sale done", fmt.Sprint(k.SaleDone)},
		{"purchased", fmt.Sprint(k.Purchased)},
		{"priority", fmt.Sprint(k.Priority)},
		{"qualified", fmt.Sprint(k.Qualified)},
		{"prospects", fmt.Sprint(k.Prospects)},
		{"revenue", fmt.Sprintf("%.2f", k.TotalRevenue)},
		{"price pitched", fmt.Sprintf("%.2f", k.TotalPricePitched)},
		{"demo rate", fmt.Sprintf("%.1f%%", s.DemoRate)},
		{"sale rate", fmt.Sprintf("%.1f%%", s.SaleRate)},
		{fmt.Sprintf("stale (>%dd)", insights.StaleDays), fmt.Sprint(s.Stale)},
		{"booked, not done", fmt.Sprint(s.BookedNotDone)},
	})

	names := make([]string, 0, len(s.Distributions))
	for name := range s.Distributions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "\n%s\n", name)
		var rows [][]string
		for _, b := range s.Distributions[name] {
			rows = append(rows, []string{b.Name, fmt.Sprint(b.Value)})
		}
		r.RenderTable([]string{"VALUE", "LEADS"}, rows)
	}

	if len(s.Owners) > 0 {
		fmt.Fprintln(w, "\nowners")
		var rows [][]string
		for _, o := range s.Owners {
			rows = append(rows, []string{o.Name, fmt.Sprint(o.Total), fmt.Sprint(o.Demos), fmt.Sprint(o.Sales), fmt.Sprint(o.Priority), fmt.Sprint(o.Stale)})
		}
		r.RenderTable([]string{"OWNER", "TOTAL", "DEMOS", "SALES", "PRIORITY", "STALE"}, rows)
	}
}
