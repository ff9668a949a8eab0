package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/testutil"
)

// createTestApp wires an App over a fresh migrated SQLite database.
func createTestApp(t *testing.T) *appctx.App {
	t.Helper()
	database, dbPath := testutil.TempDB(t)
	database.Close()

	cfg := &config.Config{
		Backend:       "sqlite",
		DBPath:        dbPath,
		Output:        "table",
		DefaultSource: "csv",
		LogLevel:      "error",
	}
	app, err := appctx.New(context.Background(), cfg, appctx.Options{NeedsStore: true, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

// testCommand returns a command whose stdout and stderr are captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	return cmd, &stdout, &stderr
}

// resetImportFlags restores import flag globals after a test.
func resetImportFlags(t *testing.T) {
	t.Cleanup(func() {
		importSource, importDryRun, importDiff, importJSON = "", false, false, false
		importContinueOnError, importJobs = false, 0
	})
}

const leadsCSV = `zoho_lead_id,lead_name,lead_phone,lead_status,deal_owner
L1,Asha,98765 43210,New,Ravi
L2,Binod,+91 91234 56789,Demo Booked,Ravi
L3,Asha K,9876543210,Purchased,Meera
`

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), name, content)
}

func TestImport_MergesAndReports(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	file := writeCSV(t, "leads.csv", leadsCSV)

	cmd, stdout, _ := testCommand()
	if err := runImport(app, cmd, []string{file}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "3 new") || !strings.Contains(out, "1 phone-merged") {
		t.Errorf("unexpected import output:\n%s", out)
	}
	if !strings.Contains(out, "kept L3") {
		t.Errorf("Purchased lead should survive the phone merge:\n%s", out)
	}

	n, err := app.Store.Count(context.Background())
	if err != nil || n != 2 {
		t.Errorf("Count = %d, %v; want 2", n, err)
	}
}

func TestImport_JSONOutput(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	importJSON = true
	importSource = "zoho"
	file := writeCSV(t, "leads.csv", leadsCSV)

	cmd, stdout, _ := testCommand()
	if err := runImport(app, cmd, []string{file}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	var results []importResult
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout.String())
	}
	if len(results) != 1 || results[0].Summary.NewLeads != 3 || results[0].Summary.PhoneMerged != 1 {
		t.Errorf("unexpected results: %+v", results)
	}

	lead, err := app.Store.Get(context.Background(), "L2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if lead.Source != "zoho" {
		t.Errorf("source = %q, want zoho", lead.Source)
	}
}

func TestImport_DryRunWithDiff(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	importDryRun, importDiff = true, true
	update := "zoho_lead_id,lead_status\nL2,Demo Done\n"
	cmd, stdout, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "b.csv", update)}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "(dry run)") {
		t.Errorf("expected dry run marker:\n%s", out)
	}
	if !strings.Contains(out, `-lead_status: "Demo Booked"`) || !strings.Contains(out, `+lead_status: "Demo Done"`) {
		t.Errorf("expected a field diff:\n%s", out)
	}

	lead, err := app.Store.Get(context.Background(), "L2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if lead.Status() != "Demo Booked" {
		t.Errorf("dry run wrote to the store: status = %q", lead.Status())
	}
}

func TestImport_PartialFailure(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	importContinueOnError = true
	good := writeCSV(t, "good.csv", leadsCSV)
	missing := filepath.Join(t.TempDir(), "missing.csv")

	cmd, _, stderr := testCommand()
	err := runImport(app, cmd, []string{good, missing})
	if ExitCode(err) != 5 {
		t.Fatalf("ExitCode = %d (%v), want 5", ExitCode(err), err)
	}
	if !strings.Contains(stderr.String(), "Partial success") {
		t.Errorf("expected partial summary on stderr:\n%s", stderr.String())
	}

	n, _ := app.Store.Count(context.Background())
	if n != 2 {
		t.Errorf("good file should still be imported, count = %d", n)
	}
}

func TestLs_JSONAndPaging(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	t.Cleanup(func() { lsOutput, lsLimit, lsCursor = outputFlags{}, 0, "" })
	lsOutput.json = true
	lsLimit = 1

	cmd, stdout, _ := testCommand()
	if err := runLs(app, cmd, nil); err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	var page struct {
		Leads []struct {
			ExternalID string `json:"external_id"`
		} `json:"leads"`
		NextCursor string `json:"next_cursor"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &page); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(page.Leads) != 1 || page.Leads[0].ExternalID != "L2" || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	lsCursor = page.NextCursor
	cmd, stdout, _ = testCommand()
	if err := runLs(app, cmd, nil); err != nil {
		t.Fatalf("ls page 2 failed: %v", err)
	}
	if err := json.Unmarshal(stdout.Bytes(), &page); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(page.Leads) != 1 || page.Leads[0].ExternalID != "L3" || page.NextCursor != "" {
		t.Errorf("unexpected second page: %+v", page)
	}
}

func TestShow_ResolvesAbsorbedID(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	cmd, stdout, _ := testCommand()
	if err := runShow(app, cmd, []string{"L1"}); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "external_id:") || !strings.Contains(out, "L3") || !strings.Contains(out, "merged_from:") {
		t.Errorf("expected the surviving lead L3:\n%s", out)
	}

	cmd, _, _ = testCommand()
	if err := runShow(app, cmd, []string{"nope"}); ExitCode(err) != 3 {
		t.Errorf("ExitCode for missing lead = %d (%v), want 3", ExitCode(err), err)
	}
}

func TestHistoryCommands(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	cmd, stdout, _ := testCommand()
	if err := runUploads(app, cmd, nil); err != nil {
		t.Fatalf("uploads failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "a.csv") {
		t.Errorf("uploads should list the batch:\n%s", stdout.String())
	}

	cmd, stdout, _ = testCommand()
	if err := runMerges(app, cmd, nil); err != nil {
		t.Fatalf("merges failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "9876543210") {
		t.Errorf("merges should list the phone:\n%s", stdout.String())
	}

	t.Cleanup(func() { logOutput = outputFlags{} })
	logOutput.tsv = true
	cmd, stdout, _ = testCommand()
	if err := runLog(app, cmd, []string{"L2"}); err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "lead.created") {
		t.Errorf("log should show the lead creation:\n%s", stdout.String())
	}
}

func TestLog_RequiresSQLite(t *testing.T) {
	cfg := &config.Config{Backend: "memory", LogLevel: "error"}
	app, err := appctx.New(context.Background(), cfg, appctx.Options{NeedsStore: true, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	cmd, _, _ := testCommand()
	if err := runLog(app, cmd, nil); ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d (%v), want 2", ExitCode(err), err)
	}
}

func TestSummaryAndCount(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	cmd, stdout, _ := testCommand()
	if err := runCount(app, cmd, nil); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "2" {
		t.Errorf("count = %q, want 2", stdout.String())
	}

	cmd, stdout, _ = testCommand()
	if err := runSummary(app, cmd, nil); err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "KPIs") || !strings.Contains(stdout.String(), "Purchased") {
		t.Errorf("unexpected summary:\n%s", stdout.String())
	}
}

func TestClear_RequiresYes(t *testing.T) {
	app := createTestApp(t)
	resetImportFlags(t)
	cmd, _, _ := testCommand()
	if err := runImport(app, cmd, []string{writeCSV(t, "a.csv", leadsCSV)}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	t.Cleanup(func() { clearYes = false })
	cmd, _, _ = testCommand()
	if err := runClearAdm(app, cmd, nil); ExitCode(err) != 2 {
		t.Fatalf("ExitCode without --yes = %d, want 2", ExitCode(err))
	}

	clearYes = true
	cmd, stdout, _ := testCommand()
	if err := runClearAdm(app, cmd, nil); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Cleared 2 lead(s)") {
		t.Errorf("unexpected output: %q", stdout.String())
	}
	if n, _ := app.Store.Count(context.Background()); n != 0 {
		t.Errorf("count after clear = %d", n)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if ExitCode(io.EOF) != 1 {
		t.Error("plain errors should exit 1")
	}
	wrapped := exitError(4, io.EOF)
	if ExitCode(wrapped) != 4 || wrapped.Error() != io.EOF.Error() {
		t.Errorf("unexpected exit error %v", wrapped)
	}
}
