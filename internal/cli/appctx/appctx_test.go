package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/insights"
	"github.com/onsitehq/leadq/internal/testutil"
	"github.com/onsitehq/leadq/internal/webhooks"
)

// isolate points config discovery at an empty home and cwd.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"LEADQ_BACKEND", "LEADQ_REDIS_URL", "LEADQ_POSTGRES_URL", "LEADQ_LOG_LEVEL", "LEADQ_WEBHOOK_URLS"} {
		t.Setenv(k, "")
	}
	return tmpDir
}

func migratedDB(t *testing.T, path string) {
	t.Helper()
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "Database path")
	cmd.SetContext(context.Background())
	return cmd
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("LEADQ_DB_PATH", filepath.Join(tmpDir, "test.db"))

	app, err := Bootstrap(testCmd(), ConfigOnly())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.Logger == nil {
		t.Error("Logger should always be set")
	}
	if app.Store != nil || app.Engine != nil {
		t.Error("Store and Engine should be nil when NeedsStore is false")
	}
}

func TestBootstrap_WithStore(t *testing.T) {
	tmpDir := isolate(t)
	dbPath := filepath.Join(tmpDir, "test.db")
	migratedDB(t, dbPath)
	t.Setenv("LEADQ_DB_PATH", dbPath)

	app, err := Bootstrap(testCmd(), DefaultOptions())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.SQLite == nil {
		t.Fatal("sqlite store should be open")
	}
	if app.Engine == nil || app.Insights == nil {
		t.Fatal("engine and insights should be wired")
	}
	n, err := app.Store.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestBootstrap_DBFlagOverride(t *testing.T) {
	tmpDir := isolate(t)
	dbPath := filepath.Join(tmpDir, "test.db")
	overridePath := filepath.Join(tmpDir, "override.db")
	migratedDB(t, dbPath)
	migratedDB(t, overridePath)
	t.Setenv("LEADQ_DB_PATH", dbPath)

	cmd := testCmd()
	cmd.ParseFlags([]string{"--db", overridePath})

	app, err := Bootstrap(cmd, DefaultOptions())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config.DBPath != overridePath {
		t.Errorf("DBPath should be override path %q, got %q", overridePath, app.Config.DBPath)
	}
}

func TestBootstrap_RequiresMigration(t *testing.T) {
	tmpDir := isolate(t)
	dbPath := filepath.Join(tmpDir, "fresh.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	database.Close()
	t.Setenv("LEADQ_DB_PATH", dbPath)

	_, err = Bootstrap(testCmd(), DefaultOptions())
	if err == nil {
		t.Fatal("Expected error for unmigrated database")
	}
	if !strings.Contains(err.Error(), "leadqadm migrate") {
		t.Errorf("error should point at leadqadm migrate, got %q", err.Error())
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	isolate(t)
	cfg := &config.Config{Backend: "memory", LogLevel: "debug"}
	var logs bytes.Buffer

	app, err := New(context.Background(), cfg, Options{NeedsStore: true, LogOutput: &logs})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	if app.SQLite != nil {
		t.Error("memory backend should not expose sqlite")
	}
	if _, ok := app.cache.(insights.NopCache); !ok {
		t.Errorf("expected NopCache without redis_url, got %T", app.cache)
	}
	app.Logger.Info("hello")
	if !strings.Contains(logs.String(), `"message":"hello"`) {
		t.Errorf("logs should go to LogOutput, got %q", logs.String())
	}
}

func TestApp_AfterUploadNotifies(t *testing.T) {
	isolate(t)
	events := make(chan webhooks.Payload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhooks.Payload
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("bad webhook body: %v", err)
		}
		events <- p
	}))
	defer srv.Close()

	cfg := &config.Config{Backend: "memory", LogLevel: "error", WebhookURLs: []string{srv.URL + "/{event}"}}
	app, err := New(context.Background(), cfg, Options{NeedsStore: true, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	ctx := context.Background()
	sum, err := app.Engine.Upload(ctx, []domain.Row{testutil.Row("zoho_lead_id", "L1", "lead_name", "Asha")}, "a.csv", "zoho")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	app.AfterUpload(ctx, "a.csv", "zoho", sum)
	app.AfterClear(ctx)

	first, second := <-events, <-events
	if first.Event != webhooks.EventUploadCompleted || first.FileName != "a.csv" || first.NewLeads != 1 {
		t.Errorf("unexpected upload notice: %+v", first)
	}
	if second.Event != webhooks.EventDataCleared {
		t.Errorf("unexpected clear notice: %+v", second)
	}
}

func TestNew_BadRedisURL(t *testing.T) {
	isolate(t)
	cfg := &config.Config{Backend: "memory", RedisURL: "not-a-url", SummaryTTL: "1m"}
	if _, err := New(context.Background(), cfg, DefaultOptions()); err == nil {
		t.Fatal("expected error for bad redis url")
	}
}

func TestDefaultOptions(t *testing.T) {
	if !DefaultOptions().NeedsStore {
		t.Error("DefaultOptions should have NeedsStore=true")
	}
	if ConfigOnly().NeedsStore {
		t.Error("ConfigOnly should have NeedsStore=false")
	}
}

func TestApp_Close_Multiple(t *testing.T) {
	app := &App{}
	app.Close()
	app.Close() // Should not panic
}
