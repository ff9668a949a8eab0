package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindEnvLocal_InCurrentDir(t *testing.T) {
	// Create temp directory structure
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=value"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in current directory")
	}
}

func TestFindEnvLocal_InParentDir(t *testing.T) {
	// Create temp directory structure: parent/.env.local, parent/child/
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in parent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_InGrandparentDir(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to grandchild dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result == "" {
		t.Error("expected to find .env.local in grandparent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	// Create: grandparent/.env.local, grandparent/parent/.env.local, grandparent/parent/child/
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Create .env.local in both grandparent and parent
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	// Change to child dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_NotFound(t *testing.T) {
	// Create temp directory with no .env.local
	tmpDir := t.TempDir()

	// Change to temp dir
	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}

	result := findEnvLocal()
	if result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}

// isolate points HOME and cwd at fresh temp dirs and clears LEADQ_* vars.
func isolate(t *testing.T) (home, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"LEADQ_DB_PATH", "LEADQ_DB_PATH_FILE", "LEADQ_BACKEND", "LEADQ_POSTGRES_URL", "LEADQ_POSTGRES_URL_FILE",
		"LEADQ_REDIS_URL", "LEADQ_REDIS_URL_FILE", "LEADQ_SUMMARY_TTL", "LEADQ_LOG_LEVEL", "LEADQ_OUTPUT",
		"LEADQ_DEFAULT_SOURCE", "LEADQ_NOTES_MAX_LEN", "LEADQ_DAEMON_ADDR", "LEADQ_DAEMON_TOKEN", "LEADQ_DAEMON_TOKEN_FILE",
		"LEADQ_WEBHOOK_URLS",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(cwd); err != nil {
		t.Fatal(err)
	}
	return home, cwd
}

func TestLoad_Defaults(t *testing.T) {
	home, _ := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "sqlite" || cfg.Output != "table" || cfg.DefaultSource != "csv" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	want := filepath.Join(home, ".local", "share", "leadq", "leadq.db")
	if cfg.DBPath != want {
		t.Errorf("DBPath = %s, want %s", cfg.DBPath, want)
	}
	if ttl, _ := cfg.SummaryTTLDuration(); ttl.Minutes() != 10 {
		t.Errorf("SummaryTTL = %v", ttl)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home, cwd := isolate(t)

	yamlDir := filepath.Join(home, ".config", "leadq")
	if err := os.MkdirAll(yamlDir, 0755); err != nil {
		t.Fatal(err)
	}
	yamlBody := "db_path: /yaml/leadq.db\noutput: yaml\nlog_level: warn\nnotes_max_len: 4000\n"
	if err := os.WriteFile(filepath.Join(yamlDir, "config.yaml"), []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cwd, ".env.local"), []byte("LEADQ_OUTPUT=json\nLEADQ_DEFAULT_SOURCE=zoho\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADQ_DEFAULT_SOURCE", "meta-ads")
	t.Cleanup(func() { os.Unsetenv("LEADQ_OUTPUT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/yaml/leadq.db" {
		t.Errorf("DBPath = %s, want yaml value", cfg.DBPath)
	}
	if cfg.LogLevel != "warn" || cfg.NotesMaxLen != 4000 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %s, want .env.local value", cfg.Output)
	}
	if cfg.DefaultSource != "meta-ads" {
		t.Errorf("DefaultSource = %s, want env value", cfg.DefaultSource)
	}
	if cfg.Source("") != "meta-ads" || cfg.Source("crm") != "crm" {
		t.Errorf("Source flag precedence broken")
	}
}

func TestLoad_FileVariant(t *testing.T) {
	_, cwd := isolate(t)
	tokenPath := filepath.Join(cwd, "token")
	if err := os.WriteFile(tokenPath, []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADQ_DAEMON_TOKEN_FILE", tokenPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DaemonToken != "s3cret" {
		t.Errorf("DaemonToken = %q", cfg.DaemonToken)
	}
}

func TestLoad_WebhookURLs(t *testing.T) {
	isolate(t)
	t.Setenv("LEADQ_WEBHOOK_URLS", " http://a.example/hook, ,https://b.example ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"http://a.example/hook", "https://b.example"}
	if len(cfg.WebhookURLs) != 2 || cfg.WebhookURLs[0] != want[0] || cfg.WebhookURLs[1] != want[1] {
		t.Errorf("WebhookURLs = %v, want %v", cfg.WebhookURLs, want)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"LEADQ_BACKEND": "mongo"}},
		{"postgres without url", map[string]string{"LEADQ_BACKEND": "postgres"}},
		{"bad ttl", map[string]string{"LEADQ_SUMMARY_TTL": "soon"}},
		{"bad notes cap", map[string]string{"LEADQ_NOTES_MAX_LEN": "lots"}},
		{"negative notes cap", map[string]string{"LEADQ_NOTES_MAX_LEN": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
