package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/onsitehq/leadq/internal/domain"
)

// Config represents the application configuration
type Config struct {
	DBPath        string   `yaml:"db_path"`
	Backend       string   `yaml:"backend"`
	PostgresURL   string   `yaml:"postgres_url"`
	RedisURL      string   `yaml:"redis_url"`
	SummaryTTL    string   `yaml:"summary_ttl"`
	LogLevel      string   `yaml:"log_level"`
	Output        string   `yaml:"output"`
	DefaultSource string   `yaml:"default_source"`
	NotesMaxLen   int      `yaml:"notes_max_len"`
	DaemonAddr    string   `yaml:"daemon_addr"`
	DaemonToken   string   `yaml:"daemon_token"`
	WebhookURLs   []string `yaml:"webhook_urls"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/leadq/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		Backend:       "sqlite",
		SummaryTTL:    "10m",
		LogLevel:      "info",
		Output:        "table",
		DefaultSource: "csv",
		DaemonAddr:    "127.0.0.1:8765",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional
	_ = loadYAMLConfig(cfg)

	// Override with environment variables
	if dbPath := getEnvOrFile("LEADQ_DB_PATH", "LEADQ_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backend := os.Getenv("LEADQ_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if url := getEnvOrFile("LEADQ_POSTGRES_URL", "LEADQ_POSTGRES_URL_FILE"); url != "" {
		cfg.PostgresURL = url
	}
	if url := getEnvOrFile("LEADQ_REDIS_URL", "LEADQ_REDIS_URL_FILE"); url != "" {
		cfg.RedisURL = url
	}
	if ttl := os.Getenv("LEADQ_SUMMARY_TTL"); ttl != "" {
		cfg.SummaryTTL = ttl
	}
	if logLevel := os.Getenv("LEADQ_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if output := os.Getenv("LEADQ_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if source := os.Getenv("LEADQ_DEFAULT_SOURCE"); source != "" {
		cfg.DefaultSource = source
	}
	if n := os.Getenv("LEADQ_NOTES_MAX_LEN"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("invalid LEADQ_NOTES_MAX_LEN %q: %w", n, err)
		}
		cfg.NotesMaxLen = v
	}
	if addr := os.Getenv("LEADQ_DAEMON_ADDR"); addr != "" {
		cfg.DaemonAddr = addr
	}
	if token := getEnvOrFile("LEADQ_DAEMON_TOKEN", "LEADQ_DAEMON_TOKEN_FILE"); token != "" {
		cfg.DaemonToken = token
	}

	if hooks := os.Getenv("LEADQ_WEBHOOK_URLS"); hooks != "" {
		cfg.WebhookURLs = splitList(hooks)
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".leadq/leadq.db"); err == nil {
			cfg.DBPath = ".leadq/leadq.db"
		} else {
			// Fall back to user-global database
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "leadq", "leadq.db")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that would otherwise fail late.
func (c *Config) Validate() error {
	if err := domain.ValidateBackend(c.Backend); err != nil {
		return err
	}
	if c.Backend == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("backend postgres requires LEADQ_POSTGRES_URL")
	}
	if _, err := c.SummaryTTLDuration(); err != nil {
		return err
	}
	if c.NotesMaxLen < 0 {
		return fmt.Errorf("notes_max_len must not be negative")
	}
	return nil
}

// SummaryTTLDuration parses summary_ttl.
func (c *Config) SummaryTTLDuration() (time.Duration, error) {
	if c.SummaryTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SummaryTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid summary_ttl %q: %w", c.SummaryTTL, err)
	}
	return d, nil
}

// loadYAMLConfig loads configuration from ~/.config/leadq/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "leadq", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Source returns the source tag for imports: flag > config default.
func (c *Config) Source(flag string) string {
	if flag != "" {
		return flag
	}
	return c.DefaultSource
}
