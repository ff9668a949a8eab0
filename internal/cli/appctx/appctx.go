// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, store opening, and engine wiring
// to reduce boilerplate across commands.
package appctx

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/insights"
	"github.com/onsitehq/leadq/internal/logging"
	"github.com/onsitehq/leadq/internal/merge"
	"github.com/onsitehq/leadq/internal/policy"
	"github.com/onsitehq/leadq/internal/store"
	"github.com/onsitehq/leadq/internal/store/memory"
	"github.com/onsitehq/leadq/internal/store/postgres"
	"github.com/onsitehq/leadq/internal/store/sqlite"
	"github.com/onsitehq/leadq/internal/webhooks"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Logger writes structured logs to stderr at the configured level
	Logger logging.Logger

	// Store is the opened record store (nil if NeedsStore is false)
	Store store.Store

	// SQLite is set when the backend is sqlite; it exposes the event log.
	SQLite *sqlite.Store

	// Engine runs uploads against Store
	Engine *merge.Engine

	// Insights serves the dashboard summary
	Insights *insights.Service

	// Webhooks is notified after committed writes; empty when unconfigured
	Webhooks *webhooks.Notifier

	cache insights.Cache
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
		a.cache = nil
	}
	if a.Store != nil {
		a.Store.Close()
		a.Store = nil
		a.SQLite = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsStore indicates whether to open the record store and wire the
	// engine and insights service on top of it.
	NeedsStore bool

	// LogOutput overrides where logs go. Defaults to stderr.
	LogOutput io.Writer
}

// DefaultOptions returns default options (store required).
func DefaultOptions() Options {
	return Options{NeedsStore: true}
}

// ConfigOnly returns options that skip opening the store.
func ConfigOnly() Options {
	return Options{NeedsStore: false}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// It loads config and optionally opens the store.
// The store is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override DB path from --db flag if provided
	if dbFlag := cmd.Flag("db"); dbFlag != nil {
		if dbPath := dbFlag.Value.String(); dbPath != "" {
			cfg.DBPath = dbPath
		}
	}

	return New(cmd.Context(), cfg, opts)
}

// New wires an App from an already loaded config. The daemon uses it
// directly since it has no cobra command.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}

	app := &App{Config: cfg}
	if out == os.Stderr {
		app.Logger = logging.NewStderr(cfg.LogLevel)
	} else {
		app.Logger = logging.New(cfg.LogLevel, out)
	}

	if !opts.NeedsStore {
		return app, nil
	}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	app.Engine = merge.New(app.Store, merge.Options{
		Schema: policy.Default().WithNotesMaxLen(cfg.NotesMaxLen),
		Logger: app.Logger,
	})

	cache, err := openCache(cfg, app.Logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.cache = cache
	app.Insights = insights.NewService(app.Store, cache, app.Logger)
	app.Webhooks = webhooks.New(cfg.WebhookURLs, app.Logger)

	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Backend {
	case "", "sqlite":
		st, err := sqlite.Open(a.Config.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.Store = st
		a.SQLite = st
	case "postgres":
		st, err := postgres.Open(ctx, a.Config.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		a.Store = st
	case "memory":
		a.Store = memory.New()
	default:
		return fmt.Errorf("unknown backend %q", a.Config.Backend)
	}
	return nil
}

// openCache connects the summary cache. An unset redis_url disables it.
func openCache(cfg *config.Config, log logging.Logger) (insights.Cache, error) {
	if cfg.RedisURL == "" {
		return insights.NopCache{}, nil
	}
	ttl, err := cfg.SummaryTTLDuration()
	if err != nil {
		return nil, err
	}
	cache, err := insights.NewRedisCache(cfg.RedisURL, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect summary cache: %w", err)
	}
	log.WithField("ttl", ttl.String()).Debug("summary cache connected")
	return cache, nil
}

// InvalidateSummary drops the cached summary after a write.
func (a *App) InvalidateSummary(ctx context.Context) {
	if a.Insights != nil {
		a.Insights.Invalidate(ctx)
	}
}

// AfterUpload runs the post-commit hooks for one upload.
func (a *App) AfterUpload(ctx context.Context, fileName, source string, sum *merge.Summary) {
	a.InvalidateSummary(ctx)
	if sum != nil {
		a.Webhooks.Notify(ctx, webhooks.UploadPayload(fileName, source, sum, time.Now()))
	}
}

// AfterClear runs the post-commit hooks for a full wipe.
func (a *App) AfterClear(ctx context.Context) {
	a.InvalidateSummary(ctx)
	a.Webhooks.Notify(ctx, webhooks.Payload{Event: webhooks.EventDataCleared, OccurredAt: time.Now().UTC()})
}
