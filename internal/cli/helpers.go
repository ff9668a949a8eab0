package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/render"
)

// ExitError carries the process exit code a command wants.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// outputFlags are the shared format switches of listing commands.
type outputFlags struct {
	json      bool
	ndjson    bool
	yaml      bool
	tsv       bool
	porcelain bool
}

func addOutputFlags(cmd *cobra.Command, f *outputFlags) {
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&f.ndjson, "ndjson", false, "Output as newline-delimited JSON")
	cmd.Flags().BoolVar(&f.yaml, "yaml", false, "Output as YAML")
	cmd.Flags().BoolVar(&f.tsv, "tsv", false, "Output as tab-separated values")
	cmd.Flags().BoolVar(&f.porcelain, "porcelain", false, "Machine-readable output")
}

// renderer picks the format from flags, falling back to the configured
// default output.
func (f *outputFlags) renderer(app *appctx.App, cmd *cobra.Command) (*render.Renderer, error) {
	var format render.Format
	switch {
	case f.json:
		format = render.FormatJSON
	case f.ndjson:
		format = render.FormatNDJSON
	case f.yaml:
		format = render.FormatYAML
	case f.tsv:
		format = render.FormatTSV
	default:
		var err error
		if format, err = render.ParseFormat(app.Config.Output); err != nil {
			return nil, exitError(2, fmt.Errorf("invalid output setting: %w", err))
		}
	}
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{
		Format:    format,
		Porcelain: f.porcelain,
		MaxWidth:  48,
	}), nil
}
