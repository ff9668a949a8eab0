package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
	FormatTSV    Format = "tsv"
)

// ParseFormat validates a format name. Empty selects the table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q: must be one of table, json, ndjson, yaml, tsv", s)
	}
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
	// MaxWidth truncates table cells; 0 disables truncation.
	MaxWidth int
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Listing is a result set that can be shown as a table or as records.
type Listing struct {
	Headers []string
	Rows    [][]string
	// Items are the structured records behind Rows, used by json, ndjson and yaml.
	Items []interface{}
}

// Render writes a listing in the configured format. data replaces Items
// for json and yaml when non-nil, so callers can wrap the records.
func (r *Renderer) Render(l Listing, data interface{}) error {
	if data == nil {
		data = l.Items
	}
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatNDJSON:
		return r.RenderNDJSON(l.Items)
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatTSV:
		return r.RenderTSV(l.Headers, l.Rows)
	default:
		return r.RenderTable(l.Headers, l.Rows)
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderNDJSON renders data as newline-delimited JSON
func (r *Renderer) RenderNDJSON(items []interface{}) error {
	encoder := json.NewEncoder(r.writer)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values. Tabs and newlines inside
// cells are replaced with spaces.
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = flatten(c)
		}
		if _, err := fmt.Fprintln(r.writer, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}

	return nil
}

// RenderKV renders key/value pairs as an aligned two-column block.
func (r *Renderer) RenderKV(pairs [][2]string) error {
	width := 0
	for _, p := range pairs {
		if len(p[0])+1 > width {
			width = len(p[0]) + 1
		}
	}
	for _, p := range pairs {
		if _, err := fmt.Fprintf(r.writer, "%-*s  %s\n", width, p[0]+":", p[1]); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, c := range row {
			cells[i][j] = r.cell(c)
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range cells {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if !r.opts.Porcelain {
		r.renderTableRow(headers, widths)
		r.renderTableSeparator(widths)
	} else {
		fmt.Fprintln(r.writer, strings.Join(headers, "\t"))
	}

	for _, row := range cells {
		if r.opts.Porcelain {
			fmt.Fprintln(r.writer, strings.Join(row, "\t"))
		} else {
			r.renderTableRow(row, widths)
		}
	}

	return nil
}

func (r *Renderer) cell(s string) string {
	s = flatten(s)
	if r.opts.MaxWidth > 3 && len(s) > r.opts.MaxWidth {
		return s[:r.opts.MaxWidth-3] + "..."
	}
	return s
}

func flatten(s string) string {
	return strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ").Replace(s)
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i < len(widths) {
			fmt.Fprintf(r.writer, "%-*s", widths[i], cell)
			if i < len(cells)-1 {
				fmt.Fprint(r.writer, "  ")
			}
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
