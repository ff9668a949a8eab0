package render

import (
	"bytes"
	"strings"
	"testing"
)

func sampleListing() Listing {
	return Listing{
		Headers: []string{"ID", "STATUS", "NOTES"},
		Rows: [][]string{
			{"L1", "Demo Done", "called\nleft message"},
			{"L2", "New", ""},
		},
		Items: []interface{}{
			map[string]string{"external_id": "L1"},
			map[string]string{"external_id": "L2"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" ndjson ", FormatNDJSON, false},
		{"yaml", FormatYAML, false},
		{"tsv", FormatTSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer(&buf, Options{Format: FormatTable}).Render(sampleListing(), nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "--") {
		t.Errorf("missing separator: %q", lines[1])
	}
	if !strings.Contains(lines[2], "called left message") {
		t.Errorf("newlines should be flattened: %q", lines[2])
	}
}

func TestRender_TableTruncates(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Porcelain: true, MaxWidth: 8})
	if err := r.RenderTable([]string{"NOTES"}, [][]string{{"a very long note"}}); err != nil {
		t.Fatalf("RenderTable: %v", err)
	}
	if !strings.Contains(buf.String(), "a ver...") {
		t.Errorf("expected truncated cell, got %q", buf.String())
	}
}

func TestRender_Formats(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, `"external_id": "L1"`},
		{FormatNDJSON, "{\"external_id\":\"L2\"}\n"},
		{FormatYAML, "- external_id: L1"},
		{FormatTSV, "ID\tSTATUS\tNOTES\nL1\tDemo Done\tcalled left message\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewRenderer(&buf, Options{Format: tt.format}).Render(sampleListing(), nil); err != nil {
				t.Fatalf("Render: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestRenderKV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer(&buf, Options{}).RenderKV([][2]string{{"id", "L1"}, {"status", "New"}}); err != nil {
		t.Fatalf("RenderKV: %v", err)
	}
	want := "id:      L1\nstatus:  New\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
