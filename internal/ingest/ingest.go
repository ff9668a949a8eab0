// Package ingest turns CRM export files into rows for the merge engine.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/onsitehq/leadq/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DetectFormat picks the format from a file name, defaulting to CSV.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// ReadFile reads rows from path, choosing the parser by extension.
func ReadFile(path string) ([]domain.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Read(data, DetectFormat(path))
}

// Read parses data in the given format.
func Read(data []byte, format Format) ([]domain.Row, error) {
	switch format {
	case FormatJSON:
		return ReadJSON(data)
	case FormatCSV, "":
		return ReadCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ReadCSV reads a header row followed by records. Header names are trimmed
// and a leading byte order mark is dropped; values are kept verbatim.
// Short records leave the missing columns unset and extra cells are ignored.
func ReadCSV(r io.Reader) ([]domain.Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []domain.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		row := make(domain.Row, len(header))
		for i, name := range header {
			if name == "" || i >= len(rec) {
				continue
			}
			row[name] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadJSON reads an array of flat objects, or one object per line.
// Scalars are stringified; true becomes "1", false and null become "".
// Nested values keep their raw JSON text.
func ReadJSON(data []byte) ([]domain.Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var items []gjson.Result
	switch {
	case gjson.ValidBytes(trimmed):
		result := gjson.ParseBytes(trimmed)
		switch {
		case result.IsArray():
			items = result.Array()
		case result.IsObject():
			items = []gjson.Result{result}
		default:
			return nil, fmt.Errorf("json input must be an array of objects")
		}
	default:
		for i, line := range bytes.Split(trimmed, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if !gjson.ValidBytes(line) {
				return nil, fmt.Errorf("invalid json on line %d", i+1)
			}
			items = append(items, gjson.ParseBytes(line))
		}
	}

	rows := make([]domain.Row, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("invalid row at index %d: expected object", i)
		}
		row := make(domain.Row)
		item.ForEach(func(key, value gjson.Result) bool {
			row[key.String()] = stringify(value)
			return true
		})
		rows = append(rows, row)
	}
	return rows, nil
}

func stringify(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.True:
		return "1"
	case gjson.False:
		return ""
	case gjson.Number:
		return v.Raw
	case gjson.String:
		return v.String()
	default:
		return v.Raw
	}
}
