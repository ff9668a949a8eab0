package policy

import (
	"strconv"
	"strings"
	"time"
)

// NotesDelimiter separates note segments that came from different records.
const NotesDelimiter = "\n---\n"

// dateLayouts are tried in order; CRM exports mix all of these.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 03:04 PM",
	"Jan 2, 2006",
	"2 Jan, 2006 15:04:05",
	"2 Jan, 2006 15:04",
	"2 Jan, 2006",
	"02-Jan-2006",
	"2-Jan-2006",
}

// ParseDate parses a loosely formatted timestamp. ok is false when nothing matched.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseNumber strips thousands separators and parses a float. Failures are 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// FormatNumber renders a number without thousands separators or trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// KeepOlderDate keeps the chronologically earlier of two timestamps.
// The winning value is returned verbatim.
func KeepOlderDate(existing, incoming string) string {
	return pickDate(existing, incoming, func(a, b time.Time) bool { return b.Before(a) })
}

// KeepNewerDate keeps the chronologically later of two timestamps.
func KeepNewerDate(existing, incoming string) string {
	return pickDate(existing, incoming, func(a, b time.Time) bool { return b.After(a) })
}

func pickDate(existing, incoming string, incomingWins func(a, b time.Time) bool) string {
	et, eok := ParseDate(existing)
	it, iok := ParseDate(incoming)
	switch {
	case eok && iok:
		if incomingWins(et, it) {
			return strings.TrimSpace(incoming)
		}
		return strings.TrimSpace(existing)
	case eok:
		return strings.TrimSpace(existing)
	case iok:
		return strings.TrimSpace(incoming)
	default:
		return ""
	}
}

// UnionNotes combines two notes fields without losing either side.
// maxLen > 0 drops whole segments from the front until the result fits; the
// newest segment is always kept.
func UnionNotes(existing, incoming string, maxLen int) string {
	a := strings.TrimSpace(existing)
	b := strings.TrimSpace(incoming)

	var merged string
	switch {
	case a == "":
		merged = b
	case b == "":
		merged = a
	case a == b || strings.Contains(a, b):
		merged = a
	case strings.Contains(b, a):
		merged = b
	default:
		merged = a + NotesDelimiter + b
	}

	if maxLen <= 0 || len(merged) <= maxLen {
		return merged
	}
	segments := strings.Split(merged, NotesDelimiter)
	for len(segments) > 1 && len(strings.Join(segments, NotesDelimiter)) > maxLen {
		segments = segments[1:]
	}
	return strings.Join(segments, NotesDelimiter)
}

// OrBool returns "1" when either side is the "1" flag.
func OrBool(existing, incoming string) string {
	if strings.TrimSpace(existing) == "1" || strings.TrimSpace(incoming) == "1" {
		return "1"
	}
	return existing
}

// FillIfEmpty keeps existing unless it is blank.
func FillIfEmpty(existing, incoming string) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	if strings.TrimSpace(incoming) != "" {
		return strings.TrimSpace(incoming)
	}
	return existing
}

// MaxNumeric keeps the larger amount. A larger incoming value is normalized
// ("1,50,000" becomes "150000"); otherwise existing is returned untouched.
func MaxNumeric(existing, incoming string) string {
	if strings.TrimSpace(incoming) == "" {
		return existing
	}
	in, ok := parseStrict(incoming)
	if !ok {
		return existing
	}
	if strings.TrimSpace(existing) == "" || in > ParseNumber(existing) {
		return FormatNumber(in)
	}
	return existing
}

func parseStrict(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// Overwrite adopts incoming when it is non-empty and different.
func Overwrite(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" || incoming == existing {
		return existing
	}
	return incoming
}

// TrackProvenance appends ids to mergedFrom, skipping ones already present
// and the record's own id.
func TrackProvenance(self string, mergedFrom []string, ids ...string) []string {
	out := append([]string(nil), mergedFrom...)
	seen := make(map[string]bool, len(out)+1)
	seen[self] = true
	for _, id := range out {
		seen[id] = true
	}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
