// Package policy holds the per-field conflict resolution rules applied whenever
// two versions of the same lead are reconciled.
package policy

import (
	"fmt"
	"strings"

	"github.com/onsitehq/leadq/internal/domain"
)

// Kind is the semantic type of a tracked field.
type Kind string

const (
	KindEnum       Kind = "enum"
	KindDate       Kind = "date"
	KindBool       Kind = "bool"
	KindMoney      Kind = "money"
	KindText       Kind = "text"
	KindEnrichment Kind = "enrichment"
	KindString     Kind = "string"
)

// Rule names a merge rule.
type Rule string

const (
	RulePriority      Rule = "priority"
	RuleKeepOlderDate Rule = "keep_older_date"
	RuleKeepNewerDate Rule = "keep_newer_date"
	RuleUnionNotes    Rule = "union_notes"
	RuleOrBool        Rule = "or_bool"
	RuleFillIfEmpty   Rule = "fill_if_empty"
	RuleMaxNumeric    Rule = "max_numeric"
	RuleOverwrite     Rule = "overwrite"
)

// Mode selects how the generic overwrite rule behaves.
type Mode int

const (
	// ModeUpdate reconciles a stored lead with an incoming row.
	ModeUpdate Mode = iota
	// ModeFold folds a losing record into the surviving one.
	ModeFold
)

// Field describes one tracked field.
type Field struct {
	Name     string
	Kind     Kind
	Rule     Rule
	Priority *PriorityTable // RulePriority only
}

// Schema is the ordered set of tracked fields.
type Schema struct {
	fields      []Field
	byName      map[string]int
	status      *PriorityTable
	notesMaxLen int
}

// NewSchema validates and indexes a field table.
func NewSchema(fields []Field) (*Schema, error) {
	s := &Schema{byName: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field without name")
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate schema field %q", f.Name)
		}
		if f.Rule == RulePriority && f.Priority == nil {
			return nil, fmt.Errorf("field %q uses priority rule without a table", f.Name)
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
		if f.Name == domain.FieldStatus {
			s.status = f.Priority
		}
	}
	if s.status == nil {
		s.status = StatusPriorities
	}
	return s, nil
}

// WithNotesMaxLen returns a copy of the schema with a notes length cap.
func (s *Schema) WithNotesMaxLen(n int) *Schema {
	c := *s
	c.notesMaxLen = n
	return &c
}

// Fields returns the tracked fields in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Field looks up a tracked field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// StatusRank returns the status priority used to pick a primary record.
func (s *Schema) StatusRank(status string) int {
	return s.status.Rank(status)
}

// Resolve applies the field's rule to one pair of values.
func (s *Schema) Resolve(f Field, existing, incoming string, mode Mode) string {
	switch f.Rule {
	case RulePriority:
		return f.Priority.Pick(existing, incoming)
	case RuleKeepOlderDate:
		return KeepOlderDate(existing, incoming)
	case RuleKeepNewerDate:
		return KeepNewerDate(existing, incoming)
	case RuleUnionNotes:
		return UnionNotes(existing, incoming, s.notesMaxLen)
	case RuleOrBool:
		return OrBool(existing, incoming)
	case RuleFillIfEmpty:
		return FillIfEmpty(existing, incoming)
	case RuleMaxNumeric:
		return MaxNumeric(existing, incoming)
	case RuleOverwrite:
		if mode == ModeFold {
			return FillIfEmpty(existing, incoming)
		}
		return Overwrite(existing, incoming)
	default:
		return existing
	}
}

// Apply merges incoming values into lead field by field and returns the
// names of the fields whose value changed, in schema order.
func (s *Schema) Apply(lead *domain.Lead, incoming func(field string) string, mode Mode) []string {
	var changed []string
	for _, f := range s.fields {
		cur := lead.Get(f.Name)
		next := s.Resolve(f, cur, incoming(f.Name), mode)
		if strings.TrimSpace(next) == strings.TrimSpace(cur) {
			continue
		}
		lead.Set(f.Name, next)
		changed = append(changed, f.Name)
	}
	return changed
}

// ApplyRow reconciles a stored lead with an incoming row.
func (s *Schema) ApplyRow(lead *domain.Lead, row domain.Row) []string {
	return s.Apply(lead, row.Get, ModeUpdate)
}

// FoldRow folds a later row into an earlier row of the same batch. The
// earlier row plays the existing side. read extracts a tracked value from a
// row; nil reads the column of the same name.
func (s *Schema) FoldRow(into, from domain.Row, read func(row domain.Row, field string) string, mode Mode) {
	if read == nil {
		read = func(row domain.Row, field string) string { return row.Get(field) }
	}
	for _, f := range s.fields {
		next := s.Resolve(f, read(into, f.Name), read(from, f.Name), mode)
		if next == "" {
			delete(into, f.Name)
			continue
		}
		into[f.Name] = next
	}
	for k, v := range from {
		if _, tracked := s.byName[k]; tracked {
			continue
		}
		if strings.TrimSpace(into[k]) == "" && strings.TrimSpace(v) != "" {
			into[k] = v
		}
	}
}

// FoldLead folds secondary into primary: tracked fields through the policy,
// provenance through merged_from.
func (s *Schema) FoldLead(primary, secondary *domain.Lead) []string {
	changed := s.Apply(primary, secondary.Get, ModeFold)
	before := len(primary.MergedFrom)
	ids := append([]string{secondary.ExternalID}, secondary.MergedFrom...)
	primary.MergedFrom = TrackProvenance(primary.ExternalID, primary.MergedFrom, ids...)
	if len(primary.MergedFrom) != before {
		changed = append(changed, "merged_from")
	}
	return changed
}
