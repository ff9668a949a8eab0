package domain

import (
	"sort"
	"strings"
	"time"
)

// Well-known CRM export columns the engine reads directly.
const (
	FieldStatus        = "lead_status"
	FieldStage         = "sales_stage"
	FieldName          = "lead_name"
	FieldPhone         = "lead_phone"
	FieldNotes         = "lead_notes"
	FieldTotalActivity = "total_activity"
)

// Row is one flat input record: CSV header name -> raw string value.
type Row map[string]string

// Get returns the trimmed value for key.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Lead represents one stored lead record
type Lead struct {
	ExternalID      string            `json:"external_id" db:"external_id"`
	PhoneNormalized string            `json:"-" db:"phone_normalized"`
	MergedFrom      []string          `json:"merged_from,omitempty" db:"merged_from"`
	Fields          map[string]string `json:"fields" db:"fields"` // JSON object
	Source          string            `json:"source" db:"source"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	LastUpdated     time.Time         `json:"last_updated" db:"last_updated"`
}

// Get returns a field value, or "" when the field is absent.
func (l *Lead) Get(field string) string {
	if l.Fields == nil {
		return ""
	}
	return l.Fields[field]
}

// Set stores a field value, dropping the key when value is empty.
func (l *Lead) Set(field, value string) {
	if l.Fields == nil {
		l.Fields = make(map[string]string)
	}
	if value == "" {
		delete(l.Fields, field)
		return
	}
	l.Fields[field] = value
}

// Status returns the lead_status field.
func (l *Lead) Status() string { return l.Get(FieldStatus) }

// Stage returns the sales_stage field.
func (l *Lead) Stage() string { return l.Get(FieldStage) }

// Name returns the lead_name field.
func (l *Lead) Name() string { return l.Get(FieldName) }

// Clone returns a deep copy so callers can mutate without touching the original.
func (l *Lead) Clone() *Lead {
	c := *l
	c.Fields = make(map[string]string, len(l.Fields))
	for k, v := range l.Fields {
		c.Fields[k] = v
	}
	c.MergedFrom = append([]string(nil), l.MergedFrom...)
	return &c
}

// HasAlias reports whether id was absorbed into this lead.
func (l *Lead) HasAlias(id string) bool {
	for _, m := range l.MergedFrom {
		if m == id {
			return true
		}
	}
	return false
}

// FieldNames returns the populated field names in sorted order.
func (l *Lead) FieldNames() []string {
	names := make([]string, 0, len(l.Fields))
	for k := range l.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// JoinMergedFrom encodes merged_from the way it is persisted.
func JoinMergedFrom(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitMergedFrom decodes a persisted merged_from value.
func SplitMergedFrom(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LeadUpdate is a full-record replacement plus the fields that changed.
type LeadUpdate struct {
	Lead    *Lead
	Changed []string
}

// FieldCount is a per-field change counter.
type FieldCount struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// PhoneMerge records one phone-collision merge.
type PhoneMerge struct {
	ID          int64     `json:"id,omitempty" db:"id"`
	BatchID     string    `json:"batch_id,omitempty" db:"batch_id"`
	Phone       string    `json:"phone" db:"phone"`
	KeptLeadID  string    `json:"keptLeadId" db:"kept_lead_id"`
	KeptName    string    `json:"keptName" db:"kept_name"`
	MergedCount int       `json:"mergedCount" db:"merged_count"`
	MergedIDs   []string  `json:"mergedIds" db:"merged_ids"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at"`
}

// UploadBatch is the append-only audit entry for one import.
type UploadBatch struct {
	ID             string       `json:"id" db:"id"`
	FileName       string       `json:"file_name" db:"file_name"`
	Source         string       `json:"source" db:"source"`
	UploadedAt     time.Time    `json:"uploaded_at" db:"uploaded_at"`
	TotalRows      int          `json:"total_rows" db:"total_rows"`
	NewLeads       int          `json:"new_leads" db:"new_leads"`
	UpdatedLeads   int          `json:"updated_leads" db:"updated_leads"`
	UnchangedLeads int          `json:"unchanged_leads" db:"unchanged_leads"`
	SkippedRows    int          `json:"skipped_rows" db:"skipped_rows"`
	PhoneMerged    int          `json:"phone_merged" db:"phone_merged"`
	TotalAfter     int          `json:"total_after" db:"total_after"`
	ChangesByField []FieldCount `json:"changes_by_field" db:"changes_by_field"` // JSON array
	DurationMS     int64        `json:"duration_ms" db:"duration_ms"`
}

// Event represents an entry in the event log
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	ResourceType string    `json:"resource_type" db:"resource_type"` // lead, batch, system
	ResourceID   *string   `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string    `json:"event_type" db:"event_type"`
	BatchID      *string   `json:"batch_id,omitempty" db:"batch_id"`
	Payload      *string   `json:"payload,omitempty" db:"payload"` // JSON
}
