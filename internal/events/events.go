package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
)

// Event types written to the event log.
const (
	LeadCreated   = "lead.created"
	LeadUpdated   = "lead.updated"
	LeadMerged    = "lead.merged"
	LeadDeleted   = "lead.deleted"
	BatchRecorded = "batch.recorded"
	DataCleared   = "system.cleared"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	if err := domain.ValidateResourceType(event.ResourceType); err != nil {
		return err
	}

	query := `
		INSERT INTO event_log (resource_type, resource_id, event_type, batch_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ResourceType, event.ResourceID, event.EventType, event.BatchID, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogLeadCreated logs a lead insert.
func (w *Writer) LogLeadCreated(tx *sql.Tx, batchID string, lead *domain.Lead) error {
	return w.logLead(tx, LeadCreated, batchID, lead.ExternalID, map[string]interface{}{
		"status": lead.Status(),
		"name":   lead.Name(),
		"source": lead.Source,
	})
}

// LogLeadUpdated logs a lead update with the fields that changed.
func (w *Writer) LogLeadUpdated(tx *sql.Tx, batchID string, update domain.LeadUpdate) error {
	eventType := LeadUpdated
	for _, f := range update.Changed {
		if f == "merged_from" {
			eventType = LeadMerged
			break
		}
	}
	return w.logLead(tx, eventType, batchID, update.Lead.ExternalID, map[string]interface{}{
		"changed": update.Changed,
	})
}

// LogLeadDeleted logs a lead removal.
func (w *Writer) LogLeadDeleted(tx *sql.Tx, batchID string, externalID string) error {
	return w.logLead(tx, LeadDeleted, batchID, externalID, nil)
}

// LogBatchRecorded logs an upload history entry.
func (w *Writer) LogBatchRecorded(tx *sql.Tx, batch *domain.UploadBatch, merges int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"file_name":     batch.FileName,
		"new_leads":     batch.NewLeads,
		"updated_leads": batch.UpdatedLeads,
		"phone_merged":  batch.PhoneMerged,
		"phone_merges":  merges,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &domain.Event{
		ResourceType: "batch",
		ResourceID:   &batch.ID,
		EventType:    BatchRecorded,
		BatchID:      &batch.ID,
		Payload:      &payloadStr,
	})
}

// LogCleared logs a destructive reset.
func (w *Writer) LogCleared(tx *sql.Tx) error {
	return w.LogEvent(tx, &domain.Event{ResourceType: "system", EventType: DataCleared})
}

func (w *Writer) logLead(tx *sql.Tx, eventType, batchID, externalID string, fields map[string]interface{}) error {
	event := &domain.Event{
		ResourceType: "lead",
		ResourceID:   &externalID,
		EventType:    eventType,
	}
	if batchID != "" {
		event.BatchID = &batchID
	}
	if fields != nil {
		payload, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		payloadStr := string(payload)
		event.Payload = &payloadStr
	}
	return w.LogEvent(tx, event)
}

// Filter narrows a List query.
type Filter struct {
	ResourceID string
	BatchID    string
	EventType  string
	Limit      int
}

// List returns events newest first.
func (w *Writer) List(f Filter) ([]*domain.Event, error) {
	var where []string
	var args []interface{}
	if f.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}

	query := "SELECT id, timestamp, resource_type, resource_id, event_type, batch_id, payload FROM event_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.ResourceType, &e.ResourceID, &e.EventType, &e.BatchID, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = db.ParseTime(ts)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
