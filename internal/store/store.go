// Package store defines the record store the merge engine persists leads,
// upload history and phone-merge history through. Backends live in the
// sqlite, postgres and memory subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onsitehq/leadq/internal/cursor"
	"github.com/onsitehq/leadq/internal/domain"
)

// ErrNotFound is returned by Get when no lead has the requested id.
var ErrNotFound = errors.New("lead not found")

// Store is the persistence port. Bulk calls are atomic per call; nothing
// spans calls.
type Store interface {
	Get(ctx context.Context, externalID string) (*domain.Lead, error)
	ScanAll(ctx context.Context) ([]*domain.Lead, error)
	BulkInsert(ctx context.Context, leads []*domain.Lead) error
	BulkUpdate(ctx context.Context, updates []domain.LeadUpdate) error
	BulkDelete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)

	RecordUpload(ctx context.Context, batch *domain.UploadBatch, merges []domain.PhoneMerge) error
	ListUploads(ctx context.Context, limit int) ([]*domain.UploadBatch, error)
	ListPhoneMerges(ctx context.Context, limit int) ([]*domain.PhoneMerge, error)

	ListLeads(ctx context.Context, opts ListOptions) ([]*domain.Lead, string, error)
	Clear(ctx context.Context) error
	Close() error
}

// Sort orders for ListLeads.
const (
	SortByID      = "id"
	SortByUpdated = "updated"
)

// ListOptions filters and pages ListLeads.
type ListOptions struct {
	Limit  int
	Cursor string
	Sort   string // SortByID (default) or SortByUpdated
	Status string
	Source string
}

// Ordering returns the cursor ordering for o.Sort.
func (o ListOptions) Ordering() (cursor.ApplyOptions, error) {
	switch o.Sort {
	case "", SortByID:
		return cursor.ApplyOptions{
			SortFields: []string{"external_id"},
			Descending: []bool{false},
			IDField:    "external_id",
			Limit:      o.Limit,
		}, nil
	case SortByUpdated:
		return cursor.ApplyOptions{
			SortFields: []string{"last_updated"},
			Descending: []bool{true},
			IDField:    "external_id",
			Limit:      o.Limit,
		}, nil
	default:
		return cursor.ApplyOptions{}, fmt.Errorf("invalid sort %q: must be one of: %s, %s", o.Sort, SortByID, SortByUpdated)
	}
}

// NextCursor builds the cursor that continues after last under o's ordering.
func (o ListOptions) NextCursor(last *domain.Lead, lastUpdated string) (string, error) {
	if o.Sort == SortByUpdated {
		return cursor.BuildNextCursor([]string{"last_updated"}, []interface{}{lastUpdated}, last.ExternalID)
	}
	return cursor.BuildNextCursor([]string{"external_id"}, []interface{}{last.ExternalID}, last.ExternalID)
}

type batchKey struct{}

// WithBatch tags ctx with the upload batch id that store writes belong to.
func WithBatch(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchKey{}, batchID)
}

// BatchID returns the batch id set by WithBatch, or "".
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchKey{}).(string)
	return id
}

// EncodeFields serializes a lead's field map for storage.
func EncodeFields(fields map[string]string) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(b), nil
}

// DecodeFields parses a stored field map.
func DecodeFields(s string) (map[string]string, error) {
	fields := make(map[string]string)
	if s == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

// EncodeChanges serializes a batch's per-field change counts.
func EncodeChanges(changes []domain.FieldCount) (string, error) {
	if changes == nil {
		changes = []domain.FieldCount{}
	}
	b, err := json.Marshal(changes)
	if err != nil {
		return "", fmt.Errorf("failed to encode changes: %w", err)
	}
	return string(b), nil
}

// DecodeChanges parses stored per-field change counts.
func DecodeChanges(s string) ([]domain.FieldCount, error) {
	var changes []domain.FieldCount
	if s == "" {
		return changes, nil
	}
	if err := json.Unmarshal([]byte(s), &changes); err != nil {
		return nil, fmt.Errorf("failed to decode changes: %w", err)
	}
	return changes, nil
}
