// Package memory is an in-process record store. It backs tests and the
// dry-run planner, which replays an upload against a snapshot of a real store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onsitehq/leadq/internal/cursor"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/store"
)

// Store implements store.Store in memory. Leads are copied on the way in
// and on the way out.
type Store struct {
	mu      sync.RWMutex
	leads   map[string]*domain.Lead
	uploads []*domain.UploadBatch
	merges  []*domain.PhoneMerge
	mergeID int64
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{leads: make(map[string]*domain.Lead), now: time.Now}
}

// Snapshot returns a memory store holding a copy of every lead in src.
// History is not copied.
func Snapshot(ctx context.Context, src store.Store) (*Store, error) {
	leads, err := src.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}
	s := New()
	for _, l := range leads {
		s.leads[l.ExternalID] = l.Clone()
	}
	return s, nil
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// Get returns one lead by external id.
func (s *Store) Get(_ context.Context, externalID string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l.Clone(), nil
}

// ScanAll returns every lead ordered by external id.
func (s *Store) ScanAll(_ context.Context) ([]*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

func (s *Store) sortedLocked() []*domain.Lead {
	out := make([]*domain.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// BulkInsert adds leads. The call fails without changes when any id exists.
func (s *Store) BulkInsert(_ context.Context, leads []*domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(leads))
	for _, l := range leads {
		if _, ok := s.leads[l.ExternalID]; ok || seen[l.ExternalID] {
			return fmt.Errorf("failed to insert lead %s: already exists", l.ExternalID)
		}
		seen[l.ExternalID] = true
	}
	for _, l := range leads {
		l.CreatedAt = s.stamp(l.CreatedAt)
		l.LastUpdated = s.stamp(l.LastUpdated)
		s.leads[l.ExternalID] = l.Clone()
	}
	return nil
}

// BulkUpdate replaces stored leads. The call fails without changes when any
// id is unknown.
func (s *Store) BulkUpdate(_ context.Context, updates []domain.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if _, ok := s.leads[u.Lead.ExternalID]; !ok {
			return fmt.Errorf("failed to update lead %s: %w", u.Lead.ExternalID, store.ErrNotFound)
		}
	}
	for _, u := range updates {
		prev := s.leads[u.Lead.ExternalID]
		u.Lead.LastUpdated = s.stamp(u.Lead.LastUpdated)
		next := u.Lead.Clone()
		next.CreatedAt = prev.CreatedAt
		s.leads[next.ExternalID] = next
	}
	return nil
}

// BulkDelete removes leads. Unknown ids are ignored.
func (s *Store) BulkDelete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.leads, id)
	}
	return nil
}

// Count returns the number of stored leads.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads), nil
}

// RecordUpload appends the batch and its phone merges to history.
func (s *Store) RecordUpload(_ context.Context, batch *domain.UploadBatch, merges []domain.PhoneMerge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch.UploadedAt = s.stamp(batch.UploadedAt)
	b := *batch
	b.ChangesByField = append([]domain.FieldCount(nil), batch.ChangesByField...)
	s.uploads = append(s.uploads, &b)

	for i := range merges {
		s.mergeID++
		merges[i].ID = s.mergeID
		merges[i].BatchID = batch.ID
		merges[i].CreatedAt = s.stamp(merges[i].CreatedAt)
		m := merges[i]
		m.MergedIDs = append([]string(nil), merges[i].MergedIDs...)
		s.merges = append(s.merges, &m)
	}
	return nil
}

// ListUploads returns upload batches newest first. limit <= 0 returns all.
func (s *Store) ListUploads(_ context.Context, limit int) ([]*domain.UploadBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.UploadBatch
	for i := len(s.uploads) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		b := *s.uploads[i]
		out = append(out, &b)
	}
	return out, nil
}

// ListPhoneMerges returns phone merges newest first. limit <= 0 returns all.
func (s *Store) ListPhoneMerges(_ context.Context, limit int) ([]*domain.PhoneMerge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PhoneMerge
	for i := len(s.merges) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		m := *s.merges[i]
		out = append(out, &m)
	}
	return out, nil
}

// ListLeads pages through leads with the same ordering and cursor format as
// the SQL backends.
func (s *Store) ListLeads(_ context.Context, opts store.ListOptions) ([]*domain.Lead, string, error) {
	if _, err := opts.Ordering(); err != nil {
		return nil, "", err
	}
	var after *cursor.Cursor
	if opts.Cursor != "" {
		c, err := cursor.Decode(opts.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		after = c
	}

	s.mu.RLock()
	all := s.sortedLocked()
	s.mu.RUnlock()

	byUpdated := opts.Sort == store.SortByUpdated
	if byUpdated {
		sort.SliceStable(all, func(i, j int) bool {
			ti, tj := db.FormatTime(all[i].LastUpdated), db.FormatTime(all[j].LastUpdated)
			if ti != tj {
				return ti > tj
			}
			return all[i].ExternalID > all[j].ExternalID
		})
	}

	var page []*domain.Lead
	for _, l := range all {
		if opts.Status != "" && !strings.EqualFold(l.Status(), opts.Status) {
			continue
		}
		if opts.Source != "" && l.Source != opts.Source {
			continue
		}
		if after != nil && !pastCursor(l, after, byUpdated) {
			continue
		}
		page = append(page, l)
		if opts.Limit > 0 && len(page) > opts.Limit {
			break
		}
	}

	if opts.Limit <= 0 || len(page) <= opts.Limit {
		return page, "", nil
	}
	page = page[:opts.Limit]
	last := page[len(page)-1]
	next, err := opts.NextCursor(last, db.FormatTime(last.LastUpdated))
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}

func pastCursor(l *domain.Lead, c *cursor.Cursor, byUpdated bool) bool {
	if !byUpdated {
		return l.ExternalID > c.LastID
	}
	ts := db.FormatTime(l.LastUpdated)
	last, _ := c.LastValues[0].(string)
	if ts != last {
		return ts < last
	}
	return l.ExternalID < c.LastID
}

// Clear deletes all leads and history.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = make(map[string]*domain.Lead)
	s.uploads = nil
	s.merges = nil
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
