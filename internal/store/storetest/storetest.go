// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

// Lead builds a lead with the given id, status and phone.
func Lead(id, status, phone string) *domain.Lead {
	l := &domain.Lead{
		ExternalID:      id,
		PhoneNormalized: phone,
		Source:          "crm",
		CreatedAt:       base,
		LastUpdated:     base,
	}
	l.Set(domain.FieldStatus, status)
	l.Set(domain.FieldName, "Lead "+id)
	return l
}

// Run exercises newStore against the shared contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("InsertRoundTrip", func(t *testing.T) { testInsertRoundTrip(t, newStore(t)) })
	t.Run("InsertDuplicateFails", func(t *testing.T) { testInsertDuplicateFails(t, newStore(t)) })
	t.Run("UpdateReplaces", func(t *testing.T) { testUpdateReplaces(t, newStore(t)) })
	t.Run("UpdateUnknownFails", func(t *testing.T) { testUpdateUnknownFails(t, newStore(t)) })
	t.Run("DeleteIgnoresUnknown", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ScanAllOrdered", func(t *testing.T) { testScanAllOrdered(t, newStore(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("ListLeadsByID", func(t *testing.T) { testListByID(t, newStore(t)) })
	t.Run("ListLeadsByUpdated", func(t *testing.T) { testListByUpdated(t, newStore(t)) })
	t.Run("ListLeadsFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newStore(t)) })
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testInsertRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := Lead("L1", "Demo Done", "9876543210")
	l.MergedFrom = []string{"L7", "L9"}
	l.Set("lead_notes", "called back\n---\nwants demo")

	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{l}))

	got, err := s.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Demo Done", got.Status())
	assert.Equal(t, "9876543210", got.PhoneNormalized)
	assert.Equal(t, []string{"L7", "L9"}, got.MergedFrom)
	assert.Equal(t, "called back\n---\nwants demo", got.Get("lead_notes"))
	assert.Equal(t, "crm", got.Source)
	assert.True(t, got.CreatedAt.Equal(base), "created_at %v", got.CreatedAt)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testInsertDuplicateFails(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L1", "New", "")}))
	assert.Error(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L1", "New", "")}))
}

func testUpdateReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L1", "Contacted", "")}))

	next := Lead("L1", "Demo Done", "9000000000")
	next.LastUpdated = base.Add(time.Hour)
	require.NoError(t, s.BulkUpdate(ctx, []domain.LeadUpdate{{Lead: next, Changed: []string{domain.FieldStatus, domain.FieldPhone}}}))

	got, err := s.Get(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Demo Done", got.Status())
	assert.Equal(t, "9000000000", got.PhoneNormalized)
	assert.True(t, got.LastUpdated.Equal(base.Add(time.Hour)))
	assert.True(t, got.CreatedAt.Equal(base))
}

func testUpdateUnknownFails(t *testing.T, s store.Store) {
	err := s.BulkUpdate(context.Background(), []domain.LeadUpdate{{Lead: Lead("ghost", "New", "")}})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L1", "New", ""), Lead("L2", "New", "")}))
	require.NoError(t, s.BulkDelete(ctx, []string{"L1", "ghost"}))

	_, err := s.Get(ctx, "L1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testScanAllOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L3", "", ""), Lead("L1", "", ""), Lead("L2", "", "")}))

	leads, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "L1", leads[0].ExternalID)
	assert.Equal(t, "L3", leads[2].ExternalID)
}

func testHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, id := range []string{"b1", "b2"} {
		batch := &domain.UploadBatch{
			ID:             id,
			FileName:       id + ".csv",
			Source:         "crm",
			UploadedAt:     base.Add(time.Duration(i) * time.Minute),
			TotalRows:      3,
			NewLeads:       2,
			ChangesByField: []domain.FieldCount{{Field: domain.FieldStatus, Count: 2}},
		}
		merges := []domain.PhoneMerge{{
			Phone:       "9876543210",
			KeptLeadID:  "L1",
			KeptName:    "Ravi",
			MergedCount: 1,
			MergedIDs:   []string{"L2"},
			CreatedAt:   batch.UploadedAt,
		}}
		require.NoError(t, s.RecordUpload(ctx, batch, merges))
		assert.Equal(t, id, merges[0].BatchID)
	}

	uploads, err := s.ListUploads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "b2", uploads[0].ID)
	assert.Equal(t, []domain.FieldCount{{Field: domain.FieldStatus, Count: 2}}, uploads[0].ChangesByField)

	limited, err := s.ListUploads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	merges, err := s.ListPhoneMerges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, merges, 2)
	assert.Equal(t, "b2", merges[0].BatchID)
	assert.Equal(t, []string{"L2"}, merges[0].MergedIDs)
	assert.Equal(t, "Ravi", merges[0].KeptName)
}

func insertFive(t *testing.T, s store.Store) {
	t.Helper()
	var leads []*domain.Lead
	for i, id := range []string{"L1", "L2", "L3", "L4", "L5"} {
		l := Lead(id, "New", "")
		l.LastUpdated = base.Add(time.Duration(i) * time.Minute)
		leads = append(leads, l)
	}
	require.NoError(t, s.BulkInsert(context.Background(), leads))
}

func collect(t *testing.T, s store.Store, opts store.ListOptions) []string {
	t.Helper()
	var ids []string
	for page := 0; page < 10; page++ {
		leads, next, err := s.ListLeads(context.Background(), opts)
		require.NoError(t, err)
		for _, l := range leads {
			ids = append(ids, l.ExternalID)
		}
		if next == "" {
			return ids
		}
		opts.Cursor = next
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func testListByID(t *testing.T, s store.Store) {
	insertFive(t, s)
	ids := collect(t, s, store.ListOptions{Limit: 2})
	assert.Equal(t, []string{"L1", "L2", "L3", "L4", "L5"}, ids)
}

func testListByUpdated(t *testing.T, s store.Store) {
	insertFive(t, s)
	ids := collect(t, s, store.ListOptions{Limit: 2, Sort: store.SortByUpdated})
	assert.Equal(t, []string{"L5", "L4", "L3", "L2", "L1"}, ids)
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := Lead("L1", "Demo Done", "")
	b := Lead("L2", "New", "")
	b.Source = "walk-in"
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{a, b}))

	leads, next, err := s.ListLeads(ctx, store.ListOptions{Status: "demo done"})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, leads, 1)
	assert.Equal(t, "L1", leads[0].ExternalID)

	leads, _, err = s.ListLeads(ctx, store.ListOptions{Source: "walk-in"})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "L2", leads[0].ExternalID)

	_, _, err = s.ListLeads(ctx, store.ListOptions{Sort: "bogus"})
	assert.Error(t, err)
}

func testClear(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkInsert(ctx, []*domain.Lead{Lead("L1", "New", "")}))
	require.NoError(t, s.RecordUpload(ctx, &domain.UploadBatch{ID: "b1"}, nil))

	require.NoError(t, s.Clear(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	uploads, err := s.ListUploads(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
