package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/events"
	"github.com/onsitehq/leadq/internal/store"
	"github.com/onsitehq/leadq/internal/store/storetest"
	"github.com/onsitehq/leadq/internal/testutil"
)

// setupTestStore creates a store over a temporary migrated database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, _ := testutil.TempDB(t)
	return New(database)
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return setupTestStore(t) })
}

func TestOpen_RequiresMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected migration error for a fresh database")
	}
	if !strings.Contains(err.Error(), "leadqadm migrate") {
		t.Errorf("error should suggest migrating, got: %v", err)
	}

	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open after migrate: %v", err)
	}
	s.Close()
}

func TestStore_WritesEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := store.WithBatch(context.Background(), "batch-1")

	if err := s.BulkInsert(ctx, []*domain.Lead{storetest.Lead("L1", "New", ""), storetest.Lead("L2", "New", "")}); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	update := domain.LeadUpdate{Lead: storetest.Lead("L1", "Qualified", ""), Changed: []string{"lead_status", "merged_from"}}
	if err := s.BulkUpdate(ctx, []domain.LeadUpdate{update}); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if err := s.BulkDelete(ctx, []string{"L2"}); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if err := s.RecordUpload(ctx, &domain.UploadBatch{ID: "batch-1"}, nil); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}

	evs, err := s.Events().List(events.Filter{BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var types []string
	for _, e := range evs {
		types = append(types, e.EventType)
	}
	want := []string{events.BatchRecorded, events.LeadDeleted, events.LeadMerged, events.LeadCreated, events.LeadCreated}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("event types = %v, want %v", types, want)
	}

	l1, err := s.Events().List(events.Filter{ResourceID: "L1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(l1) != 2 {
		t.Errorf("expected 2 events for L1, got %d", len(l1))
	}
}

func TestStore_ClearLogsSystemEvent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.BulkInsert(ctx, []*domain.Lead{storetest.Lead("L1", "New", "")}); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	evs, err := s.Events().List(events.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 1 || evs[0].EventType != events.DataCleared {
		t.Errorf("expected only the clear event, got %+v", evs)
	}
}
