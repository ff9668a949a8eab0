// Package merge reconciles uploaded CRM rows with the record store: exact
// matching by external id, field-level merging through the policy schema,
// then a store-wide phone-collision pass.
package merge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/identity"
	"github.com/onsitehq/leadq/internal/logging"
	"github.com/onsitehq/leadq/internal/policy"
	"github.com/onsitehq/leadq/internal/store"
	"github.com/onsitehq/leadq/internal/store/memory"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Schema *policy.Schema
	Logger logging.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine runs uploads against one store. Uploads are serialized.
type Engine struct {
	mu     sync.Mutex
	store  store.Store
	schema *policy.Schema
	log    logging.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an engine over st.
func New(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:  st,
		schema: opts.Schema,
		log:    opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if e.schema == nil {
		e.schema = policy.Default()
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Schema returns the field schema the engine merges with.
func (e *Engine) Schema() *policy.Schema {
	return e.schema
}

// Upload merges rows into the store and records the batch. label is the
// originating file name; source tags newly inserted leads.
//
// Each store call is atomic on its own. A failure part way through leaves
// earlier writes in place.
func (e *Engine) Upload(ctx context.Context, rows []domain.Row, label, source string) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum, _, err := e.run(ctx, e.store, rows, label, source, false)
	return sum, err
}

// Plan runs the upload against an in-memory snapshot of the store and
// reports every write it would make. The store is not modified.
func (e *Engine) Plan(ctx context.Context, rows []domain.Row, label, source string) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := memory.Snapshot(ctx, e.store)
	if err != nil {
		return nil, err
	}
	sum, changes, err := e.run(ctx, snap, rows, label, source, true)
	if err != nil {
		return nil, err
	}
	sum.DryRun = true
	return &Plan{Summary: sum, Changes: changes}, nil
}

// group is every batch row that resolved to one identity, folded in input
// order. Rows naming an id the stored lead absorbed in an earlier phone merge
// are kept apart in alias and applied with fold semantics, the way the
// absorbed record was folded in.
type group struct {
	key   string
	row   domain.Row
	alias domain.Row
}

// add folds row into the group and reports whether the group already held a row.
func (g *group) add(schema *policy.Schema, row domain.Row, viaAlias bool) bool {
	dup := g.row != nil || g.alias != nil
	switch {
	case viaAlias && g.alias == nil:
		g.alias = row.Clone()
	case viaAlias:
		schema.FoldRow(g.alias, row, readRow, policy.ModeFold)
	case g.row == nil:
		g.row = row.Clone()
	default:
		schema.FoldRow(g.row, row, readRow, policy.ModeUpdate)
	}
	return dup
}

func (e *Engine) run(ctx context.Context, st store.Store, rows []domain.Row, label, source string, collect bool) (*Summary, []Change, error) {
	start := e.now()
	batchID := e.newID()
	ctx = store.WithBatch(ctx, batchID)
	log := e.log.WithFields(map[string]interface{}{"batch_id": batchID, "file": label})
	log.WithField("rows", len(rows)).Info("upload started")

	sum := &Summary{BatchID: batchID, TotalProcessed: len(rows)}
	var changes []Change
	counts := fieldCounter{}

	// Load
	existing, err := st.ScanAll(ctx)
	if err != nil {
		return nil, nil, e.fail(log, "load", err)
	}
	idx := identity.NewIndex(existing)

	// Fold same-identity rows of this batch so each identity is diffed once.
	var groups []*group
	byKey := make(map[string]*group)
	for _, row := range rows {
		id := identity.RowID(row)
		if id == "" || domain.ValidateExternalID(id) != nil {
			sum.SkippedRows++
			continue
		}
		key := idx.Resolve(id)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		if g.add(e.schema, row, id != key) {
			sum.DuplicateRows++
		}
	}

	// Diff
	now := e.now()
	var inserts []*domain.Lead
	var updates []domain.LeadUpdate
	for _, g := range groups {
		cur, ok := idx.Lookup(g.key)
		if !ok {
			lead := e.newLead(g.key, g.row, source, now)
			inserts = append(inserts, lead)
			sum.NewLeads++
			if collect {
				changes = append(changes, Change{Kind: ChangeInsert, ExternalID: lead.ExternalID, After: lead.Clone()})
			}
			continue
		}

		next := cur.Clone()
		var changed []string
		if g.row != nil {
			changed = e.schema.Apply(next, incoming(g.row), policy.ModeUpdate)
		}
		if g.alias != nil {
			changed = mergeNames(changed, e.schema.Apply(next, incoming(g.alias), policy.ModeFold))
		}
		if len(changed) == 0 {
			sum.UnchangedLeads++
			continue
		}
		next.PhoneNormalized = identity.NormalizePhone(next.Get(domain.FieldPhone))
		next.LastUpdated = now
		updates = append(updates, domain.LeadUpdate{Lead: next, Changed: changed})
		counts.add(changed)
		sum.UpdatedLeads++
		if collect {
			changes = append(changes, Change{Kind: ChangeUpdate, ExternalID: next.ExternalID, Fields: changed, Before: cur.Clone(), After: next.Clone()})
		}
	}

	// Apply
	if err := st.BulkInsert(ctx, inserts); err != nil {
		return nil, nil, e.fail(log, "insert", err)
	}
	if err := st.BulkUpdate(ctx, updates); err != nil {
		return nil, nil, e.fail(log, "update", err)
	}

	// Phone-collision pass over the whole store.
	all, err := st.ScanAll(ctx)
	if err != nil {
		return nil, nil, e.fail(log, "rescan", err)
	}
	var primaries []domain.LeadUpdate
	var secondaries []string
	var merges []domain.PhoneMerge
	for _, c := range identity.PhoneCollisions(all) {
		ranked := identity.RankPrimary(c.Leads, e.schema)
		primary := ranked[0].Clone()
		seen := make(map[string]bool)
		var changed, mergedIDs []string
		for _, sec := range ranked[1:] {
			for _, f := range e.schema.FoldLead(primary, sec) {
				if !seen[f] {
					seen[f] = true
					changed = append(changed, f)
				}
			}
			mergedIDs = append(mergedIDs, sec.ExternalID)
			secondaries = append(secondaries, sec.ExternalID)
			if collect {
				changes = append(changes, Change{Kind: ChangeDelete, ExternalID: sec.ExternalID, Before: sec.Clone()})
			}
		}
		primary.LastUpdated = now
		primaries = append(primaries, domain.LeadUpdate{Lead: primary, Changed: changed})
		if collect {
			changes = append(changes, Change{Kind: ChangeMerge, ExternalID: primary.ExternalID, Fields: changed, Before: ranked[0].Clone(), After: primary.Clone()})
		}

		merges = append(merges, domain.PhoneMerge{
			Phone:       c.Phone,
			KeptLeadID:  primary.ExternalID,
			KeptName:    primary.Name(),
			MergedCount: len(mergedIDs),
			MergedIDs:   mergedIDs,
			CreatedAt:   now,
		})
		log.WithFields(map[string]interface{}{
			"phone":  c.Phone,
			"kept":   primary.ExternalID,
			"merged": strings.Join(mergedIDs, ","),
		}).Debug("phone merge")
	}

	if err := st.BulkUpdate(ctx, primaries); err != nil {
		return nil, nil, e.fail(log, "merge", err)
	}
	// Delete
	if err := st.BulkDelete(ctx, secondaries); err != nil {
		return nil, nil, e.fail(log, "delete", err)
	}
	sum.PhoneMerged = len(secondaries)

	total, err := st.Count(ctx)
	if err != nil {
		return nil, nil, e.fail(log, "count", err)
	}
	sum.TotalAfterMerge = total
	sum.ChangesByField = counts.sorted()
	sum.DurationMS = e.now().Sub(start).Milliseconds()

	// Record
	batch := &domain.UploadBatch{
		ID:             batchID,
		FileName:       label,
		Source:         source,
		UploadedAt:     now,
		TotalRows:      sum.TotalProcessed,
		NewLeads:       sum.NewLeads,
		UpdatedLeads:   sum.UpdatedLeads,
		UnchangedLeads: sum.UnchangedLeads,
		SkippedRows:    sum.SkippedRows,
		PhoneMerged:    sum.PhoneMerged,
		TotalAfter:     sum.TotalAfterMerge,
		ChangesByField: top(sum.ChangesByField, BatchTopFields),
		DurationMS:     sum.DurationMS,
	}
	if err := st.RecordUpload(ctx, batch, merges); err != nil {
		return nil, nil, e.fail(log, "record", err)
	}

	sum.PhoneMergeDetails = merges
	if len(merges) > SummaryMergeDetails {
		sum.PhoneMergeDetails = merges[:SummaryMergeDetails]
	}
	if sum.PhoneMergeDetails == nil {
		sum.PhoneMergeDetails = []domain.PhoneMerge{}
	}

	log.WithFields(map[string]interface{}{
		"new":          sum.NewLeads,
		"updated":      sum.UpdatedLeads,
		"unchanged":    sum.UnchangedLeads,
		"skipped":      sum.SkippedRows,
		"phone_merged": sum.PhoneMerged,
		"total":        sum.TotalAfterMerge,
		"duration_ms":  sum.DurationMS,
	}).Info("upload finished")

	return sum, changes, nil
}

// newLead builds an insert from a folded row. Untracked columns are copied
// as-is; tracked fields go through the policy against an empty record so
// stored values match what a later identical upload resolves to.
func (e *Engine) newLead(id string, row domain.Row, source string, now time.Time) *domain.Lead {
	lead := &domain.Lead{
		ExternalID:  id,
		Fields:      make(map[string]string, len(row)),
		Source:      source,
		CreatedAt:   now,
		LastUpdated: now,
	}
	for k := range row {
		if _, tracked := e.schema.Field(k); tracked {
			continue
		}
		lead.Set(k, row.Get(k))
	}
	e.schema.Apply(lead, incoming(row), policy.ModeUpdate)
	lead.PhoneNormalized = identity.NormalizePhone(lead.Get(domain.FieldPhone))
	return lead
}

// readRow reads a tracked field value from a row. The phone falls back
// through the alternate phone columns.
func readRow(row domain.Row, field string) string {
	if field == domain.FieldPhone {
		return identity.RowPhone(row)
	}
	return row.Get(field)
}

// incoming binds readRow to one row.
func incoming(row domain.Row) func(string) string {
	return func(field string) string { return readRow(row, field) }
}

// mergeNames appends the names in more that a does not already hold.
func mergeNames(a, more []string) []string {
	for _, name := range more {
		seen := false
		for _, have := range a {
			if have == name {
				seen = true
				break
			}
		}
		if !seen {
			a = append(a, name)
		}
	}
	return a
}

func (e *Engine) fail(log logging.Logger, step string, err error) error {
	log.WithField("error", err.Error()).Error("upload failed during " + step)
	return fmt.Errorf("upload %s: %w", step, err)
}
