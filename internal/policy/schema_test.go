package policy

import (
	"testing"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityTable_Rank(t *testing.T) {
	assert.Equal(t, 0, StatusPriorities.Rank(""))
	assert.Equal(t, 70, StatusPriorities.Rank("demo done"))
	assert.Equal(t, 70, StatusPriorities.Rank("  Demo Done "))
	assert.Equal(t, 35, StatusPriorities.Rank("Something New From CRM"))
	assert.Equal(t, 20, StagePriorities.Rank("Unknown stage"))

	// Unmapped sits above the lowest mapped values.
	assert.Greater(t, StatusPriorities.Rank("unmapped"), StatusPriorities.Rank("New"))
}

func TestPriorityTable_Monotonic(t *testing.T) {
	schema := Default()
	statuses := []string{"New", "Contacted", "Follow Up", "Qualified", "Priority", "Demo Booked", "Demo Done", "Purchased"}

	for _, a := range statuses {
		for _, b := range statuses {
			if StatusPriorities.Rank(a) <= StatusPriorities.Rank(b) {
				continue
			}
			// Current b, incoming a: a wins.
			lead := &domain.Lead{ExternalID: "L1", Fields: map[string]string{domain.FieldStatus: b}}
			schema.ApplyRow(lead, domain.Row{domain.FieldStatus: a})
			assert.Equal(t, a, lead.Status(), "current %q incoming %q", b, a)

			// Current a, incoming b: a retained.
			lead = &domain.Lead{ExternalID: "L1", Fields: map[string]string{domain.FieldStatus: a}}
			changed := schema.ApplyRow(lead, domain.Row{domain.FieldStatus: b})
			assert.Equal(t, a, lead.Status())
			assert.Empty(t, changed)

			// Re-application is idempotent.
			changed = schema.ApplyRow(lead, domain.Row{domain.FieldStatus: a})
			assert.Empty(t, changed)
		}
	}
}

func TestPriorityTable_TieKeepsExisting(t *testing.T) {
	assert.Equal(t, "Demo Done", StatusPriorities.Pick("Demo Done", "Session Completed"))
	assert.Equal(t, "Session Completed", StatusPriorities.Pick("Session Completed", "Demo Done"))
}

func TestSchema_BoolMergeIsOrderIndependent(t *testing.T) {
	schema := Default()

	a := &domain.Lead{ExternalID: "A", Fields: map[string]string{"demo_done": "1"}}
	b := &domain.Lead{ExternalID: "B", Fields: map[string]string{"demo_done": ""}}

	ab := a.Clone()
	schema.FoldLead(ab, b)
	ba := b.Clone()
	schema.FoldLead(ba, a)

	assert.Equal(t, "1", ab.Get("demo_done"))
	assert.Equal(t, "1", ba.Get("demo_done"))
}

func TestSchema_ApplyRowReportsChangedFields(t *testing.T) {
	schema := Default()
	lead := &domain.Lead{
		ExternalID: "L1",
		Fields: map[string]string{
			domain.FieldStatus: "Contacted",
			"company_name":     "Acme Infra",
			"annual_revenue":   "90000",
			"deal_owner":       "Ravi",
		},
	}

	changed := schema.ApplyRow(lead, domain.Row{
		domain.FieldStatus: "Demo Done",
		"company_name":     "Other Co",
		"annual_revenue":   "1,50,000",
		"deal_owner":       "Asha",
		"demo_done":        "1",
		"not_tracked":      "ignored",
	})

	assert.Equal(t, []string{domain.FieldStatus, "demo_done", "annual_revenue", "deal_owner"}, changed)
	assert.Equal(t, "Demo Done", lead.Status())
	assert.Equal(t, "Acme Infra", lead.Get("company_name"))
	assert.Equal(t, "150000", lead.Get("annual_revenue"))
	assert.Equal(t, "Asha", lead.Get("deal_owner"))
	assert.Equal(t, "", lead.Get("not_tracked"))
}

func TestSchema_FoldLeadOverwriteActsAsFill(t *testing.T) {
	schema := Default()
	primary := &domain.Lead{ExternalID: "L1", Fields: map[string]string{"deal_owner": "Ravi"}}
	secondary := &domain.Lead{
		ExternalID: "L2",
		MergedFrom: []string{"L7"},
		Fields:     map[string]string{"deal_owner": "Asha", "call_disposition": "Busy"},
	}

	changed := schema.FoldLead(primary, secondary)

	assert.Equal(t, "Ravi", primary.Get("deal_owner"))
	assert.Equal(t, "Busy", primary.Get("call_disposition"))
	assert.Equal(t, []string{"L2", "L7"}, primary.MergedFrom)
	assert.Contains(t, changed, "merged_from")
}

func TestSchema_FoldRowLaterRowWinsOverwrite(t *testing.T) {
	schema := Default()
	first := domain.Row{"external_id": "L1", domain.FieldStatus: "Contacted", "deal_owner": "Ravi", "extra": ""}
	second := domain.Row{"external_id": "L1", domain.FieldStatus: "Demo Done", "deal_owner": "Asha", "extra": "x"}

	schema.FoldRow(first, second, nil, ModeUpdate)

	assert.Equal(t, "Demo Done", first[domain.FieldStatus])
	assert.Equal(t, "Asha", first["deal_owner"])
	assert.Equal(t, "x", first["extra"])
}

func TestSchema_FoldRowFoldModeKeepsEarlierOverwrite(t *testing.T) {
	schema := Default()
	first := domain.Row{"external_id": "L1", domain.FieldStatus: "Contacted", "deal_owner": "Ravi"}
	second := domain.Row{"external_id": "L2", domain.FieldStatus: "Demo Done", "deal_owner": "Asha", "call_disposition": "Busy"}

	schema.FoldRow(first, second, nil, ModeFold)

	assert.Equal(t, "Demo Done", first[domain.FieldStatus])
	assert.Equal(t, "Ravi", first["deal_owner"])
	assert.Equal(t, "Busy", first["call_disposition"])
}

func TestSchema_FoldRowUsesReader(t *testing.T) {
	schema := Default()
	first := domain.Row{"external_id": "L1", "phone": "9000000001"}
	second := domain.Row{"external_id": "L1", "phone": "9000000002"}
	read := func(row domain.Row, field string) string {
		if field == domain.FieldPhone {
			return row.Get("phone")
		}
		return row.Get(field)
	}

	schema.FoldRow(first, second, read, ModeUpdate)

	assert.Equal(t, "9000000002", first[domain.FieldPhone])
	assert.Equal(t, "9000000001", first["phone"])
}

func TestNewSchema_Validation(t *testing.T) {
	_, err := NewSchema([]Field{{Name: "a", Rule: RuleFillIfEmpty}, {Name: "a", Rule: RuleOrBool}})
	require.Error(t, err)

	_, err = NewSchema([]Field{{Name: "lead_status", Rule: RulePriority}})
	require.Error(t, err)

	s, err := NewSchema([]Field{{Name: "x", Rule: RuleOrBool}})
	require.NoError(t, err)
	assert.Equal(t, 35, s.StatusRank("anything"))
}
