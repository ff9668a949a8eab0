package policy

import "strings"

// PriorityTable maps enumerated values to a total order. Unlisted non-empty
// values get the fallback, which sits mid-table rather than at the bottom.
type PriorityTable struct {
	Name     string
	Fallback int
	values   map[string]int
}

// NewPriorityTable builds a table; keys are matched case-insensitively.
func NewPriorityTable(name string, fallback int, values map[string]int) *PriorityTable {
	t := &PriorityTable{Name: name, Fallback: fallback, values: make(map[string]int, len(values))}
	for k, v := range values {
		t.values[normalizeKey(k)] = v
	}
	return t
}

// Rank returns the priority of v. Empty values rank 0.
func (t *PriorityTable) Rank(v string) int {
	key := normalizeKey(v)
	if key == "" {
		return 0
	}
	if p, ok := t.values[key]; ok {
		return p
	}
	return t.Fallback
}

// Pick keeps the higher-priority value; ties keep existing.
func (t *PriorityTable) Pick(existing, incoming string) string {
	if t.Rank(incoming) > t.Rank(existing) {
		return strings.TrimSpace(incoming)
	}
	return existing
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// StatusPriorities orders lead_status values from the CRM export.
var StatusPriorities = NewPriorityTable("lead_status", 35, map[string]int{
	"Purchased":               100,
	"Paid User":               95,
	"Trial Activated":         80,
	"Demo Done":               70,
	"Session Completed":       70,
	"Demo Booked":             60,
	"Session scheduled":       60,
	"Priority":                55,
	"Qualified":               50,
	"Follow Up":               40,
	"Contacted":               30,
	"User not attend session": 25,
	"Not Connected":           20,
	"New":                     10,
	"DTA":                     5,
	"Rejected":                5,
})

// StagePriorities orders sales_stage values.
var StagePriorities = NewPriorityTable("sales_stage", 20, map[string]int{
	"4. Secondary Sales":                 100,
	"3. Sale Done":                       90,
	"Very High Prospect":                 70,
	"High Prospect":                      60,
	"1. Prospect":                        50,
	"Not Able to Connect after Prospect": 30,
	"2. Not Interested After Demo":       25,
})
