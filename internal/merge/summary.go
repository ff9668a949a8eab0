package merge

import (
	"sort"

	"github.com/onsitehq/leadq/internal/domain"
)

// Limits applied to the batch record and the returned summary.
const (
	BatchTopFields      = 20
	SummaryMergeDetails = 100
)

// Summary is the result of one upload.
type Summary struct {
	BatchID           string              `json:"batchId"`
	NewLeads          int                 `json:"newLeads"`
	UpdatedLeads      int                 `json:"updatedLeads"`
	UnchangedLeads    int                 `json:"unchangedLeads"`
	SkippedRows       int                 `json:"skippedRows"`
	DuplicateRows     int                 `json:"duplicateRows"`
	PhoneMerged       int                 `json:"phoneMerged"`
	TotalProcessed    int                 `json:"totalProcessed"`
	TotalAfterMerge   int                 `json:"totalAfterMerge"`
	DurationMS        int64               `json:"duration_ms"`
	ChangesByField    []domain.FieldCount `json:"changesByField"`
	PhoneMergeDetails []domain.PhoneMerge `json:"phoneMergeDetails"`
	DryRun            bool                `json:"dryRun,omitempty"`
}

// ChangeKind classifies one planned store write.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeMerge  ChangeKind = "merge"
	ChangeDelete ChangeKind = "delete"
)

// Change is one store write the upload made (or would make).
type Change struct {
	Kind       ChangeKind   `json:"kind"`
	ExternalID string       `json:"externalId"`
	Fields     []string     `json:"fields,omitempty"`
	Before     *domain.Lead `json:"before,omitempty"`
	After      *domain.Lead `json:"after,omitempty"`
}

// Plan is the outcome of a dry run.
type Plan struct {
	Summary *Summary `json:"summary"`
	Changes []Change `json:"changes"`
}

// fieldCounter tallies changed fields across a batch.
type fieldCounter map[string]int

func (c fieldCounter) add(fields []string) {
	for _, f := range fields {
		c[f]++
	}
}

// sorted returns counts by descending count, then field name.
func (c fieldCounter) sorted() []domain.FieldCount {
	out := make([]domain.FieldCount, 0, len(c))
	for f, n := range c {
		out = append(out, domain.FieldCount{Field: f, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func top(counts []domain.FieldCount, n int) []domain.FieldCount {
	if len(counts) > n {
		return append([]domain.FieldCount(nil), counts[:n]...)
	}
	return counts
}
