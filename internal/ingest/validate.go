package ingest

import (
	"fmt"
	"math"
	"strings"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/identity"
)

// validateSample bounds how many rows Check inspects.
const validateSample = 5000

// RecommendedColumns are the columns analytics rely on.
var RecommendedColumns = []string{domain.FieldName, "deal_owner", domain.FieldStatus}

// genericOwners are placeholder owners that do not identify a salesperson.
var genericOwners = map[string]bool{"Onsite": true, "Offline Campaign": true}

// Check returns data quality warnings for a parsed file. Warnings never
// block an import.
func Check(rows []domain.Row) []string {
	if len(rows) == 0 {
		return []string{"No rows in file."}
	}
	sample := rows
	if len(sample) > validateSample {
		sample = sample[:validateSample]
	}

	var missingID, badID, missingName, missingOwner, missingStatus int
	for _, r := range sample {
		if id := identity.RowID(r); id == "" {
			missingID++
		} else if domain.ValidateExternalID(id) != nil {
			badID++
		}
		if r.Get(domain.FieldName) == "" {
			missingName++
		}
		if owner := r.Get("deal_owner"); owner == "" || genericOwners[owner] {
			missingOwner++
		}
		if r.Get(domain.FieldStatus) == "" {
			missingStatus++
		}
	}

	total := float64(len(sample))
	var warnings []string
	if missingID > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows have no lead id and will be skipped.", missingID))
	}
	if badID > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows have a lead id containing a comma and will be skipped.", badID))
	}
	if float64(missingName) > total*0.1 {
		warnings = append(warnings, fmt.Sprintf("Lead name missing in %d%% of rows.", pct(missingName, total)))
	}
	if float64(missingOwner) > total*0.2 {
		warnings = append(warnings, fmt.Sprintf("Deal owner missing or generic in %d%% of rows.", pct(missingOwner, total)))
	}
	if float64(missingStatus) > total*0.05 {
		warnings = append(warnings, fmt.Sprintf("Lead status missing in %d%% of rows.", pct(missingStatus, total)))
	}

	headers := make(map[string]bool)
	for k := range rows[0] {
		headers[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")] = true
	}
	for _, col := range RecommendedColumns {
		if !headers[strings.ToLower(col)] {
			warnings = append(warnings, fmt.Sprintf("Recommended column '%s' not found.", col))
		}
	}
	return warnings
}

func pct(n int, total float64) int {
	return int(math.Round(float64(n) / total * 100))
}
