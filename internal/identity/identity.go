// Package identity decides whether incoming rows and stored leads refer to
// the same real-world lead: exactly by external id, softly by phone.
package identity

import (
	"sort"
	"strings"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/policy"
)

// PhoneDigits is the length of a matchable normalized phone.
const PhoneDigits = 10

// IDColumns are the row columns read for the external id, in order.
var IDColumns = []string{"external_id", "zoho_lead_id", "lead_id"}

// PhoneColumns are the row columns read for the lead's phone, in order.
var PhoneColumns = []string{"lead_phone", "phone", "Phone", "mobile", "Mobile", "contact_number", "Phone Number"}

// NormalizePhone strips every non-digit and keeps the last ten digits.
// Shorter numbers are returned as the stripped digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) >= PhoneDigits {
		return digits[len(digits)-PhoneDigits:]
	}
	return digits
}

// Matchable reports whether a normalized phone takes part in soft matching.
func Matchable(normalized string) bool {
	return len(normalized) == PhoneDigits
}

// RowID returns the row's external id, falling back through IDColumns.
func RowID(row domain.Row) string {
	for _, col := range IDColumns {
		if id := row.Get(col); id != "" {
			return id
		}
	}
	return ""
}

// RowPhone returns the row's raw phone, falling back through PhoneColumns.
func RowPhone(row domain.Row) string {
	for _, col := range PhoneColumns {
		if p := row.Get(col); p != "" {
			return p
		}
	}
	return ""
}

// Index resolves external ids (and absorbed aliases) to stored leads.
type Index struct {
	byID    map[string]*domain.Lead
	aliases map[string]*domain.Lead
}

// NewIndex builds the lookup once per batch.
func NewIndex(leads []*domain.Lead) *Index {
	idx := &Index{
		byID:    make(map[string]*domain.Lead, len(leads)),
		aliases: make(map[string]*domain.Lead),
	}
	for _, l := range leads {
		idx.byID[l.ExternalID] = l
	}
	for _, l := range leads {
		for _, alias := range l.MergedFrom {
			if _, direct := idx.byID[alias]; !direct {
				idx.aliases[alias] = l
			}
		}
	}
	return idx
}

// Lookup returns the stored lead for id. Direct ids win over aliases.
func (idx *Index) Lookup(id string) (*domain.Lead, bool) {
	if l, ok := idx.byID[id]; ok {
		return l, true
	}
	l, ok := idx.aliases[id]
	return l, ok
}

// Resolve returns the canonical external id for id, or id itself when unknown.
func (idx *Index) Resolve(id string) string {
	if l, ok := idx.Lookup(id); ok {
		return l.ExternalID
	}
	return id
}

// Len returns the number of indexed leads.
func (idx *Index) Len() int {
	return len(idx.byID)
}

// Collision is a set of distinct leads sharing one normalized phone.
type Collision struct {
	Phone string
	Leads []*domain.Lead
}

// PhoneCollisions groups leads by matchable phone and returns every group
// holding two or more distinct external ids, ordered by phone.
func PhoneCollisions(leads []*domain.Lead) []Collision {
	groups := make(map[string][]*domain.Lead)
	seen := make(map[string]map[string]bool)
	for _, l := range leads {
		phone := l.PhoneNormalized
		if !Matchable(phone) {
			continue
		}
		if seen[phone] == nil {
			seen[phone] = make(map[string]bool)
		}
		if seen[phone][l.ExternalID] {
			continue
		}
		seen[phone][l.ExternalID] = true
		groups[phone] = append(groups[phone], l)
	}

	var out []Collision
	for phone, group := range groups {
		if len(group) < 2 {
			continue
		}
		out = append(out, Collision{Phone: phone, Leads: group})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

// RankPrimary orders a collision group so the surviving record comes first:
// highest status priority, then highest total_activity, then the oldest
// record, then the smallest external id.
func RankPrimary(group []*domain.Lead, schema *policy.Schema) []*domain.Lead {
	ranked := append([]*domain.Lead(nil), group...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ra, rb := schema.StatusRank(a.Status()), schema.StatusRank(b.Status()); ra != rb {
			return ra > rb
		}
		if aa, ab := policy.ParseNumber(a.Get(domain.FieldTotalActivity)), policy.ParseNumber(b.Get(domain.FieldTotalActivity)); aa != ab {
			return aa > ab
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ExternalID < b.ExternalID
	})
	return ranked
}
