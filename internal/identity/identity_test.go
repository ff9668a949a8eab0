package identity

import (
	"testing"
	"time"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/policy"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "9876543210", want: "9876543210"},
		{name: "country code", raw: "+91 98765-43210", want: "9876543210"},
		{name: "leading zero", raw: "09876543210", want: "9876543210"},
		{name: "formatted", raw: "(987) 654 3210", want: "9876543210"},
		{name: "too short", raw: "12-345", want: "12345"},
		{name: "empty", raw: "", want: ""},
		{name: "letters only", raw: "n/a", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.raw); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMatchable(t *testing.T) {
	if !Matchable("9876543210") {
		t.Error("10 digits should be matchable")
	}
	if Matchable("12345") || Matchable("") {
		t.Error("short phones must not be matchable")
	}
}

func TestRowID(t *testing.T) {
	tests := []struct {
		name string
		row  domain.Row
		want string
	}{
		{name: "external id", row: domain.Row{"external_id": "L1", "lead_id": "X"}, want: "L1"},
		{name: "zoho id", row: domain.Row{"zoho_lead_id": " Z1 "}, want: "Z1"},
		{name: "lead id fallback", row: domain.Row{"external_id": "", "lead_id": "L9"}, want: "L9"},
		{name: "none", row: domain.Row{"lead_name": "Ravi"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RowID(tt.row); got != tt.want {
				t.Errorf("RowID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRowPhone(t *testing.T) {
	if got := RowPhone(domain.Row{"lead_phone": "98765 43210", "phone": "1"}); got != "98765 43210" {
		t.Errorf("lead_phone should win, got %q", got)
	}
	if got := RowPhone(domain.Row{"phone": " 9876543210 "}); got != "9876543210" {
		t.Errorf("phone fallback = %q", got)
	}
	if got := RowPhone(domain.Row{"Mobile": "+91-9876543210"}); got != "+91-9876543210" {
		t.Errorf("Mobile fallback = %q", got)
	}
	if got := RowPhone(domain.Row{}); got != "" {
		t.Errorf("empty row = %q", got)
	}
}

func TestIndex_LookupAliases(t *testing.T) {
	l1 := &domain.Lead{ExternalID: "L1", MergedFrom: []string{"L2"}}
	l3 := &domain.Lead{ExternalID: "L3"}
	idx := NewIndex([]*domain.Lead{l1, l3})

	if got, ok := idx.Lookup("L2"); !ok || got != l1 {
		t.Errorf("Lookup(L2) = %v, %v; want L1", got, ok)
	}
	if got := idx.Resolve("L2"); got != "L1" {
		t.Errorf("Resolve(L2) = %q, want L1", got)
	}
	if got := idx.Resolve("L404"); got != "L404" {
		t.Errorf("Resolve(L404) = %q, want L404", got)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
}

func TestIndex_DirectIDWinsOverAlias(t *testing.T) {
	l1 := &domain.Lead{ExternalID: "L1", MergedFrom: []string{"L2"}}
	l2 := &domain.Lead{ExternalID: "L2"}
	idx := NewIndex([]*domain.Lead{l1, l2})

	if got, _ := idx.Lookup("L2"); got != l2 {
		t.Errorf("Lookup(L2) returned alias owner, want direct record")
	}
}

func TestPhoneCollisions(t *testing.T) {
	leads := []*domain.Lead{
		{ExternalID: "L1", PhoneNormalized: "9876543210"},
		{ExternalID: "L2", PhoneNormalized: "9876543210"},
		{ExternalID: "L3", PhoneNormalized: "9000000000"},
		{ExternalID: "L4", PhoneNormalized: "12345"},
		{ExternalID: "L5", PhoneNormalized: "12345"},
		{ExternalID: "L6", PhoneNormalized: ""},
		{ExternalID: "L7", PhoneNormalized: ""},
		{ExternalID: "L8", PhoneNormalized: "1111111111"},
		{ExternalID: "L8", PhoneNormalized: "1111111111"},
	}

	got := PhoneCollisions(leads)
	if len(got) != 1 {
		t.Fatalf("expected 1 collision, got %d: %+v", len(got), got)
	}
	if got[0].Phone != "9876543210" || len(got[0].Leads) != 2 {
		t.Errorf("unexpected collision %+v", got[0])
	}
}

func TestRankPrimary(t *testing.T) {
	schema := policy.Default()
	now := time.Now()

	qualified := &domain.Lead{ExternalID: "L1", Fields: map[string]string{domain.FieldStatus: "Qualified", domain.FieldTotalActivity: "5"}, CreatedAt: now}
	followUp := &domain.Lead{ExternalID: "L2", Fields: map[string]string{domain.FieldStatus: "Follow Up", domain.FieldTotalActivity: "50"}, CreatedAt: now}

	ranked := RankPrimary([]*domain.Lead{followUp, qualified}, schema)
	if ranked[0].ExternalID != "L1" {
		t.Errorf("expected higher status to win, got %s", ranked[0].ExternalID)
	}

	busy := &domain.Lead{ExternalID: "L3", Fields: map[string]string{domain.FieldStatus: "Qualified", domain.FieldTotalActivity: "1,200"}, CreatedAt: now}
	ranked = RankPrimary([]*domain.Lead{qualified, busy}, schema)
	if ranked[0].ExternalID != "L3" {
		t.Errorf("expected activity tie-break to win, got %s", ranked[0].ExternalID)
	}

	older := &domain.Lead{ExternalID: "L9", Fields: map[string]string{domain.FieldStatus: "Qualified", domain.FieldTotalActivity: "5"}, CreatedAt: now.Add(-time.Hour)}
	ranked = RankPrimary([]*domain.Lead{qualified, older}, schema)
	if ranked[0].ExternalID != "L9" {
		t.Errorf("expected older record to win the final tie, got %s", ranked[0].ExternalID)
	}
}
