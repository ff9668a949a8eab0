// Package insights computes dashboard summaries over the stored leads.
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/policy"
)

// StaleDays is how long an active lead may go untouched before it is stale.
const StaleDays = 30

// Distribution sizes.
const (
	topStatuses     = 15
	topSources      = 15
	topRegions      = 10
	topStages       = 10
	topDispositions = 12
	topOwners       = 20
)

// closedStatuses are never stale.
var closedStatuses = map[string]bool{"Purchased": true, "Rejected": true, "DTA": true}

// genericOwners are placeholder owners excluded from the owner table.
var genericOwners = map[string]bool{"Onsite": true, "Offline Campaign": true}

// KPIs are the headline counters.
type KPIs struct {
	Total             int     `json:"total"`
	DemoBooked        int     `json:"demo_booked"`
	DemoDone          int     `json:"demo_done"`
	SaleDone          int     `json:"sale_done"`
	Purchased         int     `json:"purchased"`
	Priority          int     `json:"priority"`
	Prospects         int     `json:"prospects"`
	Qualified         int     `json:"qualified"`
	TotalRevenue      float64 `json:"total_revenue"`
	TotalPricePitched float64 `json:"total_price_pitched"`
}

// Bucket is one entry of a value distribution.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Owner is one row of the deal owner table.
type Owner struct {
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Demos    int    `json:"demos"`
	Sales    int    `json:"sales"`
	Priority int    `json:"priority"`
	Stale    int    `json:"stale"`
}

// Summary is the full dashboard payload.
type Summary struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	KPIs          KPIs                `json:"kpis"`
	Distributions map[string][]Bucket `json:"distributions"`
	Funnel        []Bucket            `json:"funnel"`
	Owners        []Owner             `json:"owners"`
	Stale         int                 `json:"stale_30"`
	BookedNotDone int                 `json:"booked_not_done"`
	DemoRate      float64             `json:"demo_rate"`
	SaleRate      float64             `json:"sale_rate"`
}

// Compute summarizes leads as of now.
func Compute(leads []*domain.Lead, now time.Time) *Summary {
	s := &Summary{GeneratedAt: now.UTC()}
	k := &s.KPIs
	k.Total = len(leads)

	var trial, prospectFlag int
	owners := make(map[string]*Owner)
	for _, l := range leads {
		status := l.Status()
		demoDone := flag(l, "demo_done") || status == "Demo Done"
		saleDone := flag(l, "sale_done")

		if flag(l, "demo_booked") {
			k.DemoBooked++
		}
		if demoDone {
			k.DemoDone++
		}
		if saleDone {
			k.SaleDone++
		}
		switch status {
		case "Purchased":
			k.Purchased++
		case "Priority":
			k.Priority++
		case "Qualified":
			k.Qualified++
		}
		if flag(l, "is_prospect") || strings.Contains(l.Stage(), "Prospect") {
			k.Prospects++
		}
		if flag(l, "is_prospect") {
			prospectFlag++
		}
		if flag(l, "trial_activated") {
			trial++
		}
		if saleDone || status == "Purchased" {
			k.TotalRevenue += policy.ParseNumber(l.Get("annual_revenue"))
			k.TotalPricePitched += policy.ParseNumber(l.Get("price_pitched"))
		}

		stale := isStale(l, now)
		if stale {
			s.Stale++
		}

		name := strings.TrimSpace(l.Get("deal_owner"))
		if name == "" || genericOwners[name] {
			continue
		}
		o, ok := owners[name]
		if !ok {
			o = &Owner{Name: name}
			owners[name] = o
		}
		o.Total++
		if flag(l, "demo_done") {
			o.Demos++
		}
		if saleDone {
			o.Sales++
		}
		if status == "Priority" {
			o.Priority++
		}
		if stale {
			o.Stale++
		}
	}

	s.Distributions = map[string][]Bucket{
		"status":      topCounts(leads, domain.FieldStatus, topStatuses),
		"source":      topCounts(leads, "lead_source", topSources),
		"region":      topCounts(leads, "region", topRegions),
		"stage":       topCounts(leads, domain.FieldStage, topStages),
		"disposition": topCounts(leads, "call_disposition", topDispositions),
	}
	s.Funnel = []Bucket{
		{"Total Leads", k.Total},
		{"Demo Booked", k.DemoBooked},
		{"Demo Done", k.DemoDone},
		{"Trial Activated", trial},
		{"Prospect", prospectFlag},
		{"Sale Done", k.SaleDone},
		{"Purchased", k.Purchased},
	}
	s.Owners = rankOwners(owners, topOwners)
	if k.DemoBooked > k.DemoDone {
		s.BookedNotDone = k.DemoBooked - k.DemoDone
	}
	if k.Total > 0 {
		s.DemoRate = round1(float64(k.DemoDone) / float64(k.Total) * 100)
		s.SaleRate = round1(float64(k.SaleDone) / float64(k.Total) * 100)
	}
	return s
}

func flag(l *domain.Lead, field string) bool {
	return strings.TrimSpace(l.Get(field)) == "1"
}

// isStale reports whether a lead that is still open has gone untouched for
// more than StaleDays. A missing touch date counts as stale.
func isStale(l *domain.Lead, now time.Time) bool {
	if closedStatuses[l.Status()] {
		return false
	}
	touched, ok := policy.ParseDate(l.Get("last_touched_date_new"))
	if !ok {
		return true
	}
	return now.Sub(touched) > StaleDays*24*time.Hour
}

func topCounts(leads []*domain.Lead, field string, n int) []Bucket {
	counts := make(map[string]int)
	for _, l := range leads {
		if v := strings.TrimSpace(l.Get(field)); v != "" {
			counts[v]++
		}
	}
	out := make([]Bucket, 0, len(counts))
	for name, v := range counts {
		out = append(out, Bucket{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func rankOwners(owners map[string]*Owner, n int) []Owner {
	out := make([]Owner, 0, len(owners))
	for _, o := range owners {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
