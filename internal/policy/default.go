package policy

import "github.com/onsitehq/leadq/internal/domain"

// DefaultFields is the tracked-field table for the CRM lead export.
var DefaultFields = []Field{
	{Name: domain.FieldStatus, Kind: KindEnum, Rule: RulePriority, Priority: StatusPriorities},
	{Name: domain.FieldStage, Kind: KindEnum, Rule: RulePriority, Priority: StagePriorities},

	{Name: "lead_created_date", Kind: KindDate, Rule: RuleKeepOlderDate},
	{Name: "user_date", Kind: KindDate, Rule: RuleKeepOlderDate},
	{Name: "last_touched_date_new", Kind: KindDate, Rule: RuleKeepNewerDate},
	{Name: "last_touched_date", Kind: KindDate, Rule: RuleKeepNewerDate},
	{Name: "notes_date", Kind: KindDate, Rule: RuleKeepNewerDate},

	{Name: domain.FieldNotes, Kind: KindText, Rule: RuleUnionNotes},

	{Name: "demo_booked", Kind: KindBool, Rule: RuleOrBool},
	{Name: "demo_done", Kind: KindBool, Rule: RuleOrBool},
	{Name: "sale_done", Kind: KindBool, Rule: RuleOrBool},
	{Name: "trial_activated", Kind: KindBool, Rule: RuleOrBool},
	{Name: "is_prospect", Kind: KindBool, Rule: RuleOrBool},
	{Name: "call_connected", Kind: KindBool, Rule: RuleOrBool},
	{Name: "app_installed", Kind: KindBool, Rule: RuleOrBool},
	{Name: "whatsapp_sent", Kind: KindBool, Rule: RuleOrBool},

	{Name: domain.FieldName, Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "company_name", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "Lead_email", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "lead_city", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "state_mobile", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "region", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "lead_source", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "lead_source_type", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "campaign_name", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "user_profession", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "Team_size", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "Construction_type", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "pre_qualification", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "user_type", Kind: KindEnrichment, Rule: RuleFillIfEmpty},
	{Name: "industry", Kind: KindEnrichment, Rule: RuleFillIfEmpty},

	{Name: "annual_revenue", Kind: KindMoney, Rule: RuleMaxNumeric},
	{Name: "price_pitched", Kind: KindMoney, Rule: RuleMaxNumeric},
	{Name: domain.FieldTotalActivity, Kind: KindMoney, Rule: RuleMaxNumeric},

	{Name: domain.FieldPhone, Kind: KindString, Rule: RuleOverwrite},
	{Name: "deal_owner", Kind: KindString, Rule: RuleOverwrite},
	{Name: "lead_owner_manager", Kind: KindString, Rule: RuleOverwrite},
	{Name: "call_disposition", Kind: KindString, Rule: RuleOverwrite},
}

// Default returns the schema built from DefaultFields.
func Default() *Schema {
	s, err := NewSchema(DefaultFields)
	if err != nil {
		panic(err)
	}
	return s
}
