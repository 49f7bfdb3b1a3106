package domain

import "time"

// Tier is the named quality bucket derived from a lead's total score.
// Tiers gate which outreach channels a tenant may use for the lead.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCool Tier = "cool"
	TierCold Tier = "cold"
	TierDead Tier = "dead"
)

// ScoreSnapshot is an immutable point-in-time score for a (lead, tenant)
// pair. Outreach decisions read the latest snapshot; they never recompute
// live, so a send decision can't flip mid-flight.
type ScoreSnapshot struct {
	LeadID   string `json:"lead_id" db:"lead_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Sub-scores, each bounded to its own max. Risk is a deduction:
	// it is subtracted from the sum of the other four.
	Completeness int `json:"completeness" db:"completeness"`
	Authority    int `json:"authority" db:"authority"`
	CompanyFit   int `json:"company_fit" db:"company_fit"`
	Timing       int `json:"timing" db:"timing"`
	Risk         int `json:"risk" db:"risk"`

	Total int  `json:"total" db:"total"`
	Tier  Tier `json:"tier" db:"tier"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
