// Package scoring computes lead quality scores and derives tiers.
//
// Scoring is a pure function of lead attributes and a weight vector: five
// bounded sub-scores (data completeness, authority, company fit, timing,
// and a risk deduction) combine into a 0-100 total, which maps to a tier
// through a single ordered threshold table. Tenants may override the
// default weights; the scorer just applies whatever vector it is handed.
package scoring

import (
	"strings"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
)

// Sub-score bounds. Risk is a deduction and has its own cap.
const (
	MaxCompleteness = 25
	MaxAuthority    = 25
	MaxCompanyFit   = 25
	MaxTiming       = 25
	MaxRisk         = 30
)

// Weights scales each sub-score before combining. A weight of 1.0 leaves
// the sub-score untouched. The risk weight scales the deduction.
type Weights struct {
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Authority    float64 `json:"authority" yaml:"authority"`
	CompanyFit   float64 `json:"company_fit" yaml:"company_fit"`
	Timing       float64 `json:"timing" yaml:"timing"`
	Risk         float64 `json:"risk" yaml:"risk"`
}

// DefaultWeights returns the platform default weight vector.
func DefaultWeights() Weights {
	return Weights{Completeness: 1, Authority: 1, CompanyFit: 1, Timing: 1, Risk: 1}
}

// Score computes a snapshot for the given lead under the given weights.
// now is injected so recomputation cadences stay deterministic in tests.
func Score(lead *domain.LeadRecord, tenantID string, w Weights, now time.Time) domain.ScoreSnapshot {
	s := domain.ScoreSnapshot{
		LeadID:       lead.ID,
		TenantID:     tenantID,
		Completeness: completeness(lead),
		Authority:    authority(lead),
		CompanyFit:   companyFit(lead),
		Timing:       timing(lead, now),
		Risk:         risk(lead),
		ComputedAt:   now,
	}

	total := w.Completeness*float64(s.Completeness) +
		w.Authority*float64(s.Authority) +
		w.CompanyFit*float64(s.CompanyFit) +
		w.Timing*float64(s.Timing) -
		w.Risk*float64(s.Risk)

	s.Total = clamp(int(total+0.5), 0, 100)
	s.Tier = TierForScore(s.Total)
	return s
}

// completeness rewards filled contact and firmographic fields.
func completeness(l *domain.LeadRecord) int {
	fields := []bool{
		l.Email != "",
		l.Phone != "",
		l.LinkedInURL != "",
		l.Title != "",
		l.CompanyDomain != "",
		l.Industry != "",
		l.EmployeeBucket != "",
		l.Country != "",
		len(l.Employment) > 0,
		l.EmailVerification == domain.VerificationVerified,
	}
	filled := 0
	for _, ok := range fields {
		if ok {
			filled++
		}
	}
	return clamp(filled*MaxCompleteness/len(fields), 0, MaxCompleteness)
}

// authorityLevels is ordered: first match on title or seniority wins.
var authorityLevels = []struct {
	Keywords []string
	Points   int
}{
	{[]string{"chief", "ceo", "cto", "cfo", "cmo", "coo", "founder", "owner", "president"}, 25},
	{[]string{"vp", "vice president", "partner"}, 20},
	{[]string{"head of", "director"}, 15},
	{[]string{"manager", "lead"}, 10},
}

func authority(l *domain.LeadRecord) int {
	haystack := strings.ToLower(l.Title + " " + l.Seniority)
	if haystack == " " {
		return 0
	}
	for _, level := range authorityLevels {
		for _, kw := range level.Keywords {
			if strings.Contains(haystack, kw) {
				return level.Points
			}
		}
	}
	return 5
}

// companyFit rewards firmographic substance: a real domain, a known size
// bucket, revenue data, and a technology footprint.
func companyFit(l *domain.LeadRecord) int {
	pts := 0
	if l.CompanyDomain != "" {
		pts += 6
	}
	if domain.EmployeeBucketRank(l.EmployeeBucket) >= 0 {
		pts += 6
	}
	if l.RevenueBucket != "" {
		pts += 5
	}
	if l.Industry != "" {
		pts += 4
	}
	switch n := len(l.TechTags); {
	case n >= 3:
		pts += 4
	case n > 0:
		pts += 2
	}
	return clamp(pts, 0, MaxCompanyFit)
}

// timing rewards buying signals and freshness: hiring/funding activity,
// a recent job change, and recent enrichment.
func timing(l *domain.LeadRecord, now time.Time) int {
	pts := 0
	if l.HiringSignal {
		pts += 8
	}
	if l.FundingSignal {
		pts += 8
	}
	for _, e := range l.Employment {
		if e.IsCurrent && e.StartedAt != nil && now.Sub(*e.StartedAt) < 180*24*time.Hour {
			pts += 5
			break
		}
	}
	if !l.LastEnrichedAt.IsZero() && now.Sub(l.LastEnrichedAt) < 30*24*time.Hour {
		pts += 4
	}
	return clamp(pts, 0, MaxTiming)
}

// risk is deduction-oriented: higher risk lowers the total, never raises it.
func risk(l *domain.LeadRecord) int {
	pts := 0
	switch l.EmailVerification {
	case domain.VerificationGuessed:
		pts += 8
	case domain.VerificationUnavailable:
		pts += 15
	}
	if l.Confidence > 0 && l.Confidence < 0.5 {
		pts += 8
	}
	if l.Phone == "" && l.LinkedInURL == "" {
		pts += 5
	}
	if l.CompanyDomain == "" {
		pts += 5
	}
	return clamp(pts, 0, MaxRisk)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
