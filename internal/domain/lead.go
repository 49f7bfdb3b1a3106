package domain

import (
	"strings"
	"time"
)

// VerificationState enumerates how trustworthy a lead's email address is.
type VerificationState string

const (
	VerificationVerified    VerificationState = "verified"
	VerificationGuessed     VerificationState = "guessed"
	VerificationUnavailable VerificationState = "unavailable"
)

// Rank orders verification states from weakest to strongest so criteria can
// express "at least guessed". Unknown states rank below unavailable.
func (v VerificationState) Rank() int {
	switch v {
	case VerificationVerified:
		return 2
	case VerificationGuessed:
		return 1
	case VerificationUnavailable:
		return 0
	}
	return -1
}

// EmploymentEntry is one row of a lead's employment history, most recent first.
type EmploymentEntry struct {
	Employer  string     `json:"employer" db:"employer"`
	Title     string     `json:"title" db:"title"`
	StartedAt *time.Time `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at" db:"ended_at"`
	IsCurrent bool       `json:"is_current" db:"is_current"`
}

// LeadRecord is the platform-wide record of a single real-world contact.
// One row exists per unique person; re-enrichment merges into the existing
// row, never duplicates it. The bounced/unsubscribed flags are global:
// once set they apply to every tenant, forever.
type LeadRecord struct {
	ID         string `json:"id" db:"id"`
	ExternalID string `json:"external_id" db:"external_id"`

	// Contact identities
	Email       string `json:"email" db:"email"`
	Phone       string `json:"phone,omitempty" db:"phone"`
	LinkedInURL string `json:"linkedin_url,omitempty" db:"linkedin_url"`

	// Person attributes
	FirstName  string            `json:"first_name" db:"first_name"`
	LastName   string            `json:"last_name" db:"last_name"`
	Title      string            `json:"title" db:"title"`
	Seniority  string            `json:"seniority" db:"seniority"`
	Location   string            `json:"location" db:"location"`
	Employment []EmploymentEntry `json:"employment,omitempty" db:"employment"`

	// Organization attributes
	CompanyName    string   `json:"company_name" db:"company_name"`
	CompanyDomain  string   `json:"company_domain" db:"company_domain"`
	Industry       string   `json:"industry" db:"industry"`
	EmployeeBucket string   `json:"employee_bucket" db:"employee_bucket"`
	RevenueBucket  string   `json:"revenue_bucket" db:"revenue_bucket"`
	Country        string   `json:"country" db:"country"`
	Region         string   `json:"region" db:"region"`
	TechTags       []string `json:"tech_tags,omitempty" db:"tech_tags"`
	HiringSignal   bool     `json:"hiring_signal" db:"hiring_signal"`
	FundingSignal  bool     `json:"funding_signal" db:"funding_signal"`

	// Enrichment metadata
	Source         string    `json:"source" db:"source"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	LastEnrichedAt time.Time `json:"last_enriched_at" db:"last_enriched_at"`

	// Pool-level global flags. Monotonic: once true, never unset.
	Bounced           bool              `json:"bounced" db:"bounced"`
	Unsubscribed      bool              `json:"unsubscribed" db:"unsubscribed"`
	EmailVerification VerificationState `json:"email_verification" db:"email_verification"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contactable reports whether the lead is eligible for any outreach at all.
// Pool-level flags block every tenant and every channel.
func (l *LeadRecord) Contactable() bool {
	return !l.Bounced && !l.Unsubscribed
}

// EmployeeBuckets is the ordered set of company-size buckets used across the
// pool. Criteria express a size range as a low/high rank over this list.
var EmployeeBuckets = []string{"1-10", "11-50", "51-200", "201-1000", "1001-5000", "5000+"}

// EmployeeBucketRank returns the position of a bucket in EmployeeBuckets,
// or -1 for an unknown bucket.
func EmployeeBucketRank(bucket string) int {
	for i, b := range EmployeeBuckets {
		if b == bucket {
			return i
		}
	}
	return -1
}

// NormalizeEmail lowercases and trims an email for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
