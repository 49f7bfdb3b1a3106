package scoring

import (
	"testing"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
)

var scoreNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func completeLead() *domain.LeadRecord {
	started := scoreNow.Add(-60 * 24 * time.Hour)
	return &domain.LeadRecord{
		ID:          "lead-1",
		Email:       "jane@acme.example",
		Phone:       "+15550100",
		LinkedInURL: "https://linkedin.example/in/jane",
		Title:       "Chief Revenue Officer",
		Seniority:   "c-suite",
		Employment: []domain.EmploymentEntry{
			{Employer: "Acme", Title: "CRO", StartedAt: &started, IsCurrent: true},
		},
		CompanyDomain:     "acme.example",
		Industry:          "software",
		EmployeeBucket:    "201-1000",
		RevenueBucket:     "$10M-$50M",
		Country:           "US",
		TechTags:          []string{"salesforce", "aws", "kubernetes"},
		HiringSignal:      true,
		FundingSignal:     true,
		Confidence:        0.95,
		LastEnrichedAt:    scoreNow.Add(-2 * 24 * time.Hour),
		EmailVerification: domain.VerificationVerified,
	}
}

func TestScoreCompleteLeadIsHot(t *testing.T) {
	snap := Score(completeLead(), "tenant-a", DefaultWeights(), scoreNow)
	if snap.Total != 100 {
		t.Errorf("total = %d, want 100", snap.Total)
	}
	if snap.Tier != domain.TierHot {
		t.Errorf("tier = %s, want hot", snap.Tier)
	}
	if snap.Completeness != MaxCompleteness || snap.Authority != MaxAuthority ||
		snap.CompanyFit != MaxCompanyFit || snap.Timing != MaxTiming {
		t.Errorf("sub-scores not maxed: %+v", snap)
	}
	if snap.Risk != 0 {
		t.Errorf("risk = %d, want 0", snap.Risk)
	}
}

func TestScoreEmptyLeadIsDead(t *testing.T) {
	snap := Score(&domain.LeadRecord{ID: "lead-2"}, "tenant-a", DefaultWeights(), scoreNow)
	if snap.Tier != domain.TierDead {
		t.Errorf("tier = %s, want dead", snap.Tier)
	}
	if snap.Total < 0 || snap.Total > 100 {
		t.Errorf("total %d out of range", snap.Total)
	}
}

func TestScoreGuessedEmailRaisesRisk(t *testing.T) {
	verified := Score(completeLead(), "tenant-a", DefaultWeights(), scoreNow)

	guessed := completeLead()
	guessed.EmailVerification = domain.VerificationGuessed
	snapGuessed := Score(guessed, "tenant-a", DefaultWeights(), scoreNow)

	if snapGuessed.Risk <= verified.Risk {
		t.Errorf("guessed risk %d should exceed verified risk %d", snapGuessed.Risk, verified.Risk)
	}
	if snapGuessed.Total >= verified.Total {
		t.Errorf("guessed total %d should be below verified total %d", snapGuessed.Total, verified.Total)
	}
}

func TestScoreUnavailableEmailWorstRisk(t *testing.T) {
	guessed := completeLead()
	guessed.EmailVerification = domain.VerificationGuessed
	unavailable := completeLead()
	unavailable.EmailVerification = domain.VerificationUnavailable

	g := Score(guessed, "tenant-a", DefaultWeights(), scoreNow)
	u := Score(unavailable, "tenant-a", DefaultWeights(), scoreNow)
	if u.Risk <= g.Risk {
		t.Errorf("unavailable risk %d should exceed guessed risk %d", u.Risk, g.Risk)
	}
}

func TestScoreAuthorityLevels(t *testing.T) {
	cases := []struct {
		title string
		want  int
	}{
		{"CEO & Founder", 25},
		{"VP of Sales", 20},
		{"Director of Engineering", 15},
		{"Head of Growth", 15},
		{"Marketing Manager", 10},
		{"Account Executive", 5},
	}
	for _, tc := range cases {
		l := &domain.LeadRecord{Title: tc.title}
		if got := authority(l); got != tc.want {
			t.Errorf("authority(%q) = %d, want %d", tc.title, got, tc.want)
		}
	}
	if got := authority(&domain.LeadRecord{}); got != 0 {
		t.Errorf("authority with no title = %d, want 0", got)
	}
}

func TestScoreClampedToZeroUnderHeavyRiskWeight(t *testing.T) {
	l := &domain.LeadRecord{ID: "lead-3", Email: "x@y.example", EmailVerification: domain.VerificationUnavailable}
	w := DefaultWeights()
	w.Risk = 10
	snap := Score(l, "tenant-a", w, scoreNow)
	if snap.Total != 0 {
		t.Errorf("total = %d, want clamp to 0", snap.Total)
	}
	if snap.Tier != domain.TierDead {
		t.Errorf("tier = %s, want dead", snap.Tier)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	a := Score(completeLead(), "tenant-a", DefaultWeights(), scoreNow)
	b := Score(completeLead(), "tenant-a", DefaultWeights(), scoreNow)
	if a != b {
		t.Errorf("same inputs produced different snapshots:\n%+v\n%+v", a, b)
	}
}

func TestScoreWeightsScaleSubScores(t *testing.T) {
	l := completeLead()
	base := Score(l, "tenant-a", DefaultWeights(), scoreNow)

	w := DefaultWeights()
	w.Authority = 0
	reduced := Score(l, "tenant-a", w, scoreNow)
	if reduced.Total >= base.Total {
		t.Errorf("zeroing the authority weight should lower the total: %d >= %d", reduced.Total, base.Total)
	}
	// Sub-scores themselves are unweighted; only the total moves.
	if reduced.Authority != base.Authority {
		t.Errorf("authority sub-score changed with weight: %d != %d", reduced.Authority, base.Authority)
	}
}
