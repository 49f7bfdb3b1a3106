package jit

import (
	"context"
	"testing"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
)

var checkNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeLeads struct{ leads map[string]*domain.LeadRecord }

func (f *fakeLeads) Get(_ context.Context, id string) (*domain.LeadRecord, error) {
	l, ok := f.leads[id]
	if !ok {
		return nil, pool.ErrNotFound
	}
	return l, nil
}

type fakeLedger struct{ assignments map[string]*domain.AssignmentRecord } // keyed lead|tenant

func (f *fakeLedger) ActiveForLeadTenant(_ context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error) {
	a, ok := f.assignments[leadID+"|"+tenantID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return a, nil
}

type fakeScores struct{ snaps map[string]*domain.ScoreSnapshot } // keyed lead|tenant

func (f *fakeScores) Latest(_ context.Context, leadID, tenantID string) (*domain.ScoreSnapshot, error) {
	return f.snaps[leadID+"|"+tenantID], nil
}

type fakeGate struct {
	ready bool
	cap   int
}

func (f *fakeGate) Ready(context.Context, domain.ResourceKind, string) (bool, error) {
	return f.ready, nil
}

func (f *fakeGate) EffectiveCap(context.Context, domain.ResourceKind, string) (int, error) {
	return f.cap, nil
}

type fakeLimiter struct {
	used  int64
	calls int
}

func (f *fakeLimiter) Allow(_ context.Context, _ domain.ResourceKind, _ string, limit int) (bool, int64, error) {
	f.calls++
	if int(f.used)+1 > limit {
		return false, f.used, nil
	}
	f.used++
	return true, f.used, nil
}

// fixture builds a validator around a healthy verified lead with an
// active assignment, a Hot score, and a ready uncapped resource. Each
// test then breaks exactly one precondition.
type fixture struct {
	leads   *fakeLeads
	ledger  *fakeLedger
	scores  *fakeScores
	gate    *fakeGate
	limiter *fakeLimiter
	v       *Validator
}

func newFixture() *fixture {
	f := &fixture{
		leads: &fakeLeads{leads: map[string]*domain.LeadRecord{
			"lead-1": {ID: "lead-1", Email: "a@b.example", EmailVerification: domain.VerificationVerified},
		}},
		ledger: &fakeLedger{assignments: map[string]*domain.AssignmentRecord{
			"lead-1|tenant-a": {ID: "as-1", LeadID: "lead-1", TenantID: "tenant-a", Status: domain.AssignmentActive},
		}},
		scores: &fakeScores{snaps: map[string]*domain.ScoreSnapshot{
			"lead-1|tenant-a": {LeadID: "lead-1", TenantID: "tenant-a", Total: 90, Tier: domain.TierHot},
		}},
		gate:    &fakeGate{ready: true, cap: 100},
		limiter: &fakeLimiter{},
	}
	f.v = NewValidator(f.leads, f.ledger, f.scores, f.gate, f.limiter, DefaultConfig())
	f.v.now = func() time.Time { return checkNow }
	return f
}

func request() Request {
	return Request{LeadID: "lead-1", TenantID: "tenant-a", Channel: domain.ChannelEmail, ResourceID: "mail.example"}
}

func check(t *testing.T, f *fixture, req Request) Result {
	t.Helper()
	res, err := f.v.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return res
}

func TestCheckHealthyLeadPasses(t *testing.T) {
	res := check(t, newFixture(), request())
	if !res.OK {
		t.Errorf("expected pass, got %s: %s", res.Reason, res.Message)
	}
}

func TestCheckUnknownChannelIsError(t *testing.T) {
	f := newFixture()
	req := request()
	req.Channel = "pigeon"
	if _, err := f.v.Check(context.Background(), req); err == nil {
		t.Error("unknown channel should be an error, not a typed failure")
	}
}

func TestCheckGloballyBounced(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].Bounced = true
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonGloballyBounced {
		t.Errorf("got %+v, want GloballyBounced", res)
	}
}

func TestCheckGloballyUnsubscribed(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].Unsubscribed = true
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonGloballyUnsubscribed {
		t.Errorf("got %+v, want GloballyUnsubscribed", res)
	}
}

func TestCheckGuessedEmailBlocksEmailChannel(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].EmailVerification = domain.VerificationGuessed
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonUnverifiedEmail {
		t.Errorf("got %+v, want UnverifiedEmail", res)
	}
}

func TestCheckGuessedEmailAllowsOtherChannels(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].EmailVerification = domain.VerificationGuessed
	req := request()
	req.Channel = domain.ChannelLinkedIn
	if res := check(t, f, req); !res.OK {
		t.Errorf("verification should only gate the email channel, got %s", res.Reason)
	}
}

func TestCheckNotAssignedToTenant(t *testing.T) {
	f := newFixture()
	req := request()
	req.TenantID = "tenant-b"
	res := check(t, f, req)
	if res.OK || res.Reason != ReasonNotAssignedToTenant {
		t.Errorf("got %+v, want NotAssignedToTenant", res)
	}
}

func TestCheckMissingLead(t *testing.T) {
	f := newFixture()
	req := request()
	req.LeadID = "lead-unknown"
	res := check(t, f, req)
	if res.OK || res.Reason != ReasonNotAssignedToTenant {
		t.Errorf("got %+v, want NotAssignedToTenant", res)
	}
}

func TestCheckAlreadyReplied(t *testing.T) {
	f := newFixture()
	f.ledger.assignments["lead-1|tenant-a"].Replied = true
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonAlreadyReplied {
		t.Errorf("got %+v, want AlreadyReplied", res)
	}
}

func TestCheckAlreadyConverted(t *testing.T) {
	f := newFixture()
	f.ledger.assignments["lead-1|tenant-a"].Status = domain.AssignmentConverted
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonAlreadyConverted {
		t.Errorf("got %+v, want AlreadyConverted", res)
	}
}

func TestCheckTouchGap(t *testing.T) {
	f := newFixture()
	last := checkNow.Add(-24 * time.Hour) // 1 day ago, default gap is 3 days
	f.ledger.assignments["lead-1|tenant-a"].LastContactAt = &last
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonTooSoonSinceLastContact {
		t.Errorf("got %+v, want TooSoonSinceLastContact", res)
	}

	// Past the gap the same send goes through (email cooldown permitting).
	old := checkNow.Add(-6 * 24 * time.Hour)
	f.ledger.assignments["lead-1|tenant-a"].LastContactAt = &old
	if res := check(t, f, request()); !res.OK {
		t.Errorf("expected pass after the gap, got %s", res.Reason)
	}
}

func TestCheckChannelCooldown(t *testing.T) {
	f := newFixture()
	a := f.ledger.assignments["lead-1|tenant-a"]
	gapOK := checkNow.Add(-4 * 24 * time.Hour) // past the 3-day touch gap
	a.LastContactAt = &gapOK
	a.ChannelLastUsed = map[domain.Channel]time.Time{
		domain.ChannelEmail: gapOK, // email cooldown is 5 days
	}
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonChannelOnCooldown {
		t.Errorf("got %+v, want ChannelOnCooldown", res)
	}

	// A different channel is not on cooldown.
	req := request()
	req.Channel = domain.ChannelLinkedIn
	if res := check(t, f, req); !res.OK {
		t.Errorf("cooldown must be per-channel, got %s", res.Reason)
	}
}

func TestCheckTierEligibility(t *testing.T) {
	f := newFixture()
	f.scores.snaps["lead-1|tenant-a"].Tier = domain.TierCool
	f.scores.snaps["lead-1|tenant-a"].Total = 50

	req := request()
	req.Channel = domain.ChannelSMS
	res := check(t, f, req)
	if res.OK || res.Reason != ReasonChannelNotEligibleForTier {
		t.Errorf("cool tier sms: got %+v, want ChannelNotEligibleForTier", res)
	}

	// The same channel is fine for a hot lead.
	f.scores.snaps["lead-1|tenant-a"].Tier = domain.TierHot
	if res := check(t, f, req); !res.OK {
		t.Errorf("hot tier sms should pass, got %s", res.Reason)
	}
}

func TestCheckUnscoredLeadTreatedAsDead(t *testing.T) {
	f := newFixture()
	delete(f.scores.snaps, "lead-1|tenant-a")
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonChannelNotEligibleForTier {
		t.Errorf("got %+v, want ChannelNotEligibleForTier for unscored lead", res)
	}
}

func TestCheckResourceNotReady(t *testing.T) {
	f := newFixture()
	f.gate.ready = false
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonResourceNotReady {
		t.Errorf("got %+v, want ResourceNotReady", res)
	}
	if f.limiter.calls != 0 {
		t.Error("an unready resource must not consume a send slot")
	}
}

func TestCheckResourceRateLimit(t *testing.T) {
	f := newFixture()
	f.gate.cap = 2

	for i := 0; i < 2; i++ {
		if res := check(t, f, request()); !res.OK {
			t.Fatalf("send %d should pass, got %s", i+1, res.Reason)
		}
	}
	res := check(t, f, request())
	if res.OK || res.Reason != ReasonResourceRateLimitExceeded {
		t.Errorf("got %+v, want ResourceRateLimitExceeded", res)
	}
}

// A failing check must not consume a slot: the rate-limit guard runs
// after every other guard.
func TestCheckFailedGuardsDoNotBurnSlots(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].Bounced = true
	for i := 0; i < 3; i++ {
		check(t, f, request())
	}
	if f.limiter.calls != 0 {
		t.Errorf("limiter consulted %d times for a blocked lead", f.limiter.calls)
	}
}

// Pool flags outrank everything: a bounced lead reports GloballyBounced
// even when the assignment is also converted and the resource is down.
func TestCheckGuardOrdering(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].Bounced = true
	f.ledger.assignments["lead-1|tenant-a"].Status = domain.AssignmentConverted
	f.gate.ready = false

	res := check(t, f, request())
	if res.Reason != ReasonGloballyBounced {
		t.Errorf("got %s, want GloballyBounced to win the ordering", res.Reason)
	}
}

// Repeating a failing check yields the same reason every time.
func TestCheckFailuresAreIdempotent(t *testing.T) {
	f := newFixture()
	f.leads.leads["lead-1"].EmailVerification = domain.VerificationGuessed
	first := check(t, f, request())
	second := check(t, f, request())
	if first.Reason != second.Reason {
		t.Errorf("reasons differ across identical checks: %s vs %s", first.Reason, second.Reason)
	}
}
