// Package jit implements the just-in-time pre-send gate.
//
// Every outbound engine must call Check immediately before every single
// send attempt, with no caching of a prior pass. The check is an ordered
// pipeline of independent guards: each either falls through or fails fast
// with a typed reason. Cheap pool-level guards run first so expensive
// resource checks never execute for a lead that is globally blocked, and
// the rate-limit guard runs late so it only consumes a send slot once
// every other condition holds.
package jit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/scoring"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// LeadReader is the slice of the pool the validator needs.
type LeadReader interface {
	Get(ctx context.Context, id string) (*domain.LeadRecord, error)
}

// AssignmentReader is the slice of the ledger the validator needs.
type AssignmentReader interface {
	ActiveForLeadTenant(ctx context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error)
}

// ScoreReader returns the latest immutable score snapshot for a
// (lead, tenant) pair, or nil if the lead has never been scored. The
// validator never recomputes scores live.
type ScoreReader interface {
	Latest(ctx context.Context, leadID, tenantID string) (*domain.ScoreSnapshot, error)
}

// ResourceGate answers readiness and capacity questions about a sending
// resource (domain, phone number, or seat).
type ResourceGate interface {
	Ready(ctx context.Context, kind domain.ResourceKind, id string) (bool, error)
	EffectiveCap(ctx context.Context, kind domain.ResourceKind, id string) (int, error)
}

// SlotLimiter consumes one daily send slot atomically.
type SlotLimiter interface {
	Allow(ctx context.Context, kind domain.ResourceKind, id string, limit int) (bool, int64, error)
}

// Config holds the validator's timing rules.
type Config struct {
	// MinTouchGap is the minimum time between any two touches on the
	// same assignment, regardless of channel.
	MinTouchGap time.Duration

	// ChannelCooldown is the per-channel re-use window.
	ChannelCooldown map[domain.Channel]time.Duration
}

// DefaultConfig returns the platform default timing rules.
func DefaultConfig() Config {
	return Config{
		MinTouchGap: 3 * 24 * time.Hour,
		ChannelCooldown: map[domain.Channel]time.Duration{
			domain.ChannelEmail:    5 * 24 * time.Hour,
			domain.ChannelSMS:      7 * 24 * time.Hour,
			domain.ChannelLinkedIn: 7 * 24 * time.Hour,
			domain.ChannelVoice:    10 * 24 * time.Hour,
			domain.ChannelMail:     21 * 24 * time.Hour,
		},
	}
}

// Request identifies one intended send.
type Request struct {
	LeadID     string         `json:"lead_id"`
	TenantID   string         `json:"tenant_id"`
	Channel    domain.Channel `json:"channel"`
	ResourceID string         `json:"resource_id"` // sending domain, number, or seat
}

// Validator runs the pre-send guard pipeline.
type Validator struct {
	leads   LeadReader
	ledger  AssignmentReader
	scores  ScoreReader
	gate    ResourceGate
	limiter SlotLimiter
	cfg     Config
	now     func() time.Time
}

// NewValidator wires a validator from its collaborators.
func NewValidator(leads LeadReader, assignments AssignmentReader, scores ScoreReader, gate ResourceGate, limiter SlotLimiter, cfg Config) *Validator {
	if cfg.MinTouchGap == 0 {
		cfg = DefaultConfig()
	}
	return &Validator{
		leads:   leads,
		ledger:  assignments,
		scores:  scores,
		gate:    gate,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
	}
}

// checkState carries loaded records between guards so each guard stays a
// small pure-ish function and nothing is fetched twice.
type checkState struct {
	req        Request
	lead       *domain.LeadRecord
	assignment *domain.AssignmentRecord
	now        time.Time
}

// guard is one step of the pipeline. A passing guard returns an OK
// result; the pipeline stops at the first failure. Errors are real
// infrastructure faults and propagate uncaught.
type guard struct {
	name string
	fn   func(ctx context.Context, st *checkState) (Result, error)
}

// Check runs the full guard battery for one intended send. The result is
// valid only for this instant; callers must re-check before every attempt.
func (v *Validator) Check(ctx context.Context, req Request) (Result, error) {
	if !req.Channel.Valid() {
		return Result{}, fmt.Errorf("unknown channel %q", req.Channel)
	}

	st := &checkState{req: req, now: v.now().UTC()}
	pipeline := []guard{
		{"pool_flags", v.guardPoolFlags},
		{"email_verification", v.guardEmailVerification},
		{"assignment_state", v.guardAssignmentState},
		{"touch_gap", v.guardTouchGap},
		{"channel_cooldown", v.guardChannelCooldown},
		{"tier_eligibility", v.guardTierEligibility},
		{"resource_ready", v.guardResourceReady},
		{"resource_rate_limit", v.guardResourceRateLimit},
	}

	for _, g := range pipeline {
		res, err := g.fn(ctx, st)
		if err != nil {
			return Result{}, fmt.Errorf("jit guard %s: %w", g.name, err)
		}
		if !res.OK {
			logger.Debug("jit check failed",
				"guard", g.name, "reason", string(res.Reason),
				"lead_id", req.LeadID, "tenant_id", req.TenantID, "channel", string(req.Channel))
			return res, nil
		}
	}
	return Pass(), nil
}

// guardPoolFlags blocks leads that bounced or unsubscribed anywhere on
// the platform, regardless of which tenant is asking.
func (v *Validator) guardPoolFlags(ctx context.Context, st *checkState) (Result, error) {
	lead, err := v.leads.Get(ctx, st.req.LeadID)
	if err != nil {
		if errors.Is(err, pool.ErrNotFound) {
			return Fail(ReasonNotAssignedToTenant, "lead does not exist"), nil
		}
		return Result{}, err
	}
	st.lead = lead
	if lead.Bounced {
		return Fail(ReasonGloballyBounced, "lead email has hard-bounced platform-wide"), nil
	}
	if lead.Unsubscribed {
		return Fail(ReasonGloballyUnsubscribed, "lead has unsubscribed platform-wide"), nil
	}
	return Pass(), nil
}

// guardEmailVerification applies to the email channel only: guessed and
// unavailable addresses never get an email send.
func (v *Validator) guardEmailVerification(_ context.Context, st *checkState) (Result, error) {
	if st.req.Channel != domain.ChannelEmail {
		return Pass(), nil
	}
	if st.lead.EmailVerification != domain.VerificationVerified {
		return Fail(ReasonUnverifiedEmail,
			fmt.Sprintf("email verification state is %q, need verified", st.lead.EmailVerification)), nil
	}
	return Pass(), nil
}

// guardAssignmentState requires an active binding between this lead and
// this tenant, with no reply and no conversion on record.
func (v *Validator) guardAssignmentState(ctx context.Context, st *checkState) (Result, error) {
	a, err := v.ledger.ActiveForLeadTenant(ctx, st.req.LeadID, st.req.TenantID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Fail(ReasonNotAssignedToTenant, "no active assignment for this tenant"), nil
		}
		return Result{}, err
	}
	st.assignment = a
	if a.Status == domain.AssignmentConverted {
		return Fail(ReasonAlreadyConverted, "assignment already converted"), nil
	}
	if a.Replied {
		return Fail(ReasonAlreadyReplied, "lead has replied; route to closer flow"), nil
	}
	return Pass(), nil
}

// guardTouchGap enforces the minimum gap since the last touch on any
// channel.
func (v *Validator) guardTouchGap(_ context.Context, st *checkState) (Result, error) {
	last := st.assignment.LastContactAt
	if last == nil {
		return Pass(), nil
	}
	if since := st.now.Sub(*last); since < v.cfg.MinTouchGap {
		return Fail(ReasonTooSoonSinceLastContact,
			fmt.Sprintf("last contact %s ago, minimum gap %s", since.Round(time.Minute), v.cfg.MinTouchGap)), nil
	}
	return Pass(), nil
}

// guardChannelCooldown enforces the per-channel re-use window.
func (v *Validator) guardChannelCooldown(_ context.Context, st *checkState) (Result, error) {
	lastUse, ok := st.assignment.ChannelLastUsed[st.req.Channel]
	if !ok {
		return Pass(), nil
	}
	cooldown := v.cfg.ChannelCooldown[st.req.Channel]
	if cooldown == 0 {
		return Pass(), nil
	}
	if since := st.now.Sub(lastUse); since < cooldown {
		return Fail(ReasonChannelOnCooldown,
			fmt.Sprintf("channel %s used %s ago, cooldown %s", st.req.Channel, since.Round(time.Minute), cooldown)), nil
	}
	return Pass(), nil
}

// guardTierEligibility consults the canonical tier -> channel table. A
// lead with no score snapshot yet is treated as Dead: nothing sends
// until the scorer has run.
func (v *Validator) guardTierEligibility(ctx context.Context, st *checkState) (Result, error) {
	tier := domain.TierDead
	snap, err := v.scores.Latest(ctx, st.req.LeadID, st.req.TenantID)
	if err != nil {
		return Result{}, err
	}
	if snap != nil {
		tier = snap.Tier
	}
	if !scoring.ChannelAllowed(tier, st.req.Channel) {
		return Fail(ReasonChannelNotEligibleForTier,
			fmt.Sprintf("tier %s does not unlock channel %s", tier, st.req.Channel)), nil
	}
	return Pass(), nil
}

// guardResourceReady refuses sends through resources that are still
// provisioning, paused, or unknown.
func (v *Validator) guardResourceReady(ctx context.Context, st *checkState) (Result, error) {
	kind := domain.ResourceKindForChannel(st.req.Channel)
	ready, err := v.gate.Ready(ctx, kind, st.req.ResourceID)
	if err != nil {
		return Result{}, err
	}
	if !ready {
		return Fail(ReasonResourceNotReady,
			fmt.Sprintf("%s %q is not ready to send", kind, st.req.ResourceID)), nil
	}
	return Pass(), nil
}

// guardResourceRateLimit atomically consumes one daily slot on the
// sending resource. It runs last so doomed sends never burn capacity.
func (v *Validator) guardResourceRateLimit(ctx context.Context, st *checkState) (Result, error) {
	kind := domain.ResourceKindForChannel(st.req.Channel)
	cap, err := v.gate.EffectiveCap(ctx, kind, st.req.ResourceID)
	if err != nil {
		return Result{}, err
	}
	allowed, current, err := v.limiter.Allow(ctx, kind, st.req.ResourceID, cap)
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		return Fail(ReasonResourceRateLimitExceeded,
			fmt.Sprintf("%s %q at daily limit (%d/%d)", kind, st.req.ResourceID, current, cap)), nil
	}
	return Pass(), nil
}
