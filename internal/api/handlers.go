package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/httputil"
	"github.com/agencyos/leadpool/internal/ratelimit"
	"github.com/agencyos/leadpool/internal/repository/postgres"
	"github.com/agencyos/leadpool/internal/scoring"
	"github.com/agencyos/leadpool/internal/service/allocator"
	"github.com/agencyos/leadpool/internal/service/jit"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// ScoreStore persists and serves score snapshots.
type ScoreStore interface {
	Save(ctx context.Context, s *domain.ScoreSnapshot) error
	Latest(ctx context.Context, leadID, tenantID string) (*domain.ScoreSnapshot, error)
}

// Reporter serves the read-only aggregate views.
type Reporter interface {
	Utilization(ctx context.Context) (*postgres.PoolUtilization, error)
	TierDistribution(ctx context.Context, tenantID string) (map[domain.Tier]int, error)
	TenantSummaries(ctx context.Context) ([]postgres.TenantSummary, error)
	ChannelActivity(ctx context.Context, tenantID string) (map[domain.Channel]int, error)
}

// Handlers holds all HTTP handlers and their service dependencies.
type Handlers struct {
	pool      *pool.Service
	ledger    *ledger.Service
	allocator *allocator.Service
	validator *jit.Validator
	scores    ScoreStore
	registry  *ratelimit.Registry
	limiter   *ratelimit.Limiter
	reports   Reporter
	weights   scoring.Weights
}

// NewHandlers wires the handler set from the service layer.
func NewHandlers(
	poolSvc *pool.Service,
	ledgerSvc *ledger.Service,
	allocSvc *allocator.Service,
	validator *jit.Validator,
	scores ScoreStore,
	registry *ratelimit.Registry,
	limiter *ratelimit.Limiter,
	reports Reporter,
	weights scoring.Weights,
) *Handlers {
	return &Handlers{
		pool:      poolSvc,
		ledger:    ledgerSvc,
		allocator: allocSvc,
		validator: validator,
		scores:    scores,
		registry:  registry,
		limiter:   limiter,
		reports:   reports,
		weights:   weights,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// =============================================================================
// Lead pool
// =============================================================================

// UpsertLead ingests one enrichment record into the shared pool.
func (h *Handlers) UpsertLead(w http.ResponseWriter, r *http.Request) {
	var candidate domain.LeadRecord
	if !httputil.Decode(w, r, &candidate) {
		return
	}
	lead, err := h.pool.Upsert(r.Context(), &candidate)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrMissingID), errors.Is(err, pool.ErrMissingEmail):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, lead)
}

// GetLead returns one lead by internal ID.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.pool.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		if errors.Is(err, pool.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// MarkBounced raises the platform-wide bounced flag.
func (h *Handlers) MarkBounced(w http.ResponseWriter, r *http.Request) {
	h.setLeadFlag(w, r, h.pool.MarkBounced)
}

// MarkUnsubscribed raises the platform-wide unsubscribed flag.
func (h *Handlers) MarkUnsubscribed(w http.ResponseWriter, r *http.Request) {
	h.setLeadFlag(w, r, h.pool.MarkUnsubscribed)
}

func (h *Handlers) setLeadFlag(w http.ResponseWriter, r *http.Request, set func(context.Context, string) error) {
	id := chi.URLParam(r, "leadID")
	if err := set(r.Context(), id); err != nil {
		if errors.Is(err, pool.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"lead_id": id, "status": "flagged"})
}

// AnonymizeLead blanks a lead's PII for legal-deletion requests.
func (h *Handlers) AnonymizeLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")
	if err := h.pool.Anonymize(r.Context(), id); err != nil {
		if errors.Is(err, pool.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"lead_id": id, "status": "anonymized"})
}

// GetScore returns the latest score snapshot for a (lead, tenant) pair.
func (h *Handlers) GetScore(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		httputil.BadRequest(w, "tenant_id is required")
		return
	}
	snap, err := h.scores.Latest(r.Context(), chi.URLParam(r, "leadID"), tenantID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if snap == nil {
		httputil.NotFound(w, "lead has not been scored for this tenant")
		return
	}
	httputil.OK(w, snap)
}

// Rescore recomputes and persists a fresh snapshot for a (lead, tenant) pair.
func (h *Handlers) Rescore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		httputil.BadRequest(w, "tenant_id is required")
		return
	}
	lead, err := h.pool.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		if errors.Is(err, pool.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	snap := scoring.Score(lead, req.TenantID, h.weights, time.Now().UTC())
	if err := h.scores.Save(r.Context(), &snap); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, snap)
}

// =============================================================================
// Allocation and the assignment ledger
// =============================================================================

// Allocate runs one batch allocation for a tenant.
func (h *Handlers) Allocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string        `json:"tenant_id"`
		Count    int           `json:"count"`
		Criteria pool.Criteria `json:"criteria"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		httputil.BadRequest(w, "tenant_id is required")
		return
	}
	if req.Count <= 0 {
		httputil.BadRequest(w, "count must be positive")
		return
	}
	res, err := h.allocator.Allocate(r.Context(), req.TenantID, req.Criteria, req.Count)
	if err != nil && res == nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ListAssignments returns a tenant's assignments with paging.
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		httputil.BadRequest(w, "tenant_id is required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, total, err := h.ledger.ListByTenant(r.Context(), tenantID,
		domain.AssignmentStatus(q.Get("status")), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, httputil.PageResponse{Items: items, Total: total})
}

// GetAssignment returns one assignment with its channel history.
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.ledger.Get(r.Context(), chi.URLParam(r, "assignmentID"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			httputil.NotFound(w, "assignment not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, a)
}

// RecordTouch reports a completed send on an assignment.
func (h *Handlers) RecordTouch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel domain.Channel `json:"channel"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !req.Channel.Valid() {
		httputil.BadRequest(w, "unknown channel")
		return
	}
	err := h.ledger.RecordTouch(r.Context(), chi.URLParam(r, "assignmentID"), req.Channel, time.Now().UTC())
	h.writeLedgerResult(w, err)
}

// RecordReply marks an assignment as replied with a classified intent.
func (h *Handlers) RecordReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Intent domain.ReplyIntent `json:"intent"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Intent == "" {
		req.Intent = domain.IntentUnknown
	}
	err := h.ledger.RecordReply(r.Context(), chi.URLParam(r, "assignmentID"), req.Intent, time.Now().UTC())
	h.writeLedgerResult(w, err)
}

// RecordConversion transitions an assignment to its terminal state.
func (h *Handlers) RecordConversion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := h.ledger.RecordConversion(r.Context(), chi.URLParam(r, "assignmentID"), req.Outcome, time.Now().UTC())
	h.writeLedgerResult(w, err)
}

// ReleaseAssignment returns a lead to the pool.
func (h *Handlers) ReleaseAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := h.ledger.Release(r.Context(), chi.URLParam(r, "assignmentID"), req.Reason)
	h.writeLedgerResult(w, err)
}

func (h *Handlers) writeLedgerResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		httputil.OK(w, map[string]string{"status": "ok"})
	case errors.Is(err, ledger.ErrNotFound):
		httputil.NotFound(w, "assignment not found")
	case errors.Is(err, ledger.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// =============================================================================
// Pre-send validation
// =============================================================================

// CheckSend runs the just-in-time guard pipeline for one intended send.
// A failed check is a 200 with ok=false; only infrastructure faults are 5xx.
func (h *Handlers) CheckSend(w http.ResponseWriter, r *http.Request) {
	var req jit.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.TenantID == "" || req.ResourceID == "" {
		httputil.BadRequest(w, "lead_id, tenant_id, and resource_id are required")
		return
	}
	if !req.Channel.Valid() {
		httputil.BadRequest(w, "unknown channel")
		return
	}
	res, err := h.validator.Check(r.Context(), req)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// =============================================================================
// Sending resources
// =============================================================================

// RegisterResource creates or updates a sending resource's readiness record.
func (h *Handlers) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var res ratelimit.Resource
	if !httputil.Decode(w, r, &res) {
		return
	}
	if res.ID == "" || res.Kind == "" {
		httputil.BadRequest(w, "kind and id are required")
		return
	}
	if res.StartedAt.IsZero() && res.Status == ratelimit.StatusWarming {
		res.StartedAt = time.Now().UTC()
	}
	if err := h.registry.Register(r.Context(), res); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, res)
}

// GetResource returns a resource's readiness record and effective cap.
func (h *Handlers) GetResource(w http.ResponseWriter, r *http.Request) {
	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "resourceID")
	res, err := h.registry.Get(r.Context(), kind, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if res == nil {
		httputil.NotFound(w, "resource not registered")
		return
	}
	cap, err := h.registry.EffectiveCap(r.Context(), kind, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"resource": res, "effective_cap": cap})
}

// GetResourceUsage returns today's consumed slots without spending one.
func (h *Handlers) GetResourceUsage(w http.ResponseWriter, r *http.Request) {
	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "resourceID")
	used, err := h.limiter.Usage(r.Context(), kind, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"kind": kind, "id": id, "used_today": used})
}

// =============================================================================
// Reporting
// =============================================================================

// PoolUtilization returns pool-wide lead counts.
func (h *Handlers) PoolUtilization(w http.ResponseWriter, r *http.Request) {
	u, err := h.reports.Utilization(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, u)
}

// TierDistribution returns scored-lead counts per tier for a tenant.
func (h *Handlers) TierDistribution(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		httputil.BadRequest(w, "tenant_id is required")
		return
	}
	dist, err := h.reports.TierDistribution(r.Context(), tenantID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, dist)
}

// TenantSummaries returns per-tenant assignment counts.
func (h *Handlers) TenantSummaries(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.TenantSummaries(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, out)
}

// ChannelActivity returns touch volume per channel.
func (h *Handlers) ChannelActivity(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.ChannelActivity(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, out)
}
