package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/repository/postgres"
	"github.com/agencyos/leadpool/internal/scoring"
	"github.com/agencyos/leadpool/internal/service/allocator"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// stubLeadRepo satisfies pool.Repository for request-validation tests.
// Handlers under test reject bad input before any repository call.
type stubLeadRepo struct{ pool.Repository }

func (stubLeadRepo) GetByID(context.Context, string) (*domain.LeadRecord, error) {
	return nil, pool.ErrNotFound
}

type stubAssignmentRepo struct{ ledger.Repository }

func (stubAssignmentRepo) Get(context.Context, string) (*domain.AssignmentRecord, error) {
	return nil, ledger.ErrNotFound
}

type stubScores struct{}

func (stubScores) Save(context.Context, *domain.ScoreSnapshot) error { return nil }
func (stubScores) Latest(context.Context, string, string) (*domain.ScoreSnapshot, error) {
	return nil, nil
}

type stubReports struct{}

func (stubReports) Utilization(context.Context) (*postgres.PoolUtilization, error) {
	return &postgres.PoolUtilization{TotalLeads: 3, FreeLeads: 2, AssignedLeads: 1}, nil
}
func (stubReports) TierDistribution(context.Context, string) (map[domain.Tier]int, error) {
	return map[domain.Tier]int{domain.TierHot: 1}, nil
}
func (stubReports) TenantSummaries(context.Context) ([]postgres.TenantSummary, error) {
	return nil, nil
}
func (stubReports) ChannelActivity(context.Context, string) (map[domain.Channel]int, error) {
	return nil, nil
}

func testRouter() http.Handler {
	poolSvc := pool.NewService(stubLeadRepo{})
	ledgerSvc := ledger.NewService(stubAssignmentRepo{})
	allocSvc := allocator.NewService(poolSvc, ledgerSvc, allocator.Config{})
	h := NewHandlers(poolSvc, ledgerSvc, allocSvc, nil, stubScores{}, nil, nil, stubReports{}, scoring.DefaultWeights())
	return SetupRoutes(h)
}

func do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestUpsertLeadRejectsMissingIdentity(t *testing.T) {
	rec := do(t, http.MethodPost, "/api/v1/leads", `{"email":"a@b.example"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing external id: status = %d, want 400", rec.Code)
	}
	rec = do(t, http.MethodPost, "/api/v1/leads", `{"external_id":"x-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing email: status = %d, want 400", rec.Code)
	}
	rec = do(t, http.MethodPost, "/api/v1/leads", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestAllocateValidation(t *testing.T) {
	rec := do(t, http.MethodPost, "/api/v1/allocations", `{"count":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tenant: status = %d, want 400", rec.Code)
	}
	rec = do(t, http.MethodPost, "/api/v1/allocations", `{"tenant_id":"t-1","count":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero count: status = %d, want 400", rec.Code)
	}
}

func TestCheckSendValidation(t *testing.T) {
	rec := do(t, http.MethodPost, "/api/v1/checks/send", `{"lead_id":"l","tenant_id":"t","resource_id":"r","channel":"pigeon"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad channel: status = %d, want 400", rec.Code)
	}
	rec = do(t, http.MethodPost, "/api/v1/checks/send", `{"channel":"email"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ids: status = %d, want 400", rec.Code)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	rec := do(t, http.MethodGet, "/api/v1/leads/unknown-id", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetAssignmentNotFound(t *testing.T) {
	rec := do(t, http.MethodGet, "/api/v1/assignments/unknown-id", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetScoreRequiresTenant(t *testing.T) {
	rec := do(t, http.MethodGet, "/api/v1/leads/l-1/score", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = do(t, http.MethodGet, "/api/v1/leads/l-1/score?tenant_id=t-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unscored pair: status = %d, want 404", rec.Code)
	}
}

func TestUtilizationReport(t *testing.T) {
	rec := do(t, http.MethodGet, "/api/v1/reports/utilization", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var u postgres.PoolUtilization
	if err := json.NewDecoder(rec.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.TotalLeads != 3 {
		t.Errorf("total = %d, want 3", u.TotalLeads)
	}
}

func TestTierDistributionRequiresTenant(t *testing.T) {
	rec := do(t, http.MethodGet, "/api/v1/reports/tiers", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
