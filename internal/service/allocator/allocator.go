// Package allocator distributes pool leads to requesting tenants.
//
// The read phase (candidate matching and ranking) is optimistic and may
// be stale; the claim phase is the single point of truth. Losing a claim
// race for one lead never aborts the batch: the loser just moves down
// the ranked list.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// ReasonPoolExhausted is the structured reason returned when the pool
// cannot fully satisfy a request. It is a normal business outcome, not a
// fault.
const ReasonPoolExhausted = "pool_exhausted_for_criteria"

// Config tunes batch allocation. Zero values fall back to the platform
// defaults.
type Config struct {
	// MaxBatchSize caps the count of any single allocation request.
	MaxBatchSize int

	// OverfetchFactor controls how many extra candidates are read beyond
	// the requested count so claim-race losses don't starve the batch.
	OverfetchFactor int
}

const (
	defaultMaxBatchSize    = 500
	defaultOverfetchFactor = 4
)

// CandidateSource is the read side of the pool consumed by the allocator.
type CandidateSource interface {
	FindCandidates(ctx context.Context, c pool.Criteria, limit int) ([]domain.LeadRecord, error)
}

// Assigner is the claim side of the ledger consumed by the allocator.
type Assigner interface {
	Assign(ctx context.Context, leadID, tenantID string, method domain.AssignmentMethod) (*domain.AssignmentRecord, error)
}

// Result is the outcome of one allocation request. Shortfall counts how
// many requested leads could not be filled; Reason explains a non-zero
// shortfall.
type Result struct {
	Assigned  []domain.AssignmentRecord `json:"assigned"`
	Shortfall int                       `json:"shortfall"`
	Reason    string                    `json:"reason,omitempty"`
}

// Service matches tenant criteria against the pool and converts selections
// into ledger assignments.
type Service struct {
	source CandidateSource
	ledger Assigner
	cfg    Config
}

// NewService creates an allocator over the given pool reader and ledger.
func NewService(source CandidateSource, assigner Assigner, cfg Config) *Service {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = defaultOverfetchFactor
	}
	return &Service{source: source, ledger: assigner, cfg: cfg}
}

// Allocate assigns up to count criteria-matched leads to the tenant.
//
// Each claim commits independently, so a cancelled context stops the batch
// early with a partial result and nothing to roll back. A claim lost to a
// concurrent allocation is skipped; any other claim error aborts with the
// leads assigned so far.
func (s *Service) Allocate(ctx context.Context, tenantID string, criteria pool.Criteria, count int) (*Result, error) {
	if count <= 0 {
		return &Result{}, nil
	}
	if count > s.cfg.MaxBatchSize {
		count = s.cfg.MaxBatchSize
	}

	candidates, err := s.source.FindCandidates(ctx, criteria, count*s.cfg.OverfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	rank(candidates, criteria)

	res := &Result{}
	for i := range candidates {
		if len(res.Assigned) >= count {
			break
		}
		if err := ctx.Err(); err != nil {
			// Cancelled mid-batch: completed claims stand, report partial.
			res.Shortfall = count - len(res.Assigned)
			res.Reason = ReasonPoolExhausted
			return res, err
		}

		lead := &candidates[i]
		a, err := s.ledger.Assign(ctx, lead.ID, tenantID, domain.MethodAllocator)
		if errors.Is(err, ledger.ErrAlreadyAssigned) {
			// Lost the race to another tenant's allocation. Expected.
			logger.Debug("allocation race lost", "lead_id", lead.ID, "tenant_id", tenantID)
			continue
		}
		if err != nil {
			res.Shortfall = count - len(res.Assigned)
			return res, fmt.Errorf("assign lead %s: %w", lead.ID, err)
		}
		res.Assigned = append(res.Assigned, *a)
	}

	if len(res.Assigned) < count {
		res.Shortfall = count - len(res.Assigned)
		res.Reason = ReasonPoolExhausted
	}
	logger.Info("allocation complete",
		"tenant_id", tenantID, "requested", count,
		"assigned", len(res.Assigned), "shortfall", res.Shortfall)
	return res, nil
}

// rank orders candidates by criteria fit descending, then enrichment
// confidence descending, then external id ascending. The external-id
// tie-break keeps allocation reproducible.
func rank(leads []domain.LeadRecord, c pool.Criteria) {
	sort.SliceStable(leads, func(i, j int) bool {
		fi, fj := fitScore(&leads[i], c), fitScore(&leads[j], c)
		if fi != fj {
			return fi > fj
		}
		if leads[i].Confidence != leads[j].Confidence {
			return leads[i].Confidence > leads[j].Confidence
		}
		return leads[i].ExternalID < leads[j].ExternalID
	})
}

// fitScore measures weighted similarity between a lead and the criteria.
// Candidates already passed the hard filters; this only breaks quality
// ties among them.
func fitScore(l *domain.LeadRecord, c pool.Criteria) int {
	score := 0
	for _, ind := range c.Industries {
		if strings.EqualFold(ind, l.Industry) {
			score += 3
			break
		}
	}
	for _, country := range c.Countries {
		if strings.EqualFold(country, l.Country) {
			score += 2
			break
		}
	}
	title := strings.ToLower(l.Title)
	for _, kw := range c.TitleKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			score += 2
			break
		}
	}
	overlap := 0
	for _, want := range c.TechTags {
		for _, have := range l.TechTags {
			if strings.EqualFold(want, have) {
				overlap++
				break
			}
		}
	}
	if overlap > 3 {
		overlap = 3
	}
	score += overlap
	if l.EmailVerification == domain.VerificationVerified {
		score++
	}
	return score
}
