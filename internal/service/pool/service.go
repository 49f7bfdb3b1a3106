package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/google/uuid"
)

// Service implements lead store business logic: identity resolution,
// confidence-aware merging, and monotonic flag handling. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a lead store service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single lead by internal ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.LeadRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Upsert is the sole entry point for enrichment data. It resolves the
// candidate against existing identities (external id first, then email),
// merges field-by-field preferring the higher-confidence source, and
// inserts a fresh record when no identity matches. Returns the canonical
// record after the write.
func (s *Service) Upsert(ctx context.Context, candidate *domain.LeadRecord) (*domain.LeadRecord, error) {
	if candidate.ExternalID == "" {
		return nil, ErrMissingID
	}
	if candidate.Email == "" {
		return nil, ErrMissingEmail
	}
	candidate.Email = domain.NormalizeEmail(candidate.Email)

	lead, err := s.upsertOnce(ctx, candidate)
	if errors.Is(err, ErrDuplicateEmail) {
		// A concurrent Upsert of the same email won the insert between
		// our lookups and our write; the unique index rejected ours.
		// Re-resolve so the candidate merges into the winner.
		lead, err = s.upsertOnce(ctx, candidate)
	}
	return lead, err
}

func (s *Service) upsertOnce(ctx context.Context, candidate *domain.LeadRecord) (*domain.LeadRecord, error) {
	existing, err := s.repo.FindByExternalID(ctx, candidate.ExternalID)
	if errors.Is(err, ErrNotFound) {
		existing, err = s.repo.FindByEmail(ctx, candidate.Email)
		if err == nil && existing.ExternalID != candidate.ExternalID {
			// Two providers handed us the same email under different
			// external ids. The earliest-created record stays canonical;
			// the candidate's data merges into it. Never drop data silently.
			logger.Warn("lead identity reconciliation",
				"canonical_id", existing.ID,
				"canonical_external_id", existing.ExternalID,
				"candidate_external_id", candidate.ExternalID,
				"email", candidate.Email,
			)
		}
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("lookup lead: %w", err)
		}
		// Brand new lead.
		l := *candidate
		l.ID = uuid.New().String()
		if l.EmailVerification == "" {
			l.EmailVerification = domain.VerificationUnavailable
		}
		if l.LastEnrichedAt.IsZero() {
			l.LastEnrichedAt = time.Now().UTC()
		}
		id, err := s.repo.Insert(ctx, &l)
		if err != nil {
			return nil, fmt.Errorf("insert lead: %w", err)
		}
		l.ID = id
		return &l, nil
	}

	merged := mergeLead(existing, candidate)
	if err := s.repo.Update(ctx, merged); err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return merged, nil
}

// MarkBounced raises the global bounced flag. Idempotent, monotonic,
// platform-wide effect: every tenant's outreach to this lead stops.
func (s *Service) MarkBounced(ctx context.Context, id string) error {
	return s.repo.SetBounced(ctx, id)
}

// MarkUnsubscribed raises the global unsubscribed flag. Idempotent.
func (s *Service) MarkUnsubscribed(ctx context.Context, id string) error {
	return s.repo.SetUnsubscribed(ctx, id)
}

// Anonymize blanks PII in place for legal-deletion requests. The audit
// row and its flags survive so the lead can never be re-contacted.
func (s *Service) Anonymize(ctx context.Context, id string) error {
	return s.repo.Anonymize(ctx, id)
}

// FindCandidates returns unassigned, contactable leads matching the
// criteria. Bounced and unsubscribed leads are excluded implicitly.
func (s *Service) FindCandidates(ctx context.Context, c Criteria, limit int) ([]domain.LeadRecord, error) {
	return s.repo.FindCandidates(ctx, c, limit, true, false)
}

// mergeLead folds candidate enrichment into the existing canonical record.
// Policy: prefer the higher-confidence source per field; on ties keep the
// most complete non-null value (i.e. never blank out data). Verified email
// state never downgrades, and the global flags only ever go true.
func mergeLead(existing, candidate *domain.LeadRecord) *domain.LeadRecord {
	m := *existing
	candidateWins := candidate.Confidence > existing.Confidence

	pick := func(cur, cand string) string {
		if cand == "" {
			return cur
		}
		if cur == "" || candidateWins {
			return cand
		}
		return cur
	}

	m.Phone = pick(m.Phone, candidate.Phone)
	m.LinkedInURL = pick(m.LinkedInURL, candidate.LinkedInURL)
	m.FirstName = pick(m.FirstName, candidate.FirstName)
	m.LastName = pick(m.LastName, candidate.LastName)
	m.Title = pick(m.Title, candidate.Title)
	m.Seniority = pick(m.Seniority, candidate.Seniority)
	m.Location = pick(m.Location, candidate.Location)
	m.CompanyName = pick(m.CompanyName, candidate.CompanyName)
	m.CompanyDomain = pick(m.CompanyDomain, candidate.CompanyDomain)
	m.Industry = pick(m.Industry, candidate.Industry)
	m.EmployeeBucket = pick(m.EmployeeBucket, candidate.EmployeeBucket)
	m.RevenueBucket = pick(m.RevenueBucket, candidate.RevenueBucket)
	m.Country = pick(m.Country, candidate.Country)
	m.Region = pick(m.Region, candidate.Region)

	if len(candidate.Employment) > 0 && (len(m.Employment) == 0 || candidateWins) {
		m.Employment = candidate.Employment
	}
	if len(candidate.TechTags) > 0 && (len(m.TechTags) == 0 || candidateWins) {
		m.TechTags = candidate.TechTags
	}
	m.HiringSignal = m.HiringSignal || candidate.HiringSignal
	m.FundingSignal = m.FundingSignal || candidate.FundingSignal

	// Verification only upgrades. A later "guessed" never demotes "verified".
	if candidate.EmailVerification.Rank() > m.EmailVerification.Rank() {
		m.EmailVerification = candidate.EmailVerification
	}

	// Monotonic global flags.
	m.Bounced = m.Bounced || candidate.Bounced
	m.Unsubscribed = m.Unsubscribed || candidate.Unsubscribed

	if candidateWins {
		m.Source = candidate.Source
		m.Confidence = candidate.Confidence
	}
	m.LastEnrichedAt = time.Now().UTC()
	return &m
}
