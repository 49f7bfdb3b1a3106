package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/google/uuid"
)

// Service implements assignment lifecycle logic on top of a Repository.
// Race-sensitive exclusivity lives in Repository.Claim; everything else
// here is transition validation.
type Service struct {
	repo Repository
}

// NewService creates a ledger service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single assignment.
func (s *Service) Get(ctx context.Context, id string) (*domain.AssignmentRecord, error) {
	return s.repo.Get(ctx, id)
}

// ActiveForLeadTenant returns the active binding between a lead and a tenant.
func (s *Service) ActiveForLeadTenant(ctx context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error) {
	return s.repo.ActiveForLeadTenant(ctx, leadID, tenantID)
}

// ListByTenant returns a tenant's assignments.
func (s *Service) ListByTenant(ctx context.Context, tenantID string, status domain.AssignmentStatus, limit, offset int) ([]domain.AssignmentRecord, int, error) {
	return s.repo.ListByTenant(ctx, tenantID, status, limit, offset)
}

// Assign exclusively binds a lead to a tenant. Under contention exactly
// one concurrent caller succeeds; losers get ErrAlreadyAssigned and are
// expected to move on to another candidate.
func (s *Service) Assign(ctx context.Context, leadID, tenantID string, method domain.AssignmentMethod) (*domain.AssignmentRecord, error) {
	a := &domain.AssignmentRecord{
		ID:         uuid.New().String(),
		LeadID:     leadID,
		TenantID:   tenantID,
		Method:     method,
		Status:     domain.AssignmentActive,
		AssignedAt: time.Now().UTC(),
	}
	if err := s.repo.Claim(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Release transitions active -> released, returning the lead to the pool.
// Releasing an already-released assignment is an idempotent no-op.
// Releasing a converted assignment is a caller bug.
func (s *Service) Release(ctx context.Context, id, reason string) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch a.Status {
	case domain.AssignmentConverted:
		logger.Error("release refused: assignment is converted",
			"assignment_id", id, "lead_id", a.LeadID, "tenant_id", a.TenantID)
		return fmt.Errorf("%w: cannot release a converted assignment", ErrInvalidTransition)
	case domain.AssignmentReleased:
		return nil
	}
	return s.repo.Release(ctx, id, reason, time.Now().UTC())
}

// RecordTouch reports a completed send on the given channel. Only active
// assignments accept touches; a touch against a released or converted
// assignment indicates the caller skipped the pre-send check.
func (s *Service) RecordTouch(ctx context.Context, id string, ch domain.Channel, at time.Time) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AssignmentActive {
		logger.Error("touch refused: assignment not active",
			"assignment_id", id, "status", string(a.Status), "channel", string(ch))
		return fmt.Errorf("%w: touch on %s assignment", ErrInvalidTransition, a.Status)
	}
	return s.repo.AddTouch(ctx, id, ch, at.UTC())
}

// RecordReply marks the assignment as replied with a classified intent.
// Replies can land after conversion; status is never changed here.
func (s *Service) RecordReply(ctx context.Context, id string, intent domain.ReplyIntent, at time.Time) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetReply(ctx, id, intent, at.UTC())
}

// RecordConversion transitions to converted, the terminal state. The lead
// stays bound to this tenant forever, even if later flagged bounced or
// unsubscribed. Converting twice is an idempotent no-op; converting a
// released assignment is a caller bug.
func (s *Service) RecordConversion(ctx context.Context, id, outcome string, at time.Time) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch a.Status {
	case domain.AssignmentConverted:
		return nil
	case domain.AssignmentReleased:
		logger.Error("conversion refused: assignment is released",
			"assignment_id", id, "lead_id", a.LeadID, "tenant_id", a.TenantID)
		return fmt.Errorf("%w: cannot convert a released assignment", ErrInvalidTransition)
	}
	return s.repo.MarkConverted(ctx, id, outcome, at.UTC())
}
