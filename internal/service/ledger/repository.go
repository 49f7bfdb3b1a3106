package ledger

import (
	"context"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
)

// Repository defines the data access contract for assignments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single assignment. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.AssignmentRecord, error)

	// ActiveForLead returns the lead's current non-released assignment,
	// or ErrNotFound if the lead is unassigned.
	ActiveForLead(ctx context.Context, leadID string) (*domain.AssignmentRecord, error)

	// ActiveForLeadTenant returns the active assignment binding the lead
	// to the given tenant, or ErrNotFound.
	ActiveForLeadTenant(ctx context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error)

	// Claim atomically creates the assignment if and only if the lead has
	// no other non-released assignment. Exactly one of N concurrent claims
	// for the same lead succeeds; the rest get ErrAlreadyAssigned.
	Claim(ctx context.Context, a *domain.AssignmentRecord) error

	// Release transitions the assignment to released.
	Release(ctx context.Context, id, reason string, at time.Time) error

	// MarkConverted transitions the assignment to converted (terminal).
	MarkConverted(ctx context.Context, id, outcome string, at time.Time) error

	// AddTouch increments the touch count, stamps first/last contact, and
	// records per-channel last use.
	AddTouch(ctx context.Context, id string, ch domain.Channel, at time.Time) error

	// SetReply raises the reply flag with its classified intent.
	SetReply(ctx context.Context, id string, intent domain.ReplyIntent, at time.Time) error

	// ListByTenant returns a tenant's assignments, newest first.
	ListByTenant(ctx context.Context, tenantID string, status domain.AssignmentStatus, limit, offset int) ([]domain.AssignmentRecord, int, error)
}
