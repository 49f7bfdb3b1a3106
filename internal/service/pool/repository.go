package pool

import (
	"context"

	"github.com/agencyos/leadpool/internal/domain"
)

// Repository defines the data access contract for lead records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByID returns a single lead. Returns ErrNotFound if it doesn't exist.
	GetByID(ctx context.Context, id string) (*domain.LeadRecord, error)

	// FindByExternalID looks a lead up by its stable provider identity.
	FindByExternalID(ctx context.Context, externalID string) (*domain.LeadRecord, error)

	// FindByEmail looks a lead up by normalized email.
	FindByEmail(ctx context.Context, email string) (*domain.LeadRecord, error)

	// Insert stores a brand-new lead and returns its ID. Returns
	// ErrDuplicateEmail when another record already holds the email;
	// the caller re-resolves and merges instead.
	Insert(ctx context.Context, l *domain.LeadRecord) (string, error)

	// Update rewrites the mutable enrichment fields of an existing lead.
	// Global flags are only ever raised, never cleared, by implementations.
	Update(ctx context.Context, l *domain.LeadRecord) error

	// SetBounced raises the global bounced flag. Idempotent.
	SetBounced(ctx context.Context, id string) error

	// SetUnsubscribed raises the global unsubscribed flag. Idempotent.
	SetUnsubscribed(ctx context.Context, id string) error

	// Anonymize blanks PII fields in place, preserving the row and flags.
	Anonymize(ctx context.Context, id string) error

	// FindCandidates returns up to limit leads matching the criteria.
	// When excludeAssigned is true (the normal case) leads with a
	// non-released assignment are filtered out. Globally bounced or
	// unsubscribed leads are always excluded unless includeFlagged is set
	// for diagnostics.
	FindCandidates(ctx context.Context, c Criteria, limit int, excludeAssigned, includeFlagged bool) ([]domain.LeadRecord, error)
}

// Criteria is a tenant's targeting filter over the pool.
type Criteria struct {
	Industries      []string                 `json:"industries"`
	EmployeeMin     string                   `json:"employee_min"` // inclusive bucket, e.g. "11-50"
	EmployeeMax     string                   `json:"employee_max"` // inclusive bucket, e.g. "1001-5000"
	Countries       []string                 `json:"countries"`
	TitleKeywords   []string                 `json:"title_keywords"`
	TechTags        []string                 `json:"tech_tags"`
	MinVerification domain.VerificationState `json:"min_verification"`
}

// EmployeeBucketsInRange expands the min/max buckets into the explicit
// bucket set the repository can match against. An empty range means no
// size filter.
func (c Criteria) EmployeeBucketsInRange() []string {
	lo, hi := 0, len(domain.EmployeeBuckets)-1
	if c.EmployeeMin != "" {
		if r := domain.EmployeeBucketRank(c.EmployeeMin); r >= 0 {
			lo = r
		}
	}
	if c.EmployeeMax != "" {
		if r := domain.EmployeeBucketRank(c.EmployeeMax); r >= 0 {
			hi = r
		}
	}
	if c.EmployeeMin == "" && c.EmployeeMax == "" {
		return nil
	}
	if lo > hi {
		return nil
	}
	return domain.EmployeeBuckets[lo : hi+1]
}
