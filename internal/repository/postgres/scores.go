package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
)

// ScoreRepo stores the latest score snapshot per (lead, tenant) pair.
// Snapshots are immutable between recomputations; a rescore replaces the
// stored row wholesale.
type ScoreRepo struct{ db *sql.DB }

// NewScoreRepo creates a Postgres-backed score repository.
func NewScoreRepo(db *sql.DB) *ScoreRepo { return &ScoreRepo{db: db} }

// Save upserts the snapshot as the current score for its (lead, tenant).
func (r *ScoreRepo) Save(ctx context.Context, s *domain.ScoreSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO score_snapshots (
			lead_id, tenant_id, completeness, authority, company_fit,
			timing, risk, total, tier, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (lead_id, tenant_id) DO UPDATE SET
			completeness = EXCLUDED.completeness,
			authority = EXCLUDED.authority,
			company_fit = EXCLUDED.company_fit,
			timing = EXCLUDED.timing,
			risk = EXCLUDED.risk,
			total = EXCLUDED.total,
			tier = EXCLUDED.tier,
			computed_at = EXCLUDED.computed_at`,
		s.LeadID, s.TenantID, s.Completeness, s.Authority, s.CompanyFit,
		s.Timing, s.Risk, s.Total, s.Tier, s.ComputedAt)
	if err != nil {
		return fmt.Errorf("save score snapshot: %w", err)
	}
	return nil
}

// Latest returns the current snapshot for the pair, or nil if the lead
// has never been scored for this tenant.
func (r *ScoreRepo) Latest(ctx context.Context, leadID, tenantID string) (*domain.ScoreSnapshot, error) {
	var s domain.ScoreSnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT lead_id, tenant_id, completeness, authority, company_fit,
		       timing, risk, total, tier, computed_at
		FROM score_snapshots
		WHERE lead_id = $1 AND tenant_id = $2`, leadID, tenantID).Scan(
		&s.LeadID, &s.TenantID, &s.Completeness, &s.Authority, &s.CompanyFit,
		&s.Timing, &s.Risk, &s.Total, &s.Tier, &s.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest score snapshot: %w", err)
	}
	return &s, nil
}

// StaleLeadIDs returns leads whose snapshot for the tenant is older than
// the cutoff, or that have never been scored at all. Used by the rescore
// sweep.
func (r *ScoreRepo) StaleLeadIDs(ctx context.Context, tenantID string, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.lead_id
		FROM assignments a
		LEFT JOIN score_snapshots s
		  ON s.lead_id = a.lead_id AND s.tenant_id = a.tenant_id
		WHERE a.tenant_id = $1
		  AND a.status = 'active'
		  AND (s.computed_at IS NULL OR s.computed_at < $2)
		ORDER BY s.computed_at ASC NULLS FIRST
		LIMIT $3`, tenantID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("stale lead ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
