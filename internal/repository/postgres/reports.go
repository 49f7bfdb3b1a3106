package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agencyos/leadpool/internal/domain"
)

// ReportRepo serves read-only aggregate views over the pool and the
// assignment ledger. Nothing here mutates state.
type ReportRepo struct{ db *sql.DB }

// NewReportRepo creates a Postgres-backed report repository.
func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// PoolUtilization summarizes the pool's overall state.
type PoolUtilization struct {
	TotalLeads    int `json:"total_leads"`
	AssignedLeads int `json:"assigned_leads"`
	FlaggedLeads  int `json:"flagged_leads"` // bounced or unsubscribed
	FreeLeads     int `json:"free_leads"`    // unflagged and unassigned
}

// Utilization returns pool-wide counts in a single query.
func (r *ReportRepo) Utilization(ctx context.Context) (*PoolUtilization, error) {
	var u PoolUtilization
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM assignments a
				WHERE a.lead_id = l.id AND a.status <> 'released')),
			COUNT(*) FILTER (WHERE l.bounced OR l.unsubscribed),
			COUNT(*) FILTER (WHERE NOT l.bounced AND NOT l.unsubscribed AND NOT EXISTS (
				SELECT 1 FROM assignments a
				WHERE a.lead_id = l.id AND a.status <> 'released'))
		FROM leads l`).Scan(
		&u.TotalLeads, &u.AssignedLeads, &u.FlaggedLeads, &u.FreeLeads)
	if err != nil {
		return nil, fmt.Errorf("pool utilization: %w", err)
	}
	return &u, nil
}

// TierDistribution returns the count of scored leads per tier for a tenant.
func (r *ReportRepo) TierDistribution(ctx context.Context, tenantID string) (map[domain.Tier]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tier, COUNT(*)
		FROM score_snapshots
		WHERE tenant_id = $1
		GROUP BY tier`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tier distribution: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Tier]int)
	for rows.Next() {
		var tier domain.Tier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier row: %w", err)
		}
		out[tier] = n
	}
	return out, rows.Err()
}

// ActiveTenantIDs returns the tenants that currently hold at least one
// active assignment. Drives the rescore sweep.
func (r *ReportRepo) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM assignments WHERE status = 'active' ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("active tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveAssignmentCounts returns each tenant's active assignment count.
// Drives the standing-count top-up sweep.
func (r *ReportRepo) ActiveAssignmentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, COUNT(*) FROM assignments WHERE status = 'active' GROUP BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("active assignment counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan assignment count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// TenantSummary is one tenant's slice of the ledger.
type TenantSummary struct {
	TenantID     string  `json:"tenant_id"`
	Active       int     `json:"active"`
	Released     int     `json:"released"`
	Converted    int     `json:"converted"`
	Replied      int     `json:"replied"`
	AvgTouches   float64 `json:"avg_touches"`
	TotalTouches int     `json:"total_touches"`
}

// TenantSummaries returns per-tenant assignment counts and touch volume,
// busiest tenants first.
func (r *ReportRepo) TenantSummaries(ctx context.Context) ([]TenantSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id,
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'released'),
			COUNT(*) FILTER (WHERE status = 'converted'),
			COUNT(*) FILTER (WHERE replied),
			COALESCE(AVG(touch_count), 0),
			COALESCE(SUM(touch_count), 0)
		FROM assignments
		GROUP BY tenant_id
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("tenant summaries: %w", err)
	}
	defer rows.Close()

	var out []TenantSummary
	for rows.Next() {
		var s TenantSummary
		if err := rows.Scan(&s.TenantID, &s.Active, &s.Released, &s.Converted,
			&s.Replied, &s.AvgTouches, &s.TotalTouches); err != nil {
			return nil, fmt.Errorf("scan tenant summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ChannelActivity reports cumulative touch volume per channel, for one
// tenant or platform-wide when tenantID is empty.
func (r *ReportRepo) ChannelActivity(ctx context.Context, tenantID string) (map[domain.Channel]int, error) {
	var rows *sql.Rows
	var err error
	if tenantID == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT u.channel, COALESCE(SUM(u.use_count), 0)
			FROM assignment_channel_use u
			GROUP BY u.channel`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT u.channel, COALESCE(SUM(u.use_count), 0)
			FROM assignment_channel_use u
			JOIN assignments a ON a.id = u.assignment_id
			WHERE a.tenant_id = $1
			GROUP BY u.channel`, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("channel activity: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Channel]int)
	for rows.Next() {
		var ch domain.Channel
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		out[ch] = n
	}
	return out, rows.Err()
}
