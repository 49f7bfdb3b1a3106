// Package postgres implements the lead pool's repository contracts
// against PostgreSQL using database/sql and lib/pq.
//
// All SQL for the pool lives here. Services and handlers never touch the
// database directly, so the exclusivity and monotonic-flag invariants
// have a single enforcement point, backstopped by database constraints.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/service/pool"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// LeadRepo implements pool.Repository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, external_id, email, phone, linkedin_url,
	first_name, last_name, title, seniority, location, employment,
	company_name, company_domain, industry, employee_bucket, revenue_bucket,
	country, region, tech_tags, hiring_signal, funding_signal,
	source, confidence, last_enriched_at,
	bounced, unsubscribed, email_verification, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*domain.LeadRecord, error) {
	var l domain.LeadRecord
	var employment []byte
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Email, &l.Phone, &l.LinkedInURL,
		&l.FirstName, &l.LastName, &l.Title, &l.Seniority, &l.Location, &employment,
		&l.CompanyName, &l.CompanyDomain, &l.Industry, &l.EmployeeBucket, &l.RevenueBucket,
		&l.Country, &l.Region, pq.Array(&l.TechTags), &l.HiringSignal, &l.FundingSignal,
		&l.Source, &l.Confidence, &l.LastEnrichedAt,
		&l.Bounced, &l.Unsubscribed, &l.EmailVerification, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, pool.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	if len(employment) > 0 {
		if err := json.Unmarshal(employment, &l.Employment); err != nil {
			return nil, fmt.Errorf("decode employment: %w", err)
		}
	}
	return &l, nil
}

func (r *LeadRepo) GetByID(ctx context.Context, id string) (*domain.LeadRecord, error) {
	return scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

func (r *LeadRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.LeadRecord, error) {
	return scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE external_id = $1`, externalID))
}

func (r *LeadRepo) FindByEmail(ctx context.Context, email string) (*domain.LeadRecord, error) {
	return scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1 ORDER BY created_at ASC LIMIT 1`,
		domain.NormalizeEmail(email)))
}

func (r *LeadRepo) Insert(ctx context.Context, l *domain.LeadRecord) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	employment, err := json.Marshal(l.Employment)
	if err != nil {
		return "", fmt.Errorf("encode employment: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, external_id, email, phone, linkedin_url,
			first_name, last_name, title, seniority, location, employment,
			company_name, company_domain, industry, employee_bucket, revenue_bucket,
			country, region, tech_tags, hiring_signal, funding_signal,
			source, confidence, last_enriched_at,
			bounced, unsubscribed, email_verification, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW(), NOW()
		)`,
		l.ID, l.ExternalID, l.Email, l.Phone, l.LinkedInURL,
		l.FirstName, l.LastName, l.Title, l.Seniority, l.Location, employment,
		l.CompanyName, l.CompanyDomain, l.Industry, l.EmployeeBucket, l.RevenueBucket,
		l.Country, l.Region, pq.Array(l.TechTags), l.HiringSignal, l.FundingSignal,
		l.Source, l.Confidence, l.LastEnrichedAt,
		l.Bounced, l.Unsubscribed, l.EmailVerification,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// uq_leads_email: another writer inserted this email first.
			return "", pool.ErrDuplicateEmail
		}
		return "", fmt.Errorf("insert lead: %w", err)
	}
	return l.ID, nil
}

func (r *LeadRepo) Update(ctx context.Context, l *domain.LeadRecord) error {
	employment, err := json.Marshal(l.Employment)
	if err != nil {
		return fmt.Errorf("encode employment: %w", err)
	}
	// Flags OR with the stored value so they can never be lowered here.
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			phone = $2, linkedin_url = $3, first_name = $4, last_name = $5,
			title = $6, seniority = $7, location = $8, employment = $9,
			company_name = $10, company_domain = $11, industry = $12,
			employee_bucket = $13, revenue_bucket = $14, country = $15, region = $16,
			tech_tags = $17, hiring_signal = $18, funding_signal = $19,
			source = $20, confidence = $21, last_enriched_at = $22,
			bounced = bounced OR $23, unsubscribed = unsubscribed OR $24,
			email_verification = $25, updated_at = NOW()
		WHERE id = $1`,
		l.ID, l.Phone, l.LinkedInURL, l.FirstName, l.LastName,
		l.Title, l.Seniority, l.Location, employment,
		l.CompanyName, l.CompanyDomain, l.Industry,
		l.EmployeeBucket, l.RevenueBucket, l.Country, l.Region,
		pq.Array(l.TechTags), l.HiringSignal, l.FundingSignal,
		l.Source, l.Confidence, l.LastEnrichedAt,
		l.Bounced, l.Unsubscribed, l.EmailVerification,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pool.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) SetBounced(ctx context.Context, id string) error {
	return r.setFlag(ctx, id, "bounced")
}

func (r *LeadRepo) SetUnsubscribed(ctx context.Context, id string) error {
	return r.setFlag(ctx, id, "unsubscribed")
}

func (r *LeadRepo) setFlag(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input.
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET `+column+` = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pool.ErrNotFound
	}
	return nil
}

// Anonymize blanks PII in place. The row, its flags, and its assignment
// history survive so the lead can never re-enter circulation.
func (r *LeadRepo) Anonymize(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			email = 'redacted+' || id || '@invalid.local',
			phone = '', linkedin_url = '',
			first_name = '', last_name = '', location = '',
			employment = '[]'::jsonb,
			unsubscribed = true,
			updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("anonymize lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pool.ErrNotFound
	}
	return nil
}

// FindCandidates matches the pool against tenant criteria. Bounced and
// unsubscribed leads are excluded unless includeFlagged is set for
// diagnostics; assigned leads are excluded via an anti-join on
// non-released assignments.
func (r *LeadRepo) FindCandidates(ctx context.Context, c pool.Criteria, limit int, excludeAssigned, includeFlagged bool) ([]domain.LeadRecord, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !includeFlagged {
		where = append(where, "NOT l.bounced", "NOT l.unsubscribed")
	}
	if excludeAssigned {
		where = append(where, `NOT EXISTS (
			SELECT 1 FROM assignments a
			WHERE a.lead_id = l.id AND a.status <> 'released')`)
	}
	if len(c.Industries) > 0 {
		where = append(where, "l.industry = ANY("+arg(pq.Array(c.Industries))+")")
	}
	if buckets := c.EmployeeBucketsInRange(); len(buckets) > 0 {
		where = append(where, "l.employee_bucket = ANY("+arg(pq.Array(buckets))+")")
	}
	if len(c.Countries) > 0 {
		where = append(where, "l.country = ANY("+arg(pq.Array(c.Countries))+")")
	}
	if len(c.TitleKeywords) > 0 {
		var titleOr []string
		for _, kw := range c.TitleKeywords {
			titleOr = append(titleOr, "l.title ILIKE "+arg("%"+kw+"%"))
		}
		where = append(where, "("+strings.Join(titleOr, " OR ")+")")
	}
	if len(c.TechTags) > 0 {
		where = append(where, "l.tech_tags && "+arg(pq.Array(c.TechTags)))
	}
	switch c.MinVerification {
	case domain.VerificationVerified:
		where = append(where, "l.email_verification = 'verified'")
	case domain.VerificationGuessed:
		where = append(where, "l.email_verification IN ('verified', 'guessed')")
	}

	query := `SELECT ` + strings.ReplaceAll(leadColumns, "\n", " ") + ` FROM leads l`
	// Column references need the alias inside the dynamic WHERE only;
	// the select list is unambiguous with a single table.
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.confidence DESC, l.last_enriched_at DESC, l.external_id ASC"
	query += " LIMIT " + arg(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadRecord
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
