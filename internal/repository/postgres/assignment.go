package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AssignmentRepo implements ledger.Repository against PostgreSQL.
//
// The exclusivity invariant (at most one non-released assignment per
// lead) is enforced twice: the Claim transaction locks the lead row with
// FOR UPDATE SKIP LOCKED before checking for an existing assignment, and
// the partial unique index uq_assignments_active_lead catches anything
// that slips past the lock.
type AssignmentRepo struct{ db *sql.DB }

// NewAssignmentRepo creates a Postgres-backed assignment repository.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

const assignmentColumns = `id, lead_id, tenant_id, method, status,
	assigned_at, released_at, release_reason, converted_at, outcome,
	first_contact_at, last_contact_at, touch_count,
	replied, replied_at, reply_intent`

func scanAssignment(row interface{ Scan(...any) error }) (*domain.AssignmentRecord, error) {
	var a domain.AssignmentRecord
	err := row.Scan(
		&a.ID, &a.LeadID, &a.TenantID, &a.Method, &a.Status,
		&a.AssignedAt, &a.ReleasedAt, &a.ReleaseReason, &a.ConvertedAt, &a.Outcome,
		&a.FirstContactAt, &a.LastContactAt, &a.TouchCount,
		&a.Replied, &a.RepliedAt, &a.ReplyIntent,
	)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &a, nil
}

// loadChannelUse attaches the per-channel last-use map to an assignment.
func (r *AssignmentRepo) loadChannelUse(ctx context.Context, a *domain.AssignmentRecord) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel, last_used_at FROM assignment_channel_use WHERE assignment_id = $1`, a.ID)
	if err != nil {
		return fmt.Errorf("load channel use: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ch domain.Channel
		var at time.Time
		if err := rows.Scan(&ch, &at); err != nil {
			return fmt.Errorf("scan channel use: %w", err)
		}
		if a.ChannelLastUsed == nil {
			a.ChannelLastUsed = make(map[domain.Channel]time.Time)
		}
		a.ChannelLastUsed[ch] = at
	}
	return rows.Err()
}

func (r *AssignmentRepo) Get(ctx context.Context, id string) (*domain.AssignmentRecord, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChannelUse(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AssignmentRepo) ActiveForLead(ctx context.Context, leadID string) (*domain.AssignmentRecord, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE lead_id = $1 AND status <> 'released'`, leadID))
	if err != nil {
		return nil, err
	}
	if err := r.loadChannelUse(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AssignmentRepo) ActiveForLeadTenant(ctx context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE lead_id = $1 AND tenant_id = $2 AND status <> 'released'`, leadID, tenantID))
	if err != nil {
		return nil, err
	}
	if err := r.loadChannelUse(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Claim creates the assignment if and only if the lead holds no other
// non-released assignment. The lead row is locked with SKIP LOCKED so
// concurrent claimants fail fast instead of queueing; a losing claimant
// gets ErrAlreadyAssigned either from the lock miss, the existence
// check, or the unique-index backstop on commit.
func (r *AssignmentRepo) Claim(ctx context.Context, a *domain.AssignmentRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	var leadID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE id = $1 FOR UPDATE SKIP LOCKED`, a.LeadID).Scan(&leadID)
	if err == sql.ErrNoRows {
		// Either the lead doesn't exist or another claim holds its lock
		// right now. Distinguish with a plain read.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, a.LeadID).Scan(&exists); err != nil {
			return fmt.Errorf("check lead exists: %w", err)
		}
		if !exists {
			return ledger.ErrNotFound
		}
		return ledger.ErrAlreadyAssigned
	}
	if err != nil {
		return fmt.Errorf("lock lead: %w", err)
	}

	var taken bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM assignments WHERE lead_id = $1 AND status <> 'released')`,
		a.LeadID).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check active assignment: %w", err)
	}
	if taken {
		return ledger.ErrAlreadyAssigned
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (id, lead_id, tenant_id, method, status, assigned_at, touch_count, replied)
		VALUES ($1, $2, $3, $4, $5, $6, 0, false)`,
		a.ID, a.LeadID, a.TenantID, a.Method, a.Status, a.AssignedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAlreadyAssigned
		}
		return fmt.Errorf("insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAlreadyAssigned
		}
		return fmt.Errorf("commit claim: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Release and MarkConverted only touch active rows. The service layer
// validates transitions too, but its read and our write are separate
// round trips, so the status predicate is what actually keeps two
// replicas from flipping a terminal row.
func (r *AssignmentRepo) Release(ctx context.Context, id, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = 'released', released_at = $2, release_reason = $3
		WHERE id = $1 AND status = 'active'`, id, at, reason)
	if err != nil {
		return fmt.Errorf("release assignment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.classifyStatusMiss(ctx, id, domain.AssignmentReleased)
	}
	return nil
}

func (r *AssignmentRepo) MarkConverted(ctx context.Context, id, outcome string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = 'converted', converted_at = $2, outcome = $3
		WHERE id = $1 AND status = 'active'`, id, at, outcome)
	if err != nil {
		return fmt.Errorf("mark converted: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.classifyStatusMiss(ctx, id, domain.AssignmentConverted)
	}
	return nil
}

// classifyStatusMiss explains a conditional status UPDATE that matched no
// row: the assignment is missing, already in the wanted state (idempotent
// success), or parked in the other terminal state.
func (r *AssignmentRepo) classifyStatusMiss(ctx context.Context, id string, want domain.AssignmentStatus) error {
	var status domain.AssignmentStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM assignments WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ledger.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read assignment status: %w", err)
	}
	if status == want {
		return nil
	}
	return fmt.Errorf("%w: assignment is %s", ledger.ErrInvalidTransition, status)
}

func (r *AssignmentRepo) AddTouch(ctx context.Context, id string, ch domain.Channel, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin touch: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE assignments
		SET touch_count = touch_count + 1,
		    first_contact_at = COALESCE(first_contact_at, $2),
		    last_contact_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record touch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignment_channel_use (assignment_id, channel, last_used_at, use_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (assignment_id, channel)
		DO UPDATE SET last_used_at = EXCLUDED.last_used_at,
		              use_count = assignment_channel_use.use_count + 1`,
		id, ch, at)
	if err != nil {
		return fmt.Errorf("record channel use: %w", err)
	}

	return tx.Commit()
}

func (r *AssignmentRepo) SetReply(ctx context.Context, id string, intent domain.ReplyIntent, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET replied = true, replied_at = COALESCE(replied_at, $2), reply_intent = $3
		WHERE id = $1`, id, at, intent)
	if err != nil {
		return fmt.Errorf("set reply: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *AssignmentRepo) ListByTenant(ctx context.Context, tenantID string, status domain.AssignmentStatus, limit, offset int) ([]domain.AssignmentRecord, int, error) {
	where := `WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT `+assignmentColumns+` FROM assignments %s
		 ORDER BY assigned_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.AssignmentRecord
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}
