package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
)

// memRepo is an in-memory Repository whose Claim has the same exclusivity
// semantics as the Postgres implementation.
type memRepo struct {
	mu          sync.Mutex
	assignments map[string]*domain.AssignmentRecord
	knownLeads  map[string]bool
}

func newMemRepo(leadIDs ...string) *memRepo {
	known := make(map[string]bool, len(leadIDs))
	for _, id := range leadIDs {
		known[id] = true
	}
	return &memRepo{
		assignments: make(map[string]*domain.AssignmentRecord),
		knownLeads:  known,
	}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.AssignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ActiveForLead(_ context.Context, leadID string) (*domain.AssignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.LeadID == leadID && a.Status != domain.AssignmentReleased {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ActiveForLeadTenant(_ context.Context, leadID, tenantID string) (*domain.AssignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.LeadID == leadID && a.TenantID == tenantID && a.Status != domain.AssignmentReleased {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Claim(_ context.Context, a *domain.AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.knownLeads) > 0 && !m.knownLeads[a.LeadID] {
		return ErrNotFound
	}
	for _, existing := range m.assignments {
		if existing.LeadID == a.LeadID && existing.Status != domain.AssignmentReleased {
			return ErrAlreadyAssigned
		}
	}
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *memRepo) Release(_ context.Context, id, reason string, at time.Time) error {
	return m.update(id, func(a *domain.AssignmentRecord) {
		a.Status = domain.AssignmentReleased
		a.ReleasedAt = &at
		a.ReleaseReason = reason
	})
}

func (m *memRepo) MarkConverted(_ context.Context, id, outcome string, at time.Time) error {
	return m.update(id, func(a *domain.AssignmentRecord) {
		a.Status = domain.AssignmentConverted
		a.ConvertedAt = &at
		a.Outcome = outcome
	})
}

func (m *memRepo) AddTouch(_ context.Context, id string, ch domain.Channel, at time.Time) error {
	return m.update(id, func(a *domain.AssignmentRecord) {
		a.TouchCount++
		if a.FirstContactAt == nil {
			a.FirstContactAt = &at
		}
		a.LastContactAt = &at
		if a.ChannelLastUsed == nil {
			a.ChannelLastUsed = make(map[domain.Channel]time.Time)
		}
		a.ChannelLastUsed[ch] = at
	})
}

func (m *memRepo) SetReply(_ context.Context, id string, intent domain.ReplyIntent, at time.Time) error {
	return m.update(id, func(a *domain.AssignmentRecord) {
		a.Replied = true
		if a.RepliedAt == nil {
			a.RepliedAt = &at
		}
		a.ReplyIntent = intent
	})
}

func (m *memRepo) ListByTenant(_ context.Context, tenantID string, status domain.AssignmentStatus, limit, offset int) ([]domain.AssignmentRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AssignmentRecord
	for _, a := range m.assignments {
		if a.TenantID != tenantID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memRepo) update(id string, f func(*domain.AssignmentRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	f(a)
	return nil
}

func TestAssignCreatesActiveAssignment(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	a, err := svc.Assign(context.Background(), "lead-1", "tenant-a", domain.MethodAllocator)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.Status != domain.AssignmentActive {
		t.Errorf("status = %s, want active", a.Status)
	}
	if a.TouchCount != 0 {
		t.Errorf("fresh assignment must start with zero touches, got %d", a.TouchCount)
	}
}

func TestAssignExclusivityUnderContention(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	const claimants = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners, losers := 0, 0
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		tenant := string(rune('a' + i%8))
		go func() {
			defer wg.Done()
			_, err := svc.Assign(ctx, "lead-1", "tenant-"+tenant, domain.MethodAllocator)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrAlreadyAssigned):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("exactly one claim must win, got %d winners", winners)
	}
	if losers != claimants-1 {
		t.Errorf("losers = %d, want %d", losers, claimants-1)
	}
}

func TestReleasedLeadCanBeReassigned(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	first, err := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := svc.RecordTouch(ctx, first.ID, domain.ChannelEmail, time.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := svc.Release(ctx, first.ID, "no response"); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := svc.Assign(ctx, "lead-1", "tenant-b", domain.MethodAllocator)
	if err != nil {
		t.Fatalf("reassign after release: %v", err)
	}
	if second.TouchCount != 0 || second.LastContactAt != nil {
		t.Error("new assignment must not inherit the previous tenant's history")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.Release(ctx, a.ID, "no response"); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := svc.Release(ctx, a.ID, "again"); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
}

func TestConvertedAssignmentCannotBeReleased(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.RecordConversion(ctx, a.ID, "closed-won", time.Now()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := svc.Release(ctx, a.ID, "oops"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("release after conversion: got %v, want ErrInvalidTransition", err)
	}
}

func TestConversionIsTerminalAndIdempotent(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.RecordConversion(ctx, a.ID, "closed-won", time.Now()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := svc.RecordConversion(ctx, a.ID, "closed-won", time.Now()); err != nil {
		t.Errorf("second conversion should be a no-op, got %v", err)
	}

	got, _ := svc.Get(ctx, a.ID)
	if !got.IsTerminal() {
		t.Error("converted assignment should be terminal")
	}
}

func TestConvertReleasedAssignmentFails(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.Release(ctx, a.ID, "gone"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := svc.RecordConversion(ctx, a.ID, "closed-won", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("convert after release: got %v, want ErrInvalidTransition", err)
	}
}

func TestTouchRequiresActiveAssignment(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.RecordTouch(ctx, a.ID, domain.ChannelEmail, time.Now()); err != nil {
		t.Fatalf("touch on active: %v", err)
	}
	if err := svc.Release(ctx, a.ID, "done"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := svc.RecordTouch(ctx, a.ID, domain.ChannelEmail, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("touch on released: got %v, want ErrInvalidTransition", err)
	}
}

func TestTouchTracksPerChannelUse(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if err := svc.RecordTouch(ctx, a.ID, domain.ChannelEmail, t0); err != nil {
		t.Fatalf("email touch: %v", err)
	}
	if err := svc.RecordTouch(ctx, a.ID, domain.ChannelLinkedIn, t0.Add(time.Hour)); err != nil {
		t.Fatalf("linkedin touch: %v", err)
	}

	got, _ := svc.Get(ctx, a.ID)
	if got.TouchCount != 2 {
		t.Errorf("touch count = %d, want 2", got.TouchCount)
	}
	if got.FirstContactAt == nil || !got.FirstContactAt.Equal(t0) {
		t.Error("first contact should stick at the first touch time")
	}
	used := got.ChannelsUsed()
	if len(used) != 2 {
		t.Errorf("channels used = %v, want email and linkedin", used)
	}
}

func TestReplyAfterConversionKeepsStatus(t *testing.T) {
	svc := NewService(newMemRepo("lead-1"))
	ctx := context.Background()

	a, _ := svc.Assign(ctx, "lead-1", "tenant-a", domain.MethodAllocator)
	if err := svc.RecordConversion(ctx, a.ID, "closed-won", time.Now()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := svc.RecordReply(ctx, a.ID, domain.IntentInterested, time.Now()); err != nil {
		t.Fatalf("reply after conversion: %v", err)
	}
	got, _ := svc.Get(ctx, a.ID)
	if got.Status != domain.AssignmentConverted {
		t.Errorf("status = %s, reply must not change it", got.Status)
	}
	if !got.Replied || got.ReplyIntent != domain.IntentInterested {
		t.Error("reply flag and intent should be recorded")
	}
}
