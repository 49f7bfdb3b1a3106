package worker

import (
	"context"
	"testing"
	"time"

	"github.com/agencyos/leadpool/internal/config"
	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/service/allocator"
	"github.com/agencyos/leadpool/internal/service/pool"
)

type fakeCounts struct{ counts map[string]int }

func (f fakeCounts) ActiveAssignmentCounts(context.Context) (map[string]int, error) {
	return f.counts, nil
}

type allocCall struct {
	tenantID string
	criteria pool.Criteria
	count    int
}

type fakeAlloc struct {
	calls []allocCall
	fill  int // how many each call actually assigns
}

func (f *fakeAlloc) Allocate(_ context.Context, tenantID string, c pool.Criteria, count int) (*allocator.Result, error) {
	f.calls = append(f.calls, allocCall{tenantID: tenantID, criteria: c, count: count})
	n := count
	if f.fill < n {
		n = f.fill
	}
	return &allocator.Result{
		Assigned:  make([]domain.AssignmentRecord, n),
		Shortfall: count - n,
	}, nil
}

func TestTopUpFillsDeficitsOnly(t *testing.T) {
	counts := fakeCounts{counts: map[string]int{"tenant-a": 3, "tenant-b": 50}}
	alloc := &fakeAlloc{fill: 100}
	targets := map[string]config.TopUpTarget{
		"tenant-a": {StandingCount: 10, Industries: []string{"saas"}},
		"tenant-b": {StandingCount: 50},
		"tenant-c": {StandingCount: 5, Countries: []string{"US"}},
	}

	tu := NewTopUp(counts, alloc, &grantLock{}, time.Hour, targets)
	tu.sweep(context.Background())

	if len(alloc.calls) != 2 {
		t.Fatalf("allocation calls = %d, want 2 (tenant-b is at target)", len(alloc.calls))
	}
	byTenant := map[string]allocCall{}
	for _, c := range alloc.calls {
		byTenant[c.tenantID] = c
	}
	if c, ok := byTenant["tenant-a"]; !ok || c.count != 7 {
		t.Errorf("tenant-a call = %+v, want deficit 7", c)
	}
	if c := byTenant["tenant-a"]; len(c.criteria.Industries) != 1 || c.criteria.Industries[0] != "saas" {
		t.Errorf("tenant-a criteria = %+v, want industries from target", c.criteria)
	}
	if c, ok := byTenant["tenant-c"]; !ok || c.count != 5 {
		t.Errorf("tenant-c call = %+v, want deficit 5", c)
	}
}

func TestTopUpSkipsWhenLockHeldElsewhere(t *testing.T) {
	alloc := &fakeAlloc{fill: 100}
	targets := map[string]config.TopUpTarget{"tenant-a": {StandingCount: 10}}

	tu := NewTopUp(fakeCounts{counts: map[string]int{}}, alloc, denyLock{}, time.Hour, targets)
	tu.sweep(context.Background())

	if len(alloc.calls) != 0 {
		t.Errorf("a replica without the lock must not allocate, got %d calls", len(alloc.calls))
	}
}

func TestTopUpToleratesShortfall(t *testing.T) {
	alloc := &fakeAlloc{fill: 2}
	targets := map[string]config.TopUpTarget{"tenant-a": {StandingCount: 10}}

	tu := NewTopUp(fakeCounts{counts: map[string]int{}}, alloc, &grantLock{}, time.Hour, targets)
	tu.sweep(context.Background())

	if len(alloc.calls) != 1 {
		t.Fatalf("allocation calls = %d, want 1", len(alloc.calls))
	}
	if alloc.calls[0].count != 10 {
		t.Errorf("requested = %d, want full deficit 10", alloc.calls[0].count)
	}
}
