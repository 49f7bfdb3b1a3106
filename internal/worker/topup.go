package worker

import (
	"context"
	"time"

	"github.com/agencyos/leadpool/internal/config"
	"github.com/agencyos/leadpool/internal/pkg/distlock"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/service/allocator"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// ActiveCounter reports each tenant's active assignment count.
type ActiveCounter interface {
	ActiveAssignmentCounts(ctx context.Context) (map[string]int, error)
}

// BatchAllocator fills one tenant's deficit from the pool.
type BatchAllocator interface {
	Allocate(ctx context.Context, tenantID string, c pool.Criteria, count int) (*allocator.Result, error)
}

// TopUp keeps each configured tenant at its standing assignment count,
// allocating the deficit on every sweep. Tenants above target are left
// alone; leads are only released through the ledger.
type TopUp struct {
	counts   ActiveCounter
	alloc    BatchAllocator
	lock     distlock.DistLock
	interval time.Duration
	targets  map[string]config.TopUpTarget
}

// NewTopUp wires the standing-count sweep.
func NewTopUp(counts ActiveCounter, alloc BatchAllocator, lock distlock.DistLock, interval time.Duration, targets map[string]config.TopUpTarget) *TopUp {
	return &TopUp{counts: counts, alloc: alloc, lock: lock, interval: interval, targets: targets}
}

// Run loops until the context is cancelled, sweeping once per interval.
func (t *TopUp) Run(ctx context.Context) {
	if len(t.targets) == 0 {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *TopUp) sweep(ctx context.Context) {
	acquired, err := t.lock.Acquire(ctx)
	if err != nil {
		logger.Error("topup lock acquire failed", "error", err.Error())
		return
	}
	if !acquired {
		logger.Debug("topup sweep skipped: another replica holds the lock")
		return
	}
	defer t.lock.Release(ctx)

	counts, err := t.counts.ActiveAssignmentCounts(ctx)
	if err != nil {
		logger.Error("topup count query failed", "error", err.Error())
		return
	}

	for tenantID, target := range t.targets {
		if ctx.Err() != nil {
			return
		}
		deficit := target.StandingCount - counts[tenantID]
		if deficit <= 0 {
			continue
		}
		criteria := pool.Criteria{
			Industries: target.Industries,
			Countries:  target.Countries,
		}
		res, err := t.alloc.Allocate(ctx, tenantID, criteria, deficit)
		if err != nil && res == nil {
			logger.Error("topup allocation failed", "tenant_id", tenantID, "error", err.Error())
			continue
		}
		logger.Info("topup allocation",
			"tenant_id", tenantID, "deficit", deficit,
			"assigned", len(res.Assigned), "shortfall", res.Shortfall)
	}
}
