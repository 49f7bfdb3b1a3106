package worker

import (
	"context"
	"time"

	"github.com/agencyos/leadpool/internal/pkg/distlock"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/ratelimit"
)

// WarmupGraduator promotes warming resources to ready once they have
// completed the ramp schedule. Without it a resource would sit at the
// final warmup cap forever.
type WarmupGraduator struct {
	registry *ratelimit.Registry
	lock     distlock.DistLock
	interval time.Duration
}

// NewWarmupGraduator wires the graduation sweep.
func NewWarmupGraduator(registry *ratelimit.Registry, lock distlock.DistLock, interval time.Duration) *WarmupGraduator {
	return &WarmupGraduator{registry: registry, lock: lock, interval: interval}
}

// Run loops until the context is cancelled.
func (g *WarmupGraduator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep(ctx)
		}
	}
}

func (g *WarmupGraduator) sweep(ctx context.Context) {
	acquired, err := g.lock.Acquire(ctx)
	if err != nil {
		logger.Error("warmup lock acquire failed", "error", err.Error())
		return
	}
	if !acquired {
		return
	}
	defer g.lock.Release(ctx)

	resources, err := g.registry.List(ctx)
	if err != nil {
		logger.Error("warmup resource listing failed", "error", err.Error())
		return
	}

	for i := range resources {
		res := &resources[i]
		if res.Status != ratelimit.StatusWarming {
			continue
		}
		if g.registry.WarmupDay(res) <= ratelimit.GraduationDay() {
			continue
		}
		res.Status = ratelimit.StatusReady
		if err := g.registry.Register(ctx, *res); err != nil {
			logger.Error("warmup graduation failed",
				"kind", string(res.Kind), "id", res.ID, "error", err.Error())
			continue
		}
		logger.Info("resource graduated from warmup",
			"kind", string(res.Kind), "id", res.ID, "daily_cap", res.DailyCap)
	}
}
