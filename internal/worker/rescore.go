// Package worker holds the background sweeps: periodic lead rescoring
// and warming-resource graduation. Each sweep takes a distributed lock
// so only one server replica runs it at a time.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/distlock"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/scoring"
	"github.com/agencyos/leadpool/internal/service/pool"
)

// TenantSource lists tenants that hold active assignments.
type TenantSource interface {
	ActiveTenantIDs(ctx context.Context) ([]string, error)
}

// StaleSource finds leads whose score snapshots are missing or expired.
type StaleSource interface {
	StaleLeadIDs(ctx context.Context, tenantID string, cutoff time.Time, limit int) ([]string, error)
}

// SnapshotSaver persists recomputed snapshots.
type SnapshotSaver interface {
	Save(ctx context.Context, s *domain.ScoreSnapshot) error
}

// RescoreConfig tunes the sweep.
type RescoreConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	Concurrency int
	Weights     scoring.Weights
}

// Rescorer periodically recomputes stale score snapshots for every
// tenant with active assignments.
type Rescorer struct {
	tenants TenantSource
	stale   StaleSource
	leads   *pool.Service
	saver   SnapshotSaver
	lock    distlock.DistLock
	cfg     RescoreConfig
}

// NewRescorer wires the rescore sweep.
func NewRescorer(tenants TenantSource, stale StaleSource, leads *pool.Service, saver SnapshotSaver, lock distlock.DistLock, cfg RescoreConfig) *Rescorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Rescorer{tenants: tenants, stale: stale, leads: leads, saver: saver, lock: lock, cfg: cfg}
}

// Run loops until the context is cancelled, sweeping once per interval.
// One sweep runs immediately on startup.
func (r *Rescorer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Rescorer) sweep(ctx context.Context) {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		logger.Error("rescore lock acquire failed", "error", err.Error())
		return
	}
	if !acquired {
		logger.Debug("rescore sweep skipped: another replica holds the lock")
		return
	}
	defer r.lock.Release(ctx)

	start := time.Now()
	tenants, err := r.tenants.ActiveTenantIDs(ctx)
	if err != nil {
		logger.Error("rescore tenant listing failed", "error", err.Error())
		return
	}

	total := 0
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}
		n, err := r.sweepTenant(ctx, tenantID)
		if err != nil {
			logger.Error("rescore tenant sweep failed", "tenant_id", tenantID, "error", err.Error())
			continue
		}
		total += n
	}
	logger.Info("rescore sweep complete",
		"tenants", len(tenants), "rescored", total,
		"elapsed_ms", time.Since(start).Milliseconds())
}

func (r *Rescorer) sweepTenant(ctx context.Context, tenantID string) (int, error) {
	cutoff := time.Now().UTC().Add(-r.cfg.StaleAfter)
	ids, err := r.stale.StaleLeadIDs(ctx, tenantID, cutoff, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range ids {
		leadID := id
		g.Go(func() error {
			lead, err := r.leads.Get(gctx, leadID)
			if err != nil {
				return err
			}
			snap := scoring.Score(lead, tenantID, r.cfg.Weights, time.Now().UTC())
			return r.saver.Save(gctx, &snap)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
