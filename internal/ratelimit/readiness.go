package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResourceStatus enumerates the readiness states of a sending resource.
type ResourceStatus string

const (
	StatusProvisioning ResourceStatus = "provisioning"
	StatusWarming      ResourceStatus = "warming"
	StatusReady        ResourceStatus = "ready"
	StatusPaused       ResourceStatus = "paused"
)

// warmupSchedule ramps a warming resource's daily cap over its first
// weeks. Day 1 is the first day of warming; past the last entry the
// resource graduates to its full configured cap.
var warmupSchedule = []struct {
	Day int
	Cap int
}{
	{1, 20}, {2, 20}, {3, 40}, {4, 40},
	{5, 75}, {6, 75}, {7, 75},
	{8, 150}, {9, 150}, {10, 150},
	{11, 300}, {12, 300}, {13, 300}, {14, 300},
	{15, 600}, {16, 600}, {17, 600}, {18, 600},
	{19, 1200}, {20, 1200}, {21, 1200},
}

// Resource is the readiness record for one sending resource.
type Resource struct {
	Kind      domain.ResourceKind `json:"kind"`
	ID        string              `json:"id"`
	Status    ResourceStatus      `json:"status"`
	DailyCap  int                 `json:"daily_cap"`
	StartedAt time.Time           `json:"started_at"` // when warming began
}

// Registry tracks sending resources in Redis. A resource that was never
// registered is treated as not ready: the safe default is to refuse the
// send rather than burn an unknown domain or number.
type Registry struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRegistry creates a resource registry on the given Redis client.
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{redis: client, now: time.Now}
}

// Register creates or updates a resource's readiness record.
func (r *Registry) Register(ctx context.Context, res Resource) error {
	key := fmt.Sprintf(keyResourceMeta, res.Kind, res.ID)
	err := r.redis.HSet(ctx, key, map[string]any{
		"status":     string(res.Status),
		"daily_cap":  res.DailyCap,
		"started_at": res.StartedAt.UTC().Format(time.RFC3339),
	}).Err()
	if err != nil {
		return fmt.Errorf("register resource %s: %w", key, err)
	}
	return nil
}

// Get returns a resource's readiness record, or nil if never registered.
func (r *Registry) Get(ctx context.Context, kind domain.ResourceKind, id string) (*Resource, error) {
	key := fmt.Sprintf(keyResourceMeta, kind, id)
	vals, err := r.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	res := &Resource{Kind: kind, ID: id, Status: ResourceStatus(vals["status"])}
	res.DailyCap, _ = strconv.Atoi(vals["daily_cap"])
	if ts := vals["started_at"]; ts != "" {
		res.StartedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return res, nil
}

// Ready reports whether the resource may send at all. Warming resources
// are ready (at a reduced cap); provisioning, paused, and unknown
// resources are not.
func (r *Registry) Ready(ctx context.Context, kind domain.ResourceKind, id string) (bool, error) {
	res, err := r.Get(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}
	return res.Status == StatusReady || res.Status == StatusWarming, nil
}

// EffectiveCap returns today's daily cap for the resource: the warmup
// schedule value while warming, the configured cap once ready, zero when
// the resource cannot send.
func (r *Registry) EffectiveCap(ctx context.Context, kind domain.ResourceKind, id string) (int, error) {
	res, err := r.Get(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, nil
	}
	switch res.Status {
	case StatusReady:
		return res.DailyCap, nil
	case StatusWarming:
		day := int(r.now().UTC().Sub(res.StartedAt.UTC()).Hours()/24) + 1
		cap := warmupCapForDay(day)
		if cap > res.DailyCap && res.DailyCap > 0 {
			cap = res.DailyCap
		}
		return cap, nil
	}
	return 0, nil
}

// List scans all registered resources. Used by the warmup graduation
// sweep; not a hot path.
func (r *Registry) List(ctx context.Context) ([]Resource, error) {
	var out []Resource
	iter := r.redis.Scan(ctx, 0, "resource:*", 100).Iterator()
	for iter.Next(ctx) {
		// Key layout is resource:<kind>:<id>.
		parts := strings.SplitN(strings.TrimPrefix(iter.Val(), "resource:"), ":", 2)
		if len(parts) != 2 {
			continue
		}
		kind, id := domain.ResourceKind(parts[0]), parts[1]
		res, err := r.Get(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan resources: %w", err)
	}
	return out, nil
}

// GraduationDay is the warmup day on which a warming resource may be
// promoted to ready.
func GraduationDay() int {
	return warmupSchedule[len(warmupSchedule)-1].Day
}

// WarmupDay returns which warmup day the resource is on, day 1 being
// the day warming started.
func (r *Registry) WarmupDay(res *Resource) int {
	day := int(r.now().UTC().Sub(res.StartedAt.UTC()).Hours()/24) + 1
	if day < 1 {
		day = 1
	}
	return day
}

func warmupCapForDay(day int) int {
	if day < 1 {
		day = 1
	}
	last := warmupSchedule[len(warmupSchedule)-1]
	if day >= last.Day {
		return last.Cap
	}
	for _, row := range warmupSchedule {
		if day <= row.Day {
			return row.Cap
		}
	}
	return last.Cap
}
