// Package ratelimit tracks per-resource daily send counters and sending
// resource readiness.
//
// Counters live in Redis keyed by UTC date so the check-and-increment is
// a single atomic round trip: two concurrent senders can never both
// squeeze under the last slot of a limit. Keys expire shortly after the
// daily boundary, which is the reset mechanism.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/agencyos/leadpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis key patterns.
const (
	keyDailyCounter = "ratelimit:%s:%s:daily:%s" // kind, resource id, UTC date
	keyResourceMeta = "resource:%s:%s"           // kind, resource id
)

// dailyTTL keeps a counter alive past the UTC midnight reset so late
// reads for reporting still see yesterday's final value.
const dailyTTL = 25 * time.Hour

// checkAndIncrScript atomically verifies the daily limit and increments.
// Returns {allowed, current}. The EXPIRE is set only on first increment.
const checkAndIncrScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local updated = redis.call("INCR", key)
if updated == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, updated}
`

// Limiter enforces per-resource daily send caps.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script

	// now is injected for deterministic daily-boundary tests.
	now func() time.Time
}

// NewLimiter creates a limiter on the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{
		redis:  client,
		script: redis.NewScript(checkAndIncrScript),
		now:    time.Now,
	}
}

// Allow consumes one send slot for the resource if its daily counter is
// under limit. The check and the increment are one atomic script call.
// Returns whether the send may proceed and the counter value after the
// call.
func (l *Limiter) Allow(ctx context.Context, kind domain.ResourceKind, resourceID string, limit int) (bool, int64, error) {
	if limit <= 0 {
		return false, 0, nil
	}
	key := l.dailyKey(kind, resourceID)
	res, err := l.script.Run(ctx, l.redis, []string{key}, limit, int(dailyTTL.Seconds())).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit check %s: %w", key, err)
	}
	allowed := res[0].(int64) == 1
	current := res[1].(int64)
	return allowed, current, nil
}

// Usage returns the resource's counter for today without consuming a slot.
func (l *Limiter) Usage(ctx context.Context, kind domain.ResourceKind, resourceID string) (int64, error) {
	n, err := l.redis.Get(ctx, l.dailyKey(kind, resourceID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (l *Limiter) dailyKey(kind domain.ResourceKind, resourceID string) string {
	return fmt.Sprintf(keyDailyCounter, kind, resourceID, l.now().UTC().Format("2006-01-02"))
}
