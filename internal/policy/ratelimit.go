package policy

import (
	"sync"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// tokenBucket is a deterministic, logical-time-keyed token bucket: it
// refills in units of logical_time rather than wall clock, so replaying
// the same event sequence reproduces the same accept/reject decisions
// (section 4.5).
type tokenBucket struct {
	capacity uint64
	refill   uint64
	tokens   uint64
	lastTick core.LogicalTime
	seeded   bool
}

func (b *tokenBucket) allow(now core.LogicalTime) bool {
	if !b.seeded {
		b.tokens = b.capacity
		b.lastTick = now
		b.seeded = true
	} else if now > b.lastTick {
		elapsed := uint64(now - b.lastTick)
		refilled := b.tokens + elapsed*b.refill
		if refilled > b.capacity {
			refilled = b.capacity
		}
		b.tokens = refilled
		b.lastTick = now
	}
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter enforces p's per-tool-name rate limits. It is stateful
// (each tool name's bucket persists across calls) so it must be rebuilt
// or reset when replaying a run from the start.
type RateLimiter struct {
	mu      sync.Mutex
	specs   map[string]RateLimitSpec
	buckets map[string]*tokenBucket
}

// NewRateLimiter returns a limiter enforcing p's configured rate limits.
func NewRateLimiter(p *CompiledPolicy) *RateLimiter {
	return &RateLimiter{
		specs:   p.rateLimits,
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow reports whether a call to toolName at logicalTime is within its
// rate limit, consuming one token if so. Tools with no configured limit
// are always allowed.
func (l *RateLimiter) Allow(toolName string, logicalTime core.LogicalTime) bool {
	spec, ok := l.specs[toolName]
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[toolName]
	if !ok {
		b = &tokenBucket{capacity: spec.Capacity, refill: spec.RefillPerTick}
		l.buckets[toolName] = b
	}
	return b.allow(logicalTime)
}
