package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageRateLimiter throttles visitor sends per widget session. Each key
// gets its own token bucket; buckets idle longer than idleTTL are dropped by
// Run.
type MessageRateLimiter struct {
	mu          sync.Mutex
	sessions    map[string]*sessionBucket
	limit       rate.Limit
	burst       int
	idleTTL     time.Duration
	cleanupTick time.Duration
	now         func() time.Time
}

type sessionBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMessageRateLimiter allows perSecond sends per key with the given burst.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	return &MessageRateLimiter{
		sessions:    make(map[string]*sessionBucket),
		limit:       rate.Limit(perSecond),
		burst:       burst,
		idleTTL:     10 * time.Minute,
		cleanupTick: 5 * time.Minute,
		now:         time.Now,
	}
}

func (rl *MessageRateLimiter) bucket(key string, now time.Time) *sessionBucket {
	b, ok := rl.sessions[key]
	if !ok {
		b = &sessionBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.sessions[key] = b
	}
	b.lastSeen = now
	return b
}

// Allow consumes one token for key, reporting whether the send may proceed.
func (rl *MessageRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	return rl.bucket(key, now).limiter.AllowN(now, 1)
}

// WaitTime is how long key must wait before its next send is allowed.
func (rl *MessageRateLimiter) WaitTime(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.sessions[key]
	if !ok {
		return 0
	}
	tokens := b.limiter.TokensAt(rl.now())
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(rl.limit) * float64(time.Second))
}

// Len is the number of tracked sessions.
func (rl *MessageRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.sessions)
}

// Run sweeps idle sessions until ctx is done.
func (rl *MessageRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *MessageRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.sessions {
		if now.Sub(b.lastSeen) > rl.idleTTL {
			delete(rl.sessions, key)
		}
	}
}
