package collector

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// TokenBucket paces outbound API calls. A nil bucket means unlimited.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time
	jitterFrac   float64
}

// NewTokenBucket builds a bucket refilling at rps tokens per second with a
// small jitter applied to waits so callers do not fall into lockstep.
// Returns nil (unlimited) when rps <= 0.
func NewTokenBucket(rps, jitterFrac float64) *TokenBucket {
	if rps <= 0 {
		return nil
	}
	capacity := math.Max(1, rps*2)
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: rps,
		last:         time.Now(),
		jitterFrac:   jitterFrac,
	}
}

// Take blocks until a token is available or the context ends. It reports
// false only when the context was cancelled.
func (b *TokenBucket) Take(ctx context.Context) bool {
	if b == nil {
		return true
	}
	for {
		b.mu.Lock()
		now := time.Now()
		if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
			b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
			b.last = now
		}
		ok := b.tokens >= 1.0
		if ok {
			b.tokens -= 1.0
		}
		b.mu.Unlock()

		if ok {
			return true
		}
		wait := time.Duration((1.0/b.refillPerSec)*float64(time.Second)) + b.jitter()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (b *TokenBucket) jitter() time.Duration {
	frac := b.jitterFrac
	if frac <= 0 {
		frac = 0.10
	}
	j := 1 + ((rand.Float64()*2 - 1) * frac)
	return time.Duration(j * float64(30*time.Millisecond))
}
