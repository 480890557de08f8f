package crawler

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before each retry: Base * Factor^n * jitter,
// with jitter drawn uniformly from [JitterMin, JitterMax).
type Backoff struct {
	Base      time.Duration
	Factor    float64
	JitterMin float64
	JitterMax float64

	// rand returns a value in [0, 1); nil uses math/rand/v2
	rand func() float64
}

// DefaultBackoff returns 2s * 2^n * U[0.5, 1.5)
func DefaultBackoff() Backoff {
	return Backoff{
		Base:      2 * time.Second,
		Factor:    2,
		JitterMin: 0.5,
		JitterMax: 1.5,
	}
}

// Wait returns the delay before retry n (1-indexed)
func (b Backoff) Wait(retry int) time.Duration {
	r := rand.Float64
	if b.rand != nil {
		r = b.rand
	}
	jitter := b.JitterMin + r()*(b.JitterMax-b.JitterMin)
	return time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(retry)) * jitter)
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
