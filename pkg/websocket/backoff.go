package websocket

import (
	"math/rand/v2"
	"time"
)

// BackoffPolicy returns the delay before reconnect attempt n (1-based).
type BackoffPolicy interface {
	Next(attempt int) time.Duration
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the next backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	wait := min
	for i := 1; i < attempt && wait < max; i++ {
		wait = time.Duration(float64(wait) * factor)
	}
	if wait > max {
		wait = max
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := min2(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff time.Duration

func (f FixedBackoff) Next(int) time.Duration {
	return time.Duration(f)
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
