package monitor

import (
	"math/rand"
	"time"
)

// Backoff yields the delay before reconnect attempt n (1-based). Injectable
// so tests can drive N consecutive failures without real timing.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential is a bounded exponential backoff with jitter. The bound keeps
// a dead printer from being hammered while still reconnecting promptly
// after a brief network blip.
type Exponential struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay randomised, 0..1
}

// DefaultBackoff is the reconnect policy used when none is configured.
func DefaultBackoff() Exponential {
	return Exponential{Min: time.Second, Max: 30 * time.Second, Jitter: 0.2}
}

// Delay returns min*2^(attempt-1) capped at max, with jitter applied.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Min
	for i := 1; i < attempt && d < e.Max; i++ {
		d *= 2
	}
	if d > e.Max {
		d = e.Max
	}
	if e.Jitter > 0 {
		spread := float64(d) * e.Jitter
		d += time.Duration((rand.Float64() - 0.5) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}
