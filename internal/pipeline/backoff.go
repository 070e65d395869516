package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newSchedule yields base, 2*base, 4*base, ... capped at max, without jitter.
func newSchedule(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Delays returns the first n delays of the schedule. Used for logging the
// effective policy at startup.
func Delays(base, max time.Duration, n int) []time.Duration {
	s := newSchedule(base, max)
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.NextBackOff())
	}
	return out
}
