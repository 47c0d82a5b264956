package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff computes retry delays with exponential growth, a cap,
// and optional uniform jitter. One parameterization serves both layers of the
// pipeline: the delivery client retries with 25% jitter to avoid thundering
// herds, while the event scheduler reschedules with zero jitter and the
// subscription's retry interval as the initial delay.
type ExponentialBackoff struct {
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	JitterFactor float64 // 0..1 fraction of the unjittered delay
}

// Delay returns the delay before retry number attempt, counted from zero:
// Delay(0) is the first retry's delay and equals Initial in expectation.
// Formula: min(Initial * Multiplier^attempt, Max), perturbed by
// ±JitterFactor uniform jitter.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = time.Minute
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}

	if b.JitterFactor > 0 {
		// Uniform in [-JitterFactor, +JitterFactor].
		jitter := (rand.Float64()*2 - 1) * b.JitterFactor
		delay *= 1 + jitter
	}

	return time.Duration(delay)
}

// DefaultClientBackoff is the fine-grained backoff used around individual
// delivery attempts: 1s initial, 60s cap, ±25% jitter.
func DefaultClientBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		Initial:      time.Second,
		Max:          time.Minute,
		Multiplier:   2,
		JitterFactor: 0.25,
	}
}

// ScheduleBackoff is the coarse-grained backoff used when rescheduling a
// whole event: the subscription's retry interval doubled per attempt, no
// jitter, capped at 24h so a misconfigured interval cannot push an event
// effectively out of the queue.
func ScheduleBackoff(retryInterval time.Duration) ExponentialBackoff {
	return ExponentialBackoff{
		Initial:    retryInterval,
		Max:        24 * time.Hour,
		Multiplier: 2,
	}
}
