package worker

import (
	"math"
	"time"
)

// BackoffStrategy determines wait time between subscribe attempts.
type BackoffStrategy interface {
	// NextDelay returns the duration to wait before the next attempt
	// attempt: The attempt number (1 for first retry, 2 for second, etc.)
	NextDelay(attempt int) time.Duration
}

// FixedBackoff implements a constant wait time between attempts.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) NextDelay(attempt int) time.Duration {
	return b.Delay
}

// ExponentialBackoff implements an exponentially increasing wait time.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay) * math.Pow(b.Factor, float64(attempt-1))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// DefaultBackoff is used when no strategy is configured.
var DefaultBackoff = ExponentialBackoff{
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Factor:       2.0,
}
