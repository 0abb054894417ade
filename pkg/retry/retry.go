package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff defines the delay between attempts.
type Backoff struct {
	// Min is the delay before the first retry.
	Min time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// DefaultBackoff suits short storage hiccups on the request path.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    25 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the delay after the given failed attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Do runs fn up to attempts times while retryable reports true for its error.
// The last error is returned when attempts run out or ctx is done while waiting.
func Do(ctx context.Context, attempts int, b Backoff, retryable func(error) bool, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || retryable == nil || !retryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(b.Next(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
