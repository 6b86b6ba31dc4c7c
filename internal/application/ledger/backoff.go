package ledger

import (
	"context"
	"time"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

// Backoff is the caller-visible retry policy for transient ledger failures.
// It lives with the caller on purpose: the coordinator never retries a
// state-changing call on its own, since a blind retry risks double
// submission.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff: 1s, 2s, 4s, ... capped at 30s.
var DefaultBackoff = Backoff{Base: time.Second, Max: 30 * time.Second, Factor: 2}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	d := base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry runs fn up to attempts times, sleeping per the policy between
// tries. Only kinds the taxonomy marks retryable are retried; everything
// else returns immediately. Intended for read-only calls and for callers
// that understand the double-submission risk of retrying writes.
func Retry(ctx context.Context, attempts int, b Backoff, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !domain.Retryable(domain.Classify(err).Kind) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(i)):
		}
	}
	return err
}
