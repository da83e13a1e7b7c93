package agenda

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"
)

// Policy controls how remote sheet calls are retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
}

// DefaultPolicy is 3 retries starting at 1s, doubling, capped at 60s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Factor:     2.0,
	}
}

// Delay returns the backoff before retry k (k >= 1), without jitter:
// min(BaseDelay * Factor^(k-1), MaxDelay).
func (p Policy) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(k-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Retrier runs remote operations under a Policy.
type Retrier struct {
	policy Policy

	// jitter returns a fraction in [0.1, 0.9) added on top of each delay.
	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with randomized jitter and real sleeps.
func NewRetrier(policy Policy) *Retrier {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.Factor < 1 {
		policy.Factor = 2.0
	}
	return &Retrier{
		policy: policy,
		jitter: func() float64 { return 0.1 + 0.8*rand.Float64() },
		sleep:  sleepContext,
	}
}

// Policy returns the effective retry policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, returns a permanent error, or the retry
// budget is spent. On exhaustion the last error is returned wrapped in a
// *TransportError.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := r.policy.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.Delay(attempt - 1)
			wait := delay + time.Duration(float64(delay)*r.jitter())
			log.Printf("Retrying %s in %s (attempt %d/%d): %v", name, wait.Round(time.Millisecond), attempt, attempts, lastErr)
			if err := r.sleep(ctx, wait); err != nil {
				return &TransportError{Op: name, Attempts: attempt - 1, Err: lastErr}
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err
	}

	return &TransportError{Op: name, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
