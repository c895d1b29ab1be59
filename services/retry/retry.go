// Package retry wraps a single provider's call with bounded exponential
// backoff. Only errors flagged retryable trigger another attempt; everything
// else propagates immediately. Every attempt outcome is reported so the
// circuit breaker sees the same view the caller does.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/spectreweave/orchestrator/models"
	"github.com/spectreweave/orchestrator/services/providers"
)

// Policy bounds the retry loop.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration

	// Multiplier grows the delay per retry
	Multiplier float64

	// MaxDelay caps the backoff
	MaxDelay time.Duration
}

// DefaultPolicy matches the orchestrator defaults: up to three retries,
// 1s base delay doubling to a 10s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   10 * time.Second,
	}
}

// Reporter receives every attempt outcome and gates repeat attempts. The
// circuit breaker satisfies it: a failure recorded mid-loop can reopen the
// breaker, and Allow then stops the remaining retries.
type Reporter interface {
	Allow(provider models.Provider) bool
	RecordSuccess(provider models.Provider)
	RecordFailure(provider models.Provider, err error)
}

// Operation is one provider attempt.
type Operation func(ctx context.Context) (*models.GenerationResponse, error)

// Execute runs the operation up to MaxRetries+1 times. The delay before
// retry n is min(BaseDelay * Multiplier^n, MaxDelay). The terminal error is
// returned unchanged.
func Execute(ctx context.Context, provider models.Provider, policy Policy, reporter Reporter, op Operation) (*models.GenerationResponse, error) {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, providers.NewTimeoutError(provider, ctx.Err())
			case <-time.After(delayFor(policy, attempt)):
			}
			// The first attempt was admitted by the caller. Every repeat
			// attempt has to pass the breaker again: a failure recorded above
			// may have reopened it, and an open breaker takes no more calls.
			if !reporter.Allow(provider) {
				return nil, providers.NewServiceError(providers.CodeCircuitOpen, provider,
					"circuit breaker opened during retries", false, lastErr)
			}
		}

		resp, err := op(ctx)
		if err == nil {
			reporter.RecordSuccess(provider)
			return resp, nil
		}

		reporter.RecordFailure(provider, err)
		lastErr = err

		if !providers.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func delayFor(policy Policy, attempt int) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}
