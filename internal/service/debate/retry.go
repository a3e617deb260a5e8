package debate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// RetryPolicy is a policy-only decorator around an adapter call
// (spec.md §4.2): it inspects only the classified error's Retryable flag
// and an optional rate-limit retryAfter hint, and never interprets the
// call's payload.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Deterministic bool // disables jitter and forces MaxAttempts to 0
}

// NewRetryPolicy builds a RetryPolicy from the configuration surface
// (config.RetriesConfig), applying spec.md §4.2's deterministic-mode rule.
func NewRetryPolicy(maxAttempts int, baseDelayMs, maxDelayMs int64, deterministic bool) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Duration(baseDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(maxDelayMs) * time.Millisecond,
		Deterministic: deterministic,
	}
	if deterministic {
		p.MaxAttempts = 0
	}
	return p
}

// RetryableFunc is a single attempt at the wrapped call.
type RetryableFunc func(ctx context.Context) error

// OnRetryFunc observes a retry before it sleeps, letting the State Manager
// count it (spec.md §4.2's onRetry hook).
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Execute runs fn up to 1+MaxAttempts times, retrying only errors whose
// DomainError.Retryable is true. Non-retryable errors, and context
// cancellation, are returned immediately.
func (p *RetryPolicy) Execute(ctx context.Context, fn RetryableFunc, onRetry OnRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.calculateDelay(attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetryExhaustedError{Attempts: p.MaxAttempts + 1, LastErr: lastErr}
}

// calculateDelay computes exponential backoff with jitter (spec.md §4.2):
// delay = min(base * 2^attempt, maxCap); jitter multiplies by a uniform
// factor in [0.5, 1.0] unless Deterministic; a rate-limit error's
// retryAfter hint raises the delay to at least that value.
func (p *RetryPolicy) calculateDelay(attempt int, err error) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if !p.Deterministic {
		factor := 0.5 + rand.Float64()*0.5
		delay *= factor
	}

	if hint := retryAfterHint(err); hint > 0 {
		hintDelay := float64(hint)
		if hintDelay > delay {
			delay = hintDelay
		}
	}

	return time.Duration(delay)
}

// retryAfterHint extracts a rate-limit retryAfter hint (milliseconds) from a
// classified DomainError, or 0 if none is present.
func retryAfterHint(err error) time.Duration {
	if !core.IsCategory(err, core.ErrCatModelTransient) {
		return 0
	}
	domErr, ok := err.(*core.DomainError)
	if !ok || domErr.Details == nil {
		return 0
	}
	ms, ok := domErr.Details["retryAfterMs"].(int)
	if !ok {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// RetryExhaustedError indicates every attempt failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted reports whether err is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	_, ok := err.(*RetryExhaustedError)
	return ok
}
