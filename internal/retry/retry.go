package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// Policy controls how transient failures are retried.
// MaxRetries is the number of additional attempts after the first failure.
// BaseDelay is the delay before the first retry, doubled on each subsequent retry.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do calls fn, retrying transient errors with exponential backoff and jitter.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !isRetryable(err) {
		return v, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		logger.Warn("retrying after transient error",
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		v, err = fn(ctx)
		if err == nil || !isRetryable(err) {
			return v, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// Source is a decorator that retries transient fetch failures before
// delegating to the wrapped JobSource.
type Source struct {
	inner  model.JobSource
	policy Policy
	logger *slog.Logger
}

// NewSource wraps a JobSource with retry logic.
func NewSource(inner model.JobSource, policy Policy, logger *slog.Logger) *Source {
	return &Source{
		inner:  inner,
		policy: policy,
		logger: logger,
	}
}

func (s *Source) Name() string { return s.inner.Name() }

// Fetch attempts the wrapped fetch, retrying on transient errors.
func (s *Source) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	logger := s.logger.With("source", s.inner.Name(), "query", query)
	return Do(ctx, s.policy, logger, func(ctx context.Context) ([]model.JobPosting, error) {
		return s.inner.Fetch(ctx, query, location, limit)
	})
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: BaseDelay * 2^(attempt-1)
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 and 5xx are transient; other 4xx are not.
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Network and DNS failures are retryable.
	return true
}
