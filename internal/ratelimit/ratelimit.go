package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// BackendLimiter enforces a minimum delay between requests to the same job
// board backend. All sources hitting one backend share a key, so ten
// Greenhouse boards still space their requests against Greenhouse.
type BackendLimiter struct {
	mu        sync.Mutex
	lastCall  map[string]time.Time     // key: backend name
	minDelay  time.Duration            // default gap between requests to one backend
	overrides map[string]time.Duration // per-backend gaps
}

// NewBackendLimiter creates a limiter with a default gap and optional
// per-backend overrides.
func NewBackendLimiter(minDelay time.Duration, overrides map[string]time.Duration) *BackendLimiter {
	return &BackendLimiter{
		lastCall:  make(map[string]time.Time),
		minDelay:  minDelay,
		overrides: overrides,
	}
}

func (r *BackendLimiter) delayFor(backend string) time.Duration {
	if d, ok := r.overrides[backend]; ok {
		return d
	}
	return r.minDelay
}

// Wait blocks until enough time has passed since the last request to backend.
// Returns an error if the context is cancelled while waiting.
func (r *BackendLimiter) Wait(ctx context.Context, backend string) error {
	delay := r.delayFor(backend)

	r.mu.Lock()
	now := time.Now()
	last, ok := r.lastCall[backend]
	if !ok || now.Sub(last) >= delay {
		r.lastCall[backend] = now
		r.mu.Unlock()
		return nil
	}

	// Reserve the next slot before sleeping so concurrent waiters queue up
	// behind each other instead of all waking at once.
	next := last.Add(delay)
	r.lastCall[backend] = next
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", backend, ctx.Err())
	case <-time.After(time.Until(next)):
	}
	return nil
}

// Source is a decorator that enforces backend-level rate limiting before
// delegating to the wrapped JobSource.
type Source struct {
	inner   model.JobSource
	limiter *BackendLimiter
	backend string
}

// NewSource wraps a JobSource with backend-level rate limiting.
// All sources targeting the same backend should share the same limiter instance.
func NewSource(inner model.JobSource, limiter *BackendLimiter, backend string) *Source {
	return &Source{
		inner:   inner,
		limiter: limiter,
		backend: backend,
	}
}

func (s *Source) Name() string { return s.inner.Name() }

// Fetch waits for the limiter, then delegates to the wrapped source.
func (s *Source) Fetch(ctx context.Context, query, location string, limit int) ([]model.JobPosting, error) {
	if err := s.limiter.Wait(ctx, s.backend); err != nil {
		return nil, err
	}
	return s.inner.Fetch(ctx, query, location, limit)
}
