package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

func TestWait_SameBackend_EnforcesMinDelay(t *testing.T) {
	limiter := NewBackendLimiter(100*time.Millisecond, nil)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("second wait: %v", err)
	}

	// Allow 20ms for timer jitter.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentBackends_NoCrossBlocking(t *testing.T) {
	limiter := NewBackendLimiter(200*time.Millisecond, nil)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("greenhouse wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "lever"); err != nil {
		t.Fatalf("lever wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected lever wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_OverrideShortensDelay(t *testing.T) {
	limiter := NewBackendLimiter(5*time.Second, map[string]time.Duration{"adzuna": 10 * time.Millisecond})
	ctx := context.Background()

	limiter.Wait(ctx, "adzuna")
	start := time.Now()
	if err := limiter.Wait(ctx, "adzuna"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("override not applied, waited %v", elapsed)
	}
}

func TestWait_ConcurrentWaitersAreSerialized(t *testing.T) {
	limiter := NewBackendLimiter(50*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Wait(ctx, "remoteok")
		}()
	}
	wg.Wait()

	// Three callers need two gaps.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected >= 90ms for three serialized callers, got %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewBackendLimiter(5*time.Second, nil)

	// First call seeds the last-call time.
	if err := limiter.Wait(context.Background(), "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx, "greenhouse"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

type recordingSource struct {
	called bool
}

func (s *recordingSource) Name() string { return "recording" }

func (s *recordingSource) Fetch(context.Context, string, string, int) ([]model.JobPosting, error) {
	s.called = true
	return nil, nil
}

func TestSource_WaitsBeforeDelegating(t *testing.T) {
	limiter := NewBackendLimiter(100*time.Millisecond, nil)
	inner := &recordingSource{}
	src := NewSource(inner, limiter, "greenhouse")
	ctx := context.Background()

	if _, err := src.Fetch(ctx, "go", "", 10); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner source was not called on first fetch")
	}

	inner.called = false
	start := time.Now()
	if _, err := src.Fetch(ctx, "go", "", 10); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner source was not called on second fetch")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait on second fetch, got %v", elapsed)
	}
	if src.Name() != "recording" {
		t.Errorf("Name should delegate, got %q", src.Name())
	}
}
