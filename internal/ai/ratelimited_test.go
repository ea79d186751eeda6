package ai

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitedProvider_SpacesCalls(t *testing.T) {
	inner := &fakeProvider{resp: "ok"}
	p := NewRateLimitedProvider(inner, 600) // one every 100ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected calls to be spaced out, took %v", elapsed)
	}
}

func TestRateLimitedProvider_ContextCancelled(t *testing.T) {
	p := NewRateLimitedProvider(&fakeProvider{resp: "ok"}, 1)
	ctx := context.Background()
	if _, err := p.Complete(ctx, CompletionRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.Complete(short, CompletionRequest{}); err == nil {
		t.Fatal("expected wait to fail when the deadline is shorter than the next token")
	}
}
