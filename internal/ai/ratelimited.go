package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedProvider is a decorator that spaces out LLM requests so a burst
// of scoring calls stays under the provider's requests-per-minute quota.
type RateLimitedProvider struct {
	inner   LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows requestsPerMinute calls per minute with no burst.
func NewRateLimitedProvider(inner LLMProvider, requestsPerMinute int) *RateLimitedProvider {
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1),
	}
}

// Complete waits for a token, then delegates to the wrapped provider.
func (p *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit wait: %w", err)
	}
	return p.inner.Complete(ctx, req)
}
