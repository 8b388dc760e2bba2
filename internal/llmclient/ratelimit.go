package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/navpilot/api/schemas"
)

// RateLimitedClient holds each call until a token-bucket slot is free. The
// wait honors the caller's context.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

func NewRateLimitedClient(next schemas.LLMClient, rps float64, burst int) *RateLimitedClient {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return c.next.Generate(ctx, req)
}

func (c *RateLimitedClient) Close() error { return c.next.Close() }
