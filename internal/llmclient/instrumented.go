package llmclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/observability"
)

// InstrumentedClient records latency metrics and a span for every call.
type InstrumentedClient struct {
	next    schemas.LLMClient
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewInstrumentedClient wraps next. A nil metrics value disables metrics;
// spans go to the global tracer provider.
func NewInstrumentedClient(next schemas.LLMClient, metrics *observability.Metrics) *InstrumentedClient {
	return &InstrumentedClient{next: next, metrics: metrics, tracer: observability.Tracer()}
}

func (c *InstrumentedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}
	ctx, span := c.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.tier", string(tier)),
		attribute.Int("llm.prompt_chars", len(req.SystemPrompt)+len(req.UserPrompt)),
		attribute.Bool("llm.json", req.Options.ForceJSONFormat),
	))
	defer span.End()

	start := time.Now()
	out, err := c.next.Generate(ctx, req)
	c.metrics.ModelCall(string(tier), time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(out)))
	return out, nil
}

func (c *InstrumentedClient) Close() error { return c.next.Close() }
