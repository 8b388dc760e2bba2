package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/mocks"
	"github.com/xkilldash9x/navpilot/internal/observability"
)

func TestRateLimitedClient(t *testing.T) {
	next := new(mocks.MockLLMClient)
	next.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)
	next.On("Close").Return(nil)

	client := NewRateLimitedClient(next, 0.5, 1)

	out, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// The bucket is empty and refills in two seconds, beyond this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Generate(ctx, testRequest())
	assert.ErrorContains(t, err, "rate limiter")
	next.AssertNumberOfCalls(t, "Generate", 1)

	assert.NoError(t, client.Close())
}

func TestInstrumentedClient(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reg := prometheus.NewRegistry()

	next := new(mocks.MockLLMClient)
	boom := errors.New("deadline exceeded")
	next.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool { return r.Tier == schemas.TierFast })).Return("ok", nil).Once()
	next.On("Generate", mock.Anything, mock.Anything).Return("", boom).Once()

	client := NewInstrumentedClient(next, observability.NewMetrics(reg, "t"))
	client.tracer = tp.Tracer("test")

	out, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "llm.generate", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	count, err := testutil.GatherAndCount(reg, "t_model_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per tier and status")
}
