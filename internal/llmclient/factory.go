package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/observability"
)

// NewClient creates a provider client for a single model configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// NewFromConfig builds the full client stack: one provider client per
// distinct model, a shared rate limiter, instrumentation and the tier router.
func NewFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger, metrics *observability.Metrics) (schemas.LLMClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	built := make(map[string]schemas.LLMClient, 2)
	build := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		mc := cfg.Models[name]
		if mc.APIKey == "" {
			mc.APIKey = cfg.APIKey
		}
		c, err := NewClient(ctx, mc, logger)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		built[name] = c
		return c, nil
	}

	fast, err := build(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := build(cfg.DefaultPowerfulModel)
	if err != nil {
		_ = fast.Close()
		return nil, err
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}

	var client schemas.LLMClient = router
	if cfg.RateLimit.RequestsPerSecond > 0 {
		client = NewRateLimitedClient(client, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	return NewInstrumentedClient(client, metrics), nil
}
