package llmclient

import (
	"time"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
)

// fastRetry keeps retry tests quick.
var fastRetry = retryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsed:      2 * time.Second,
	MaxRetries:      3,
}

func validModelConfig(provider config.LLMProvider, endpoint string) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		Endpoint:    endpoint,
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		TopP:        0.9,
		TopK:        40,
	}
}

func testRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You plan browser actions.",
		UserPrompt:   "Goal: click login",
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	}
}
