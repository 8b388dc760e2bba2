// Package schemas holds the model-facing contract shared by the planner and
// the provider clients.
package schemas

import "context"

// ModelTier picks between a cheap, quick model and a stronger one.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single completion. Zero values leave the
// provider's default in place.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest is one prompt pair sent to a model tier.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is implemented by every provider, the tier router, and the
// instrumentation wrapper. Calls are slow and may fail; bound them with a
// context deadline.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
