// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    config.LLMModelConfig
	logger *zap.Logger
	retry  retryPolicy
}

// NewGeminiClient builds a client for one configured model. A non-empty
// Endpoint overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		retry:  defaultRetryPolicy,
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := genai.Text(req.UserPrompt)
	genCfg := c.generationConfig(req)

	var text string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
		if err != nil {
			if ctx.Err() != nil || !isTransientMessage(err) {
				return backoff.Permanent(fmt.Errorf("gemini request failed: %w", err))
			}
			c.logger.Warn("Transient Gemini error, retrying", zap.Error(err))
			return fmt.Errorf("gemini request failed: %w", err)
		}

		out, err := candidateText(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		if resp.UsageMetadata != nil {
			c.logger.Debug("Gemini generation complete",
				zap.Duration("duration", time.Since(start)),
				zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
				zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
			)
		}
		text = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.retry.backOff(), ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *GeminiClient) generationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temp := float32(req.Options.Temperature)
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(temp)}

	if topP := firstNonZero(float32(req.Options.TopP), c.cfg.TopP); topP > 0 {
		gc.TopP = genai.Ptr(topP)
	}
	if topK := firstNonZero(float32(req.Options.TopK), float32(c.cfg.TopK)); topK > 0 {
		gc.TopK = genai.Ptr(topK)
	}
	if maxTokens := firstNonZero(req.Options.MaxTokens, c.cfg.MaxTokens); maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}
	if req.Options.ForceJSONFormat {
		gc.ResponseMIMEType = "application/json"
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	return gc
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini API returned no candidates")
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini API returned empty content (finish reason: %s)", cand.FinishReason)
	}
	return sb.String(), nil
}

// Close is a no-op; the SDK holds no resources beyond its HTTP client.
func (c *GeminiClient) Close() error { return nil }

func firstNonZero[T int | float32](vals ...T) T {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
