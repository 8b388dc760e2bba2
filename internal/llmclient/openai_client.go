package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
)

// chatCompleter is the slice of the go-openai client we use.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	api    chatCompleter
	cfg    config.LLMModelConfig
	logger *zap.Logger
	retry  retryPolicy
}

func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("openai API key is required unless a custom endpoint is set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = cfg.Endpoint
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}

	return &OpenAIClient{
		api:    openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger.Named("llm_client.openai").With(zap.String("model", cfg.Model)),
		retry:  defaultRetryPolicy,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq := c.buildRequest(req)

	var content string
	operation := func() error {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			if ctx.Err() != nil || !isTransientOpenAIError(err) {
				return backoff.Permanent(fmt.Errorf("openai request failed: %w", err))
			}
			c.logger.Warn("Transient OpenAI error, retrying", zap.Error(err))
			return fmt.Errorf("openai request failed: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return backoff.Permanent(errors.New("openai API returned no content"))
		}
		c.logger.Debug("OpenAI generation complete",
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.retry.backOff(), ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) buildRequest(req schemas.GenerationRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	out := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: firstNonZero(float32(req.Options.Temperature), c.cfg.Temperature),
		TopP:        firstNonZero(float32(req.Options.TopP), c.cfg.TopP),
		MaxTokens:   firstNonZero(req.Options.MaxTokens, c.cfg.MaxTokens),
	}
	if req.Options.ForceJSONFormat {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

func isTransientOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return isTransientMessage(err)
}

func (c *OpenAIClient) Close() error { return nil }
