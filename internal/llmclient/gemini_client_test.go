package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/navpilot/internal/config"
)

func setupGeminiClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(context.Background(), validModelConfig(config.ProviderGemini, server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)
	client.retry = fastRetry
	return client
}

func writeGeminiResponse(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 10, "totalTokenCount": 14},
	})
}

func writeGeminiError(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": "simulated", "status": status},
	})
}

func TestGeminiClientGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("builds the request from the generation options", func(t *testing.T) {
		var body map[string]any
		client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "test-model:generateContent"), r.URL.Path)
			assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeGeminiResponse(w, `{"understanding": "login page"}`)
		})

		out, err := client.Generate(ctx, testRequest())
		require.NoError(t, err)
		assert.Equal(t, `{"understanding": "login page"}`, out)

		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", gen["responseMimeType"])
		assert.InDelta(t, 0.2, gen["temperature"], 1e-6)
		sys := body["systemInstruction"].(map[string]any)
		assert.Contains(t, sys["parts"].([]any)[0].(map[string]any)["text"], "You plan browser actions.")
	})

	t.Run("retries unavailable", func(t *testing.T) {
		var calls atomic.Int32
		client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				writeGeminiError(w, http.StatusServiceUnavailable, "UNAVAILABLE")
				return
			}
			writeGeminiResponse(w, "ok")
		})

		out, err := client.Generate(ctx, testRequest())
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.GreaterOrEqual(t, calls.Load(), int32(3))
	})

	t.Run("invalid argument is permanent", func(t *testing.T) {
		var calls atomic.Int32
		client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeGeminiError(w, http.StatusBadRequest, "INVALID_ARGUMENT")
		})

		_, err := client.Generate(ctx, testRequest())
		assert.ErrorContains(t, err, "gemini request failed")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("blocked candidate has no text", func(t *testing.T) {
		client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"SAFETY"}]}`))
		})
		_, err := client.Generate(ctx, testRequest())
		assert.ErrorContains(t, err, "SAFETY")
	})
}

func TestNewGeminiClientValidation(t *testing.T) {
	ctx := context.Background()
	_, err := NewGeminiClient(ctx, config.LLMModelConfig{Model: "m"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewGeminiClient(ctx, config.LLMModelConfig{APIKey: "k"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "model name is required")
}
