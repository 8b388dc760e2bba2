package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "navpilot", cfg.Logger().ServiceName)
	assert.Equal(t, 20, cfg.Planner().MaxIterations)
	assert.Equal(t, 30, cfg.Planner().TopCandidates)
	assert.Equal(t, 60*time.Second, cfg.Planner().ModelTimeout)
	assert.True(t, cfg.Planner().AssumeCompleteOnSuccess)
	assert.Equal(t, 0.75, cfg.Planner().DefaultConfidence)
	assert.Equal(t, "memory", cfg.Session().Store)
	assert.Equal(t, 24*time.Hour, cfg.Session().MaxAge)
	assert.Equal(t, "@every 1h", cfg.Session().ExpirySchedule)
	assert.Equal(t, "pro", cfg.LLM().DefaultPowerfulModel)
	require.Contains(t, cfg.LLM().Models, "flash")
	assert.Equal(t, ProviderGemini, cfg.LLM().Models["flash"].Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM().Models["flash"].Model)
	assert.Equal(t, 60*time.Second, cfg.LLM().Models["flash"].APITimeout)
	assert.Equal(t, "none", cfg.Tracing().Exporter)

	assert.NoError(t, cfg.Validate(), "defaults must be valid")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Planner Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		invalid := *cfg
		invalid.PlannerCfg.MaxIterations = 0
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations must be a positive integer")

		invalid = *cfg
		invalid.PlannerCfg.DefaultConfidence = 1.5
		err = invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_confidence must be between 0.0 and 1.0")

		invalid = *cfg
		invalid.PlannerCfg.Rules = []RuleConfig{{ID: "blank", When: "true"}}
		err = invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rules[0] has no text")
	})

	t.Run("Session Validation", func(t *testing.T) {
		s := SessionConfig{Store: "memory", MaxAge: time.Hour}
		assert.NoError(t, s.Validate())

		s.Store = "cassandra"
		assert.ErrorContains(t, s.Validate(), "store must be one of")

		s = SessionConfig{Store: "postgres", MaxAge: time.Hour}
		assert.ErrorContains(t, s.Validate(), "postgres.url is required")

		s = SessionConfig{Store: "redis", MaxAge: time.Hour}
		assert.ErrorContains(t, s.Validate(), "redis.addr is required")

		s = SessionConfig{Store: "memory"}
		assert.ErrorContains(t, s.Validate(), "max_age must be a positive duration")
	})

	t.Run("LLM Validation", func(t *testing.T) {
		l := NewDefaultConfig().LLM()
		assert.NoError(t, l.Validate())

		l.DefaultFastModel = "missing"
		assert.ErrorContains(t, l.Validate(), `model "missing" is not defined`)

		l = NewDefaultConfig().LLM()
		l.Models = map[string]LLMModelConfig{
			"flash": {Provider: "anthropic"},
			"pro":   {Provider: ProviderOpenAI},
		}
		assert.ErrorContains(t, l.Validate(), "unsupported provider")

		l = NewDefaultConfig().LLM()
		l.RateLimit = RateLimitConfig{RequestsPerSecond: 1, Burst: 0}
		assert.ErrorContains(t, l.Validate(), "rate_limit.burst must be positive")
	})

	t.Run("Tracing Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.TracingCfg.Exporter = "zipkin"
		assert.ErrorContains(t, cfg.Validate(), "tracing.exporter must be one of")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
planner:
  max_iterations: 8
  model_timeout: 15s
  rules:
    - id: no-scroll
      text: Never scroll.
      when: "scroll_streak > 0"
llm:
  default_fast_model: mini
  default_powerful_model: mini
  models:
    mini:
      provider: openai
      model: gpt-4o-mini
      endpoint: http://localhost:8080/v1
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.Planner().MaxIterations)
		assert.Equal(t, 15*time.Second, cfg.Planner().ModelTimeout)
		require.Len(t, cfg.Planner().Rules, 1)
		assert.Equal(t, "scroll_streak > 0", cfg.Planner().Rules[0].When)
		assert.Equal(t, ProviderOpenAI, cfg.LLM().Models["mini"].Provider)
		// Defaults survive alongside file values.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("planner.top_candidates", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "top_candidates must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("session.store", "postgres")

		t.Setenv("NAVPILOT_LLM_API_KEY", "env-key")
		t.Setenv("NAVPILOT_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("NAVPILOT_REDIS_PASSWORD", "hunter2")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "env-key", cfg.LLM().APIKey)
		assert.Equal(t, "postgres://envvar/db", cfg.Session().Postgres.URL)
		assert.Equal(t, "hunter2", cfg.Session().Redis.Password)
	})

	t.Run("Log File Home Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/navpilot.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, home+"/navpilot.log", cfg.Logger().LogFile)
	})
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()
	cfg.SetPlannerMaxIterations(3)
	cfg.SetPlannerAssumeComplete(false)
	cfg.SetSessionStore("redis")

	assert.Equal(t, 3, cfg.Planner().MaxIterations)
	assert.False(t, cfg.Planner().AssumeCompleteOnSuccess)
	assert.Equal(t, "redis", cfg.Session().Store)
}
