package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Planner() PlannerConfig
	Session() SessionConfig
	LLM() LLMRouterConfig
	Metrics() MetricsConfig
	Tracing() TracingConfig

	// Planner Setters
	SetPlannerMaxIterations(int)
	SetPlannerAssumeComplete(bool)

	// Session Setters
	SetSessionStore(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	PlannerCfg PlannerConfig   `mapstructure:"planner" yaml:"planner"`
	SessionCfg SessionConfig   `mapstructure:"session" yaml:"session"`
	LLMCfg     LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	MetricsCfg MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	TracingCfg TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// -- Getters --

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Planner() PlannerConfig { return c.PlannerCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }
func (c *Config) LLM() LLMRouterConfig   { return c.LLMCfg }
func (c *Config) Metrics() MetricsConfig { return c.MetricsCfg }
func (c *Config) Tracing() TracingConfig { return c.TracingCfg }

// -- Setters --

func (c *Config) SetPlannerMaxIterations(n int)   { c.PlannerCfg.MaxIterations = n }
func (c *Config) SetPlannerAssumeComplete(b bool) { c.PlannerCfg.AssumeCompleteOnSuccess = b }
func (c *Config) SetSessionStore(s string)        { c.SessionCfg.Store = s }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PlannerConfig tunes the planning loop.
type PlannerConfig struct {
	MaxIterations int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	ModelTimeout  time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	// TopCandidates is how many ranked elements are shown to the model.
	TopCandidates int `mapstructure:"top_candidates" yaml:"top_candidates"`
	// AssumeCompleteOnSuccess declares completion when the model returns no
	// decision but the previous action succeeded. It can mask real stalls.
	AssumeCompleteOnSuccess bool          `mapstructure:"assume_complete_on_success" yaml:"assume_complete_on_success"`
	DefaultConfidence       float64       `mapstructure:"default_confidence" yaml:"default_confidence"`
	RankCacheTTL            time.Duration `mapstructure:"rank_cache_ttl" yaml:"rank_cache_ttl"`
	// Rules replaces the built-in prompt rules when non-empty.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules"`
}

// RuleConfig is one declarative prompt rule. When is an expression over the
// planning state; an empty When always applies.
type RuleConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Text string `mapstructure:"text" yaml:"text"`
	When string `mapstructure:"when" yaml:"when"`
}

// SessionConfig selects and configures the session store.
type SessionConfig struct {
	Store          string         `mapstructure:"store" yaml:"store"`
	MaxAge         time.Duration  `mapstructure:"max_age" yaml:"max_age"`
	ExpirySchedule string         `mapstructure:"expiry_schedule" yaml:"expiry_schedule"`
	Redis          RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Postgres       PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// RedisConfig holds the Redis connection details for the session store.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	PoolSize int           `mapstructure:"pool_size" yaml:"pool_size"`
}

// PostgresConfig holds the database connection details for the session store.
type PostgresConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Migrate bool   `mapstructure:"migrate" yaml:"migrate"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// APIKey is used by any model that does not set its own key.
	APIKey    string          `mapstructure:"api_key" yaml:"-"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RateLimitConfig bounds the request rate toward the model provider.
// A non-positive RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen    string `mapstructure:"listen" yaml:"listen"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	// Exporter is one of none, stdout or otlp.
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "navpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Planner --
	v.SetDefault("planner.max_iterations", 20)
	v.SetDefault("planner.model_timeout", "60s")
	v.SetDefault("planner.top_candidates", 30)
	v.SetDefault("planner.assume_complete_on_success", true)
	v.SetDefault("planner.default_confidence", 0.75)
	v.SetDefault("planner.rank_cache_ttl", "5m")

	// -- Session --
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.max_age", "24h")
	v.SetDefault("session.expiry_schedule", "@every 1h")
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.prefix", "navpilot:session:")
	v.SetDefault("session.redis.pool_size", 10)
	v.SetDefault("session.postgres.migrate", true)

	// -- LLM --
	// Model keys are viper path segments and must not contain dots.
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "pro")
	v.SetDefault("llm.models", map[string]any{
		"flash": map[string]any{"provider": "gemini", "model": "gemini-2.5-flash", "api_timeout": "60s", "temperature": 0.2},
		"pro":   map[string]any{"provider": "gemini", "model": "gemini-2.5-pro", "api_timeout": "90s", "temperature": 0.2},
	})
	v.SetDefault("llm.rate_limit.requests_per_second", 2.0)
	v.SetDefault("llm.rate_limit.burst", 4)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")
	v.SetDefault("metrics.namespace", "navpilot")

	// -- Tracing --
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("llm.api_key", "NAVPILOT_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("session.redis.password", "NAVPILOT_REDIS_PASSWORD")
	_ = v.BindEnv("session.postgres.url", "NAVPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PlannerCfg.Validate(); err != nil {
		return fmt.Errorf("planner configuration invalid: %w", err)
	}
	if err := c.SessionCfg.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	switch c.TracingCfg.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be one of none, stdout, otlp; got %q", c.TracingCfg.Exporter)
	}
	return nil
}

// Validate checks the planner settings.
func (p *PlannerConfig) Validate() error {
	if p.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if p.ModelTimeout <= 0 {
		return fmt.Errorf("model_timeout must be a positive duration")
	}
	if p.TopCandidates <= 0 {
		return fmt.Errorf("top_candidates must be a positive integer")
	}
	if p.DefaultConfidence < 0.0 || p.DefaultConfidence > 1.0 {
		return fmt.Errorf("default_confidence must be between 0.0 and 1.0")
	}
	for i, r := range p.Rules {
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("rules[%d] has no text", i)
		}
	}
	return nil
}

// Validate checks the session store settings.
func (s *SessionConfig) Validate() error {
	switch s.Store {
	case "memory":
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis store")
		}
	case "postgres":
		if s.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres store. Ensure NAVPILOT_DATABASE_URL is set")
		}
	default:
		return fmt.Errorf("store must be one of memory, redis, postgres; got %q", s.Store)
	}
	if s.MaxAge <= 0 {
		return fmt.Errorf("max_age must be a positive duration")
	}
	return nil
}

// Validate checks that both tiers resolve to a configured model.
func (l *LLMRouterConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		m, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model %q is not defined under llm.models", name)
		}
		switch m.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", name, m.Provider)
		}
	}
	if l.RateLimit.RequestsPerSecond > 0 && l.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate limiting is enabled")
	}
	return nil
}
