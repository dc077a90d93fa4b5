// Package application wires configuration, infrastructure and the
// recommendation pipeline together.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/parser"
	"github.com/ahrav/go-wattwise/internal/pipeline"
	"github.com/ahrav/go-wattwise/internal/retry"
)

// Config is the complete runtime configuration, usually loaded from YAML.
type Config struct {
	// LLM selects and configures the inference backend.
	LLM LLMConfig `yaml:"llm" validate:"required"`
	// Resilience configures the middleware that protects the backend.
	Resilience ResilienceConfig `yaml:"resilience"`
	// Retry bounds the attempts made for each inference call.
	Retry RetryConfig `yaml:"retry"`
	// Scoring tunes anti-hallucination thresholds for plan scoring.
	Scoring ScoringConfig `yaml:"scoring"`
	// Narrative selects how the explanation stage is generated.
	Narrative NarrativeConfig `yaml:"narrative"`
	// Cache configures the inference response cache.
	Cache CacheConfig `yaml:"cache"`
	// Catalog locates the plan catalog.
	Catalog CatalogConfig `yaml:"catalog"`
}

// LLMConfig selects the inference provider and its request defaults.
type LLMConfig struct {
	// Provider is the registered backend name.
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic google"`
	// Model overrides the provider's default model.
	Model string `yaml:"model" validate:"omitempty,max=200,modelname"`
	// APIKeyEnv names the environment variable holding the API key. When
	// empty the provider's conventional variable is used.
	APIKeyEnv string `yaml:"api_key_env" validate:"omitempty,max=100"`
	// APIKey is resolved from the environment and never read from YAML.
	APIKey string `yaml:"-"`
	// BaseURL points the provider at a proxy or compatible endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// TimeoutSeconds bounds a single inference request.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`
	// Temperature, when set, overrides every stage's sampling temperature.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`
	// MaxTokens, when set, overrides every stage's output token limit.
	MaxTokens int `yaml:"max_tokens" validate:"omitempty,min=1,max=100000"`
}

// ResilienceConfig configures rate limiting and circuit breaking on the
// inference client. Zero values disable the corresponding middleware.
type ResilienceConfig struct {
	RequestsPerSecond      float64 `yaml:"requests_per_second" validate:"min=0,max=1000"`
	Burst                  int     `yaml:"burst" validate:"min=0,max=1000"`
	BreakerFailures        int     `yaml:"breaker_failures" validate:"min=0,max=100"`
	BreakerCooldownSeconds int     `yaml:"breaker_cooldown_seconds" validate:"min=0,max=3600"`
}

// RetryConfig bounds inference attempts.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=10"`
	// BackoffType selects how the wait grows between attempts.
	BackoffType string `yaml:"backoff_type" validate:"oneof=constant linear"`
	// InitialWait is the base wait in milliseconds.
	InitialWait int `yaml:"initial_wait_ms" validate:"min=0,max=60000"`
}

// ScoringConfig tunes how scoring responses are accepted.
type ScoringConfig struct {
	InvalidIndexThreshold float64 `yaml:"invalid_index_threshold" validate:"min=0,lte=1"`
	MinPlansWarning       int     `yaml:"min_plans_warning" validate:"min=0,max=20"`
	MaxPromptPlans        int     `yaml:"max_prompt_plans" validate:"min=1,max=20"`
}

// NarrativeConfig selects combined or per-plan narrative generation.
type NarrativeConfig struct {
	Parallel    bool `yaml:"parallel"`
	Concurrency int  `yaml:"concurrency" validate:"min=1,max=3"`
}

// CacheConfig configures the inference response cache.
type CacheConfig struct {
	// Backend is none, memory or redis.
	Backend    string `yaml:"backend" validate:"oneof=none memory redis"`
	TTLSeconds int    `yaml:"ttl_seconds" validate:"min=0"`
	// MaxEntries bounds the memory backend.
	MaxEntries int    `yaml:"max_entries" validate:"min=0"`
	RedisAddr  string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	// RedisPasswordEnv names the environment variable holding the password.
	RedisPasswordEnv string `yaml:"redis_password_env"`
	RedisPassword    string `yaml:"-"`
	RedisDB          int    `yaml:"redis_db" validate:"min=0,max=15"`
}

// CatalogConfig locates the plan catalog file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Conventional API key variables per provider.
var defaultAPIKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// DefaultConfig returns a configuration that runs against OpenAI with two
// attempts per call, no cache and the combined narrative.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:       "openai",
			TimeoutSeconds: 60,
		},
		Resilience: ResilienceConfig{
			RequestsPerSecond:      5,
			Burst:                  5,
			BreakerFailures:        5,
			BreakerCooldownSeconds: 30,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BackoffType: "linear",
			InitialWait: int(retry.DefaultBackoff / time.Millisecond),
		},
		Scoring: ScoringConfig{
			InvalidIndexThreshold: parser.DefaultInvalidIndexThreshold,
			MinPlansWarning:       parser.DefaultMinPlansWarning,
			MaxPromptPlans:        domain.MaxScoredPlans,
		},
		Narrative: NarrativeConfig{
			Concurrency: pipeline.MaxNarrativeConcurrency,
		},
		Cache: CacheConfig{
			Backend:    "none",
			TTLSeconds: 3600,
		},
	}
}

// LoadConfig reads YAML from path over DefaultConfig, resolves secrets from
// the environment and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig reads YAML from r; see LoadConfig. Unknown keys are rejected.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	cfg.ResolveSecrets(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveSecrets fills API credentials from the environment via getenv.
func (c *Config) ResolveSecrets(getenv func(string) string) {
	env := c.LLM.APIKeyEnv
	if env == "" {
		env = defaultAPIKeyEnv[c.LLM.Provider]
	}
	if env != "" {
		if key := strings.TrimSpace(getenv(env)); key != "" {
			c.LLM.APIKey = key
		}
	}
	if c.Cache.RedisPasswordEnv != "" {
		c.Cache.RedisPassword = getenv(c.Cache.RedisPasswordEnv)
	}
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("modelname", validateModelName); err != nil {
		panic(fmt.Sprintf("failed to register modelname validator: %v", err))
	}
	return v
}

// validateModelName accepts provider model identifiers such as
// "gpt-4o-mini", "claude-sonnet-4-20250514" or "models/gemini-2.5-flash".
func validateModelName(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	if strings.HasPrefix(model, "/") || strings.HasSuffix(model, "/") {
		return false
	}
	for _, ch := range model {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case strings.ContainsRune("-_.:/@", ch):
		default:
			return false
		}
	}
	return true
}

// Validate checks every field rule and reports all violations at once.
func (c Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	verr := domain.NewValidationError("Config")
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			verr.AddFieldError(path, fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()))
		} else {
			verr.AddFieldError(path, "failed "+fe.Tag())
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, verr)
}

// PipelineConfig translates the file configuration into pipeline settings.
func (c Config) PipelineConfig() pipeline.Config {
	wait := time.Duration(c.Retry.InitialWait) * time.Millisecond
	backoff := retry.Linear(wait)
	if c.Retry.BackoffType == "constant" {
		backoff = retry.Constant(wait)
	}

	opts := make(map[string]any)
	if c.LLM.Temperature != nil {
		opts["temperature"] = *c.LLM.Temperature
	}
	if c.LLM.MaxTokens > 0 {
		opts["max_tokens"] = c.LLM.MaxTokens
	}

	threshold, minPlans := c.Scoring.InvalidIndexThreshold, c.Scoring.MinPlansWarning
	return pipeline.Config{
		MaxAttempts:           c.Retry.MaxAttempts,
		Backoff:               backoff,
		InvalidIndexThreshold: &threshold,
		MinPlansWarning:       &minPlans,
		MaxPromptPlans:        c.Scoring.MaxPromptPlans,
		ParallelNarrative:     c.Narrative.Parallel,
		NarrativeConcurrency:  c.Narrative.Concurrency,
		CompletionOptions:     opts,
	}
}
