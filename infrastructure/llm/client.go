// Package llm adapts hosted language models to ports.LLMClient, the
// inference backend the recommendation pipeline calls for each stage.
//
// Providers (OpenAI, Anthropic, Google) implement the small CoreLLM interface
// and are composed with middleware for the operational concerns around an
// unreliable remote call: timeouts, rate limiting, circuit breaking, response
// caching, metrics and tracing.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware(tracer),
//	        llm.MetricsMiddleware(collector),
//	        llm.CacheMiddleware(store, time.Hour),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.RateLimitMiddleware(5, 10),
//	        llm.TimeoutMiddleware(30*time.Second),
//	    },
//	})
//	text, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.2})
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// CoreLLM is the minimal interface a provider implements. Middleware wraps
// a CoreLLM and returns another, so every concern composes the same way.
type CoreLLM interface {
	// DoRequest sends prompt to the model and returns the response text with
	// input and output token counts.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model used for subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is sent.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model is the provider model name. Providers fall back to their own
	// default when empty.
	Model string

	// BaseURL overrides the provider endpoint. Empty uses the default.
	BaseURL string

	// Timeout bounds the provider's HTTP client. Zero means no bound at
	// the transport; use TimeoutMiddleware for per-call deadlines.
	Timeout time.Duration

	// TokenEstimator overrides the character-based default.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
	// cache is the store behind CacheMiddleware, if any.
	cache ports.CacheStore
}

var (
	_ ports.LLMClient           = (*Client)(nil)
	_ ports.ResponseInvalidator = (*Client)(nil)
)

// NewClient builds a client for the named provider.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", providerType, RegisteredProviders())
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}
	return NewClientFromCore(core, config.TokenEstimator, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM, applying middleware in
// reverse so the first middleware is the outermost.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete sends prompt to the model and returns the response text. Failures
// are reported as *ports.LLMError so callers can ask whether to retry.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete plus the token counts reported by the
// provider.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	response, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		var llmErr *ports.LLMError
		if errors.As(err, &llmErr) {
			return "", 0, 0, err
		}
		return "", 0, 0, ports.NewLLMError(c.core.GetModel(), "complete", err)
	}
	return response, tokensIn, tokensOut, nil
}

// WithResponseCache records the store used by CacheMiddleware so Invalidate
// can evict replies the caller rejected. It returns c.
func (c *Client) WithResponseCache(store ports.CacheStore) *Client {
	c.cache = store
	return c
}

// Invalidate removes the cached response for prompt and options. It is a
// no-op when no response cache is configured.
func (c *Client) Invalidate(ctx context.Context, prompt string, options map[string]any) error {
	if c.cache == nil {
		return nil
	}
	key := CacheKey(ParseRequestOptions(options, c.core.GetModel()).Model, prompt, options)
	if err := c.cache.Delete(ctx, key); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// EstimateTokens returns an approximate token count for text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the provider's model name.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes about four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens rounds len(text)/4 up.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a provider from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
// Registering an existing name replaces it.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

// RegisteredProviders lists registered provider names in sorted order.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}
