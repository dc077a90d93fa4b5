package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// cacheKeyPrefix namespaces response entries in shared stores.
const cacheKeyPrefix = "wattwise:llm:"

type cachedLLM struct {
	next CoreLLM
	// store failures degrade to a live call.
	store ports.CacheStore
	ttl   time.Duration
}

// CacheMiddleware serves repeated prompts from store. Entries are keyed by
// the model, the prompt and the request options, and are written only for
// successful responses. A response that later fails to parse is still
// cached; pass the same store to Client.WithResponseCache so callers can
// evict it with Client.Invalidate.
func CacheMiddleware(store ports.CacheStore, ttl time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &cachedLLM{next: next, store: store, ttl: ttl}
	}
}

func (c *cachedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, c.next.GetModel())
	key := CacheKey(options.Model, prompt, opts)

	if cached, ok, err := c.store.Get(ctx, key); err == nil && ok && cached != "" {
		return cached, 0, 0, nil
	}

	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		return "", tokensIn, tokensOut, err
	}
	_ = c.store.Set(ctx, key, response, c.ttl)
	return response, tokensIn, tokensOut, nil
}

// CacheKey derives the cache key for a request. Option order does not
// affect the key.
func CacheKey(model, prompt string, opts map[string]any) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		if k == "model" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(model)
	b.WriteByte(0)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, opts[k])
	}
	b.WriteByte(0)
	b.WriteString(prompt)

	sum := sha256.Sum256([]byte(b.String()))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *cachedLLM) GetModel() string  { return c.next.GetModel() }
func (c *cachedLLM) SetModel(m string) { c.next.SetModel(m) }
