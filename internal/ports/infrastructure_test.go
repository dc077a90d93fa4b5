package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLLMClient implements LLMClient.
type mockLLMClient struct{ model string }

func (m *mockLLMClient) Complete(context.Context, string, map[string]any) (string, error) {
	return "mock response", nil
}

func (m *mockLLMClient) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }

func (m *mockLLMClient) GetModel() string { return m.model }

// mapCacheStore implements CacheStore.
type mapCacheStore struct{ data map[string]string }

func (m *mapCacheStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCacheStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapCacheStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestInterfacesAreImplementable(t *testing.T) {
	ctx := context.Background()

	var client LLMClient = &mockLLMClient{model: "test-model"}
	out, err := client.Complete(ctx, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "mock response", out)
	assert.Equal(t, "test-model", client.GetModel())

	var cache CacheStore = &mapCacheStore{data: map[string]string{}}
	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	v, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	require.NoError(t, cache.Delete(ctx, "k"))
	require.NoError(t, cache.Delete(ctx, "missing"))
	_, ok, _ = cache.Get(ctx, "k")
	assert.False(t, ok)

	var metrics MetricsCollector = NopMetrics{}
	assert.NotPanics(t, func() {
		metrics.RecordLatency("op", time.Second, nil)
		metrics.RecordCounter("c", 1, map[string]string{"stage": "narrative"})
		metrics.RecordGauge("g", 1, nil)
		metrics.RecordHistogram("h", 1, nil)
	})
}
