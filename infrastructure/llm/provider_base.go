package llm

import "sync"

// BaseProvider holds the model name shared by every provider.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model. It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model. It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// tokenCount prefers the provider-reported count and estimates otherwise.
func tokenCount(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return SimpleTokenEstimator{}.EstimateTokens(text)
}
