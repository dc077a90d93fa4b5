package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/ports"
)

func newOpenAITestServer(t *testing.T, status int, body any, inspect func(req map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openAICompletion(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func TestOpenAIProvider_DoRequest(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, openAICompletion(`{"usagePattern":"seasonal"}`, 42, 7), func(req map[string]any) {
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.InDelta(t, 0.2, req["temperature"], 1e-6)
		assert.Equal(t, float64(512), req["max_tokens"])

		messages := req["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "summarize", messages[1].(map[string]any)["content"])

		format := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])
	})

	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	text, in, out, err := p.DoRequest(context.Background(), "summarize", map[string]any{
		"temperature": 0.2,
		"max_tokens":  512,
		"system":      "You are an energy analyst.",
		"json_mode":   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"usagePattern":"seasonal"}`, text)
	assert.Equal(t, 42, in)
	assert.Equal(t, 7, out)
}

func TestOpenAIProvider_TokenFallback(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, openAICompletion("12345678", 0, 0), nil)
	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, in, out, err := p.DoRequest(context.Background(), "abcd", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, in)
	assert.Equal(t, 2, out)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantType  ErrorType
		sentinel  error
		retryable bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit_error"}},
			wantType:  ErrorTypeRateLimit,
			sentinel:  ports.ErrRateLimited,
			retryable: true,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      map[string]any{"error": map[string]any{"message": "oops", "type": "server_error"}},
			wantType:  ErrorTypeServerError,
			sentinel:  ports.ErrServiceUnavailable,
			retryable: true,
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     map[string]any{"error": map[string]any{"message": "bad key", "type": "invalid_request_error"}},
			wantType: ErrorTypeAuthentication,
			sentinel: ports.ErrAuthenticationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, tt.body, nil)
			p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
			require.NoError(t, err)

			_, _, _, err = p.DoRequest(context.Background(), "p", nil)
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.retryable, perr.IsRetryable())
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	body := openAICompletion("x", 1, 1)
	body["choices"] = []any{}
	srv := newOpenAITestServer(t, http.StatusOK, body, nil)
	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, _, err = p.DoRequest(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIProvider_Canceled(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, openAICompletion("x", 1, 1), nil)
	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = p.DoRequest(ctx, "p", nil)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTypeCanceled, perr.Type)
	assert.False(t, perr.IsRetryable())
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := newOpenAIProvider(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	p, err := newOpenAIProvider(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, OpenAIDefaultModel, p.GetModel())
	p.SetModel("gpt-4o")
	assert.Equal(t, "gpt-4o", p.GetModel())
}
