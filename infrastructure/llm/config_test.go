package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := ParseRequestOptions(nil, "m")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "m", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
		assert.Empty(t, o.Extra)
	})

	t.Run("recognized keys", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":  256,
			"model":       "other",
			"system":      "be brief",
			"temperature": float32(0.5),
			"top_p":       1,
			"json_mode":   true,
		}, "m")
		assert.Equal(t, 256, o.MaxTokens)
		assert.Equal(t, "other", o.Model)
		assert.Equal(t, "be brief", o.System)
		require.NotNil(t, o.Temperature)
		assert.InDelta(t, 0.5, *o.Temperature, 1e-6)
		require.NotNil(t, o.TopP)
		assert.Equal(t, 1.0, *o.TopP)
		assert.Equal(t, map[string]any{"json_mode": true}, o.Extra)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":  -1,
			"model":       "",
			"temperature": 3.5,
			"top_p":       "high",
		}, "m")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "m", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
	})
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "https://api.example.com/v1", want: "https://api.example.com/v1"},
		{in: "http://localhost:8080", want: "http://localhost:8080"},
		{in: "api.example.com", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), ValidateTimeout(-time.Second))
	assert.Equal(t, MinTimeout, ValidateTimeout(time.Millisecond))
	assert.Equal(t, 30*time.Second, ValidateTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, ValidateTimeout(time.Hour))
}
