// Package parser turns raw model text into validated stage outputs.
//
// Each parser sanitizes the text, decodes it, checks the result against its
// structural contract and, for plan scoring, reconciles every entry with the
// catalog so that a plan the catalog does not contain can never reach the
// output.
package parser

import (
	"bytes"
	"encoding/json"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/sanitize"
)

// decodeJSON extracts and decodes the JSON value embedded in raw model text.
// Numbers are kept as json.Number so sanitize.Number sees the model's digits.
func decodeJSON(stage domain.Stage, raw string) (any, error) {
	body := sanitize.JSON(raw)
	if body == "" {
		return nil, domain.NewParseError(stage, "no JSON object or array in response", raw, nil)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.NewParseError(stage, "malformed JSON", raw, err)
	}
	return v, nil
}

// decodeEntries accepts either a bare array or an object wrapping the array
// under key.
func decodeEntries(stage domain.Stage, raw, key string) ([]map[string]any, error) {
	v, err := decodeJSON(stage, raw)
	if err != nil {
		return nil, err
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		inner, ok := t[key].([]any)
		if !ok {
			return nil, domain.NewParseError(stage, "object has no "+key+" array", raw, nil)
		}
		items = inner
	default:
		return nil, domain.NewParseError(stage, "unexpected JSON value", raw, nil)
	}

	entries := make([]map[string]any, 0, len(items))
	for _, item := range items {
		// Non-object items become empty entries so they count as invalid.
		m, _ := item.(map[string]any)
		entries = append(entries, m)
	}
	return entries, nil
}
