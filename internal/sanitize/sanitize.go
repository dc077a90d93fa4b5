// Package sanitize cleans untrusted model output before it is parsed.
//
// Nothing in this package returns an error: every function degrades to a
// zero value or an "ok=false" result so that parsers decide how strict to be.
package sanitize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// Text trims whitespace, removes a surrounding markdown code fence, unwraps
// whole-string quoting and drops control characters other than newlines and
// tabs.
func Text(s string) string {
	s = strings.TrimSpace(s)
	s = stripFence(s)
	s = unquote(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// stripFence removes one leading ``` line (with optional language tag) and
// the matching trailing fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, fence) {
		return s
	}
	body := s[len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyz")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	switch {
	case first == '"' && last == '"':
		var decoded string
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return strings.TrimSpace(decoded)
		}
		return strings.TrimSpace(s[1 : len(s)-1])
	case first == '\'' && last == '\'':
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// JSON returns the first balanced JSON object or array found in s after
// Text cleanup, or "" when there is none. Braces inside string literals are
// ignored.
func JSON(s string) string {
	s = Text(s)

	// Prefer a fenced block embedded in surrounding prose.
	if i := strings.Index(s, fence); i != -1 {
		if inner := stripFence(s[i:]); inner != "" {
			if end := strings.Index(inner, fence); end != -1 {
				inner = inner[:end]
			}
			if found := balanced(inner); found != "" {
				return found
			}
		}
	}
	return balanced(s)
}

func balanced(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return ""
			}
			open := stack[len(stack)-1]
			if (open == '{' && c != '}') || (open == '[' && c != ']') {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var numberNoise = strings.NewReplacer("$", "", ",", "", "%", "", "kwh", "", "usd", "", " ", "")

// Number coerces a decoded JSON value into a finite float64. Strings may
// carry currency, thousands separators, percent signs and kWh units.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		cleaned := numberNoise.Replace(strings.ToLower(strings.TrimSpace(n)))
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int is Number rounded to the nearest integer.
func Int(v any) (int, bool) {
	f, ok := Number(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// String trims a decoded value and truncates it to at most maxRunes runes.
// Non-string values yield "". maxRunes <= 0 disables truncation.
func String(v any, maxRunes int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Truncate(Text(s), maxRunes)
}

// Truncate shortens s to maxRunes runes without splitting a UTF-8 sequence.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxRunes]))
}

// StringSlice keeps the non-empty string elements of a decoded JSON array.
func StringSlice(v any, maxRunes int) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := String(item, maxRunes); s != "" {
			out = append(out, s)
		}
	}
	return out
}
