package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-wattwise/internal/domain"
)

func section(planID string) string {
	return fmt.Sprintf("Plan %s fits your seasonal usage because its fixed rate keeps summer bills predictable.", planID)
}

func TestParseNarrative_WellFormed(t *testing.T) {
	ids := []string{"a", "b", "c"}
	closing := "Overall, switching to any of these plans lowers your annual bill compared with today."
	raw := strings.Join([]string{section("a"), section("b"), section("c"), closing}, "\n---\n")

	out, err := ParseNarrative(raw, ids)
	require.NoError(t, err)
	require.Len(t, out.TopRecommendations, 3)
	for i, id := range ids {
		assert.Equal(t, id, out.TopRecommendations[i].PlanID)
		assert.Equal(t, section(id), out.TopRecommendations[i].Rationale)
	}
	assert.Equal(t, closing, out.Explanation)
	assert.False(t, out.Fallback)
}

func TestParseNarrative_NoClosingUsesAllSections(t *testing.T) {
	raw := section("a") + "\n-----\n" + section("b") + "\n---\n" + section("c")

	out, err := ParseNarrative(raw, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, section("a"), out.TopRecommendations[0].Rationale)
	assert.Equal(t, section("c"), out.Explanation, "extra sections become the explanation")

	out, err = ParseNarrative(raw, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Contains(t, out.Explanation, section("b"))
}

func TestParseNarrative_DropsShortFragments(t *testing.T) {
	raw := "Intro\n---\n" + section("a") + "\n---\nok\n---\n" + section("b") + "\n---\n" + section("c")

	out, err := ParseNarrative(raw, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, section("b"), out.TopRecommendations[1].Rationale)
}

func TestParseNarrative_CharacterFallback(t *testing.T) {
	// No separators at all.
	raw := strings.Repeat("Your usage peaks in July and the fixed rate plans protect you. ", 6)

	out, err := ParseNarrative(raw, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out.TopRecommendations, 3)

	var rebuilt strings.Builder
	for _, r := range out.TopRecommendations {
		assert.NotEmpty(t, r.Rationale)
		rebuilt.WriteString(r.Rationale)
	}
	// Windows cover the text in order; words may be split at the boundaries.
	assert.Equal(t,
		strings.ReplaceAll(strings.TrimSpace(raw), " ", ""),
		strings.ReplaceAll(rebuilt.String(), " ", ""))
}

func TestParseNarrative_Coverage(t *testing.T) {
	long := strings.Repeat("word ", 120)
	texts := map[string]string{
		"no separators":       long,
		"one separator":       long + "\n---\n" + long,
		"excessive sections":  strings.Repeat(section("x")+"\n---\n", 8),
		"separator soup":      strings.Repeat("---\n", 10) + long + strings.Repeat("\n---", 10),
		"fenced":              "```\n" + long + "\n```",
		"short sections only": strings.Repeat("tiny\n---\n", 60),
		"huge":                strings.Repeat("a", 20000),
	}

	for name, text := range texts {
		for n := 1; n <= 3; n++ {
			ids := []string{"p1", "p2", "p3"}[:n]
			t.Run(fmt.Sprintf("%s/%d", name, n), func(t *testing.T) {
				out, err := ParseNarrative(text, ids)
				require.NoError(t, err)
				require.Len(t, out.TopRecommendations, n)
				for i, r := range out.TopRecommendations {
					assert.Equal(t, ids[i], r.PlanID)
					assert.NotEmpty(t, strings.TrimSpace(r.Rationale))
					assert.LessOrEqual(t, utf8.RuneCountInString(r.Rationale), domain.MaxRationaleLength)
				}
				assert.GreaterOrEqual(t, utf8.RuneCountInString(out.Explanation), domain.MinExplanationLength)
				assert.LessOrEqual(t, utf8.RuneCountInString(out.Explanation), domain.MaxExplanationLength)
			})
		}
	}
}

func TestParseNarrative_Rejections(t *testing.T) {
	long := strings.Repeat("word ", 60)

	_, err := ParseNarrative("Too short to explain anything.", []string{"a"})
	var perr *domain.ParseError
	assert.True(t, errors.As(err, &perr))

	_, err = ParseNarrative(strings.Repeat("-", 300), []string{"a"})
	assert.True(t, errors.As(err, &perr), "separators alone are not content")

	var merr *domain.MappingError
	_, err = ParseNarrative(long, nil)
	assert.True(t, errors.As(err, &merr))

	_, err = ParseNarrative(long, []string{"a", "b", "c", "d"})
	assert.True(t, errors.As(err, &merr))

	_, err = ParseNarrative(long, []string{"a", "a"})
	assert.True(t, errors.As(err, &merr))

	_, err = ParseNarrative(long, []string{"a", " "})
	assert.True(t, errors.As(err, &merr))
}
