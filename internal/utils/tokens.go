package utils

import "unicode"

// Token estimation for prompt budgeting. Latin text averages about four
// characters per token; Hangul syllables tokenize close to one token each.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	hangul, other := 0, 0
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		} else {
			other++
		}
	}
	tokens := hangul + other/4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text so that CountTokens of the result stays
// within limit.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if CountTokens(text) <= limit {
		return text
	}
	runes := []rune(text)
	hangul, other := 0, 0
	for i, r := range runes {
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		} else {
			other++
		}
		if hangul+other/4 > limit {
			return string(runes[:i])
		}
	}
	return text
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
