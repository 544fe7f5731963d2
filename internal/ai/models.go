package ai

import "strings"

// DefaultContextTokens is assumed for models missing from the table.
const DefaultContextTokens = 8192

// contextWindows are approximate context sizes used to budget prompts.
var contextWindows = map[string]int{
	"openai/gpt-4o":               128000,
	"openai/gpt-4o-mini":          128000,
	"openai/gpt-4.1-mini":         128000,
	"anthropic/claude-3.5-sonnet": 200000,
	"google/gemini-2.5-flash":     1000000,
	"deepseek/deepseek-r1:free":   128000,
	"llama3":                      8192,
	"llama3.1":                    128000,
	"qwen2.5":                     32768,
}

// ContextWindow returns the approximate context size of model in tokens. Tags
// after ':' are ignored for local models, so "llama3.1:8b" matches "llama3.1".
func ContextWindow(model string) int {
	if n, ok := contextWindows[model]; ok {
		return n
	}
	if base, _, ok := strings.Cut(model, ":"); ok {
		if n, ok := contextWindows[base]; ok {
			return n
		}
	}
	return DefaultContextTokens
}
