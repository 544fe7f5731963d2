package consult

import (
	"context"
	"errors"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/ai"
	"github.com/KaramelBytes/earlywarn-cli/internal/utils"
)

// Request is one self-contained consultation; no state carries over between
// requests.
type Request struct {
	Profile     *Profile
	Question    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Messages builds the chat messages, trimming the user prompt to fit the
// model's context window after reserving MaxTokens for the reply.
func (r Request) Messages() ([]ai.Message, int) {
	prompt, _ := BuildPrompt(r.Profile, r.Question)
	budget := ai.ContextWindow(r.Model) - r.MaxTokens - utils.CountTokens(SystemPrompt)
	if budget > 0 && utils.CountTokens(prompt) > budget {
		prompt = utils.TruncateToTokenLimit(prompt, budget)
	}
	msgs := []ai.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: prompt},
	}
	return msgs, utils.CountTokens(SystemPrompt) + utils.CountTokens(prompt)
}

// Advise sends the request. When onDelta is set and the runtime streams,
// chunks are forwarded as they arrive; the full answer is returned either way.
func Advise(ctx context.Context, rt ai.Runtime, req Request, onDelta func(string)) (string, error) {
	if req.Profile == nil {
		return "", errors.New("consult request has no profile")
	}
	msgs, _ := req.Messages()
	gen := ai.GenerateRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if sr, ok := rt.(ai.StreamRuntime); ok && onDelta != nil {
		var sb strings.Builder
		err := sr.GenerateStream(ctx, gen, func(d string) {
			sb.WriteString(d)
			onDelta(d)
		})
		return sb.String(), err
	}
	resp, err := rt.Generate(ctx, gen)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
