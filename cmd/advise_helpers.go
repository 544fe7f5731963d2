package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/earlywarn-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/earlywarn-cli/internal/config"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
	Logger       *zap.Logger
}

// normalizeProvider maps provider aliases onto the registered runtimes.
func normalizeProvider(name string) string {
	switch p := strings.ToLower(strings.TrimSpace(name)); p {
	case "", "openrouter", "openai", "anthropic", "google", "gemini", "meta", "llama":
		return ai.ProviderOpenRouter
	case "ollama", "local":
		return ai.ProviderOllama
	default:
		return p
	}
}

// buildRuntime resolves the provider (flag, then config) and builds its
// runtime with the configured timeouts and retry policy.
func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Logger:      opts.Logger,
	}
	provider := opts.ProviderFlag
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			rc.RetryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			rc.BaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			rc.MaxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
		if provider == "" {
			provider = cfg.DefaultProvider
		}
		rc.APIKey = cfg.APIKey
	}
	provider = normalizeProvider(provider)
	if rc.APIKey == "" {
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	if provider == ai.ProviderOllama {
		rc.Host = strings.TrimSpace(opts.OllamaHost)
		if rc.Host == "" && cfg != nil {
			rc.Host = cfg.OllamaHost
		}
		if rc.Host == "" {
			rc.Host = "http://127.0.0.1:11434"
		}
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	rt, err := ai.NewRuntime(provider, rc)
	if err != nil {
		return nil, provider, err
	}
	return rt, provider, nil
}

// explainRuntimeError adds a user-facing hint to the typed runtime errors.
func explainRuntimeError(err error, provider, model string) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		return fmt.Errorf("%w; or use --provider ollama for a local model", err)
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (EARLYWARN_OLLAMA_HOST or config 'ollama_host'): %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set EARLYWARN_API_KEY or api_key in ~/.earlywarn/config.yaml: %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name: %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try a shorter question or lower --max-tokens: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	}
	return fmt.Errorf("advice generation failed: %w", err)
}

type outputOptions struct {
	JSON         bool
	Merchant     string
	Month        string
	Model        string
	PromptTokens int
	OutputPath   string
	Writer       io.Writer
}

type adviceRecord struct {
	Merchant     string `json:"merchant"`
	Month        string `json:"month"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens"`
	Content      string `json:"content"`
}

// writeAdvice prints the answer (unless it was already streamed) and saves it
// to OutputPath when set; a .json path stores the full record.
func writeAdvice(content string, streamed bool, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	rec := adviceRecord{
		Merchant:     opts.Merchant,
		Month:        opts.Month,
		Model:        opts.Model,
		PromptTokens: opts.PromptTokens,
		Content:      content,
	}
	switch {
	case opts.JSON:
		b, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(w, string(b))
	case !streamed:
		fmt.Fprintln(w, "\n=== Consultant ===")
		fmt.Fprintln(w, content)
	}

	if opts.OutputPath == "" {
		return nil
	}
	data := []byte(content)
	if strings.EqualFold(filepath.Ext(opts.OutputPath), ".json") {
		b, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		data = b
	}
	if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.JSON {
		fmt.Fprintf(w, "\n💾 Saved output to %s\n", opts.OutputPath)
	}
	return nil
}
