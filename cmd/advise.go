package cmd

import (
	"context"
	"crypto/sha1"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/earlywarn-cli/internal/consult"
	"github.com/KaramelBytes/earlywarn-cli/internal/export"
	"github.com/KaramelBytes/earlywarn-cli/internal/run"
	"github.com/KaramelBytes/earlywarn-cli/internal/tableio"
)

var (
	advRunDir     string
	advMerchant   string
	advMonth      string
	advQuestion   string
	advProvider   string
	advModel      string
	advMaxTokens  int
	advTemp       float64
	advStream     bool
	advDryRun     bool
	advJSON       bool
	advOutputPath string
	advOllamaHost string
	advTimeoutSec int
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Ask the LLM consultant for a marketing plan for one merchant",
	Example: `  earlywarn advise --run out --merchant 000F03E44A --dry-run
  earlywarn advise --run out --merchant 000F03E44A --month 202412 --stream
  earlywarn advise --run out --merchant 000F03E44A --provider ollama --model llama3.1:8b`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if advMerchant == "" {
			return fmt.Errorf("--merchant is required")
		}
		root, err := run.FindRoot(advRunDir)
		if err != nil {
			return fmt.Errorf("locate run (%s): %w", advRunDir, err)
		}
		m, err := run.Load(root)
		if err != nil {
			return err
		}
		panelPath, ok := m.Artifact(export.PanelCSV)
		if !ok {
			return fmt.Errorf("run %s has no %s", m.ID, export.PanelCSV)
		}
		t, err := tableio.ReadCSV(panelPath, ',')
		if err != nil {
			return err
		}
		row, err := consult.FindRow(t, advMerchant, advMonth)
		if err != nil {
			return err
		}
		profile, err := consult.ProfileFromRow(t, row)
		if err != nil {
			return err
		}

		model, maxTokens, temp := advModel, advMaxTokens, advTemp
		if cfg != nil {
			if model == "" {
				model = cfg.DefaultModel
			}
			if maxTokens <= 0 {
				maxTokens = cfg.MaxTokens
			}
			if !cmd.Flags().Changed("temp") && cfg.Temperature > 0 {
				temp = cfg.Temperature
			}
		}
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
		if maxTokens <= 0 {
			maxTokens = 2048
		}
		req := consult.Request{
			Profile:     profile,
			Question:    advQuestion,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temp,
		}
		msgs, tokens := req.Messages()
		log.Debug("consult prompt",
			zap.String("run", m.ID),
			zap.String("merchant", profile.MerchantID),
			zap.String("month", profile.Month),
			zap.Int("prompt_tokens", tokens))

		out := cmd.OutOrStdout()
		if advDryRun {
			sum := sha1.Sum([]byte(msgs[len(msgs)-1].Content))
			fmt.Fprintln(out, "--dry-run: no API call will be made. Prompt preview below --")
			fmt.Fprintf(out, "Request ID (dry-run): sim_%x\n", sum[:6])
			fmt.Fprintf(out, "Tokens: ≈%d (model %s, max-tokens %d)\n\n", tokens, model, maxTokens)
			for _, msg := range msgs {
				fmt.Fprintf(out, "[%s]\n%s\n\n", msg.Role, msg.Content)
			}
			return nil
		}

		rt, provider, err := buildRuntime(cfg, runtimeOptions{
			ProviderFlag: advProvider,
			OllamaHost:   advOllamaHost,
			Logger:       log,
		})
		if err != nil {
			return err
		}
		timeout := time.Duration(advTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if !advJSON {
			fmt.Fprintf(out, "⚙ Consulting %s via %s (prompt tokens≈%d) ...\n", model, provider, tokens)
		}
		var onDelta func(string)
		if advStream && !advJSON {
			onDelta = func(d string) { fmt.Fprint(out, d) }
		}
		start := time.Now()
		content, err := consult.Advise(ctx, rt, req, onDelta)
		if err != nil {
			return explainRuntimeError(err, provider, model)
		}
		log.Info("advice generated",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Int("chars", len(content)),
			zap.Duration("elapsed", time.Since(start)))
		if onDelta != nil {
			fmt.Fprintln(out)
		}
		return writeAdvice(content, onDelta != nil, outputOptions{
			JSON:         advJSON,
			Merchant:     profile.MerchantID,
			Month:        profile.Month,
			Model:        model,
			PromptTokens: tokens,
			OutputPath:   advOutputPath,
			Writer:       out,
		})
	},
}

func init() {
	rootCmd.AddCommand(adviseCmd)
	f := adviseCmd.Flags()
	f.StringVar(&advRunDir, "run", "", "run output directory (or any path inside it); default: current directory")
	f.StringVar(&advMerchant, "merchant", "", "merchant id (ENCODED_MCT)")
	f.StringVar(&advMonth, "month", "", "month YYYYMM (default: the merchant's latest month)")
	f.StringVar(&advQuestion, "question", "", "question for the consultant")
	f.StringVar(&advProvider, "provider", "", "runtime: openrouter|ollama (default from config)")
	f.StringVar(&advModel, "model", "", "model name (default from config)")
	f.IntVar(&advMaxTokens, "max-tokens", 0, "max tokens for the answer (default from config)")
	f.Float64Var(&advTemp, "temp", 0.7, "sampling temperature")
	f.BoolVar(&advStream, "stream", false, "stream the answer if the runtime supports it")
	f.BoolVar(&advDryRun, "dry-run", false, "print the prompt without calling the runtime")
	f.BoolVar(&advJSON, "json", false, "emit the answer as JSON")
	f.StringVar(&advOutputPath, "output", "", "optional path to save the answer (.json saves the full record)")
	f.StringVar(&advOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	f.IntVar(&advTimeoutSec, "timeout-sec", 180, "request timeout in seconds")
}
