package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/earlywarn-cli/internal/config"
	"github.com/KaramelBytes/earlywarn-cli/internal/logging"
	"github.com/KaramelBytes/earlywarn-cli/internal/modelprep"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set earlywarn configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "delimiter: %q\n", cfg.Delimiter)
		fmt.Fprintf(out, "method: %s\n", cfg.Method)
		fmt.Fprintf(out, "kpi_candidates: %s\n", strings.Join(cfg.KPICandidates, ","))
		fmt.Fprintf(out, "drop_horizons: %s\n", joinInts(cfg.DropHorizons))
		fmt.Fprintf(out, "drop_threshold: %.3f\n", cfg.DropThreshold)
		fmt.Fprintf(out, "close_horizon: %d\n", cfg.CloseHorizon)
		fmt.Fprintf(out, "windows: %s\n", joinInts(cfg.Windows))
		fmt.Fprintf(out, "test_months: %d\n", cfg.TestMonths)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "log_json: %t\n", cfg.LogJSON)
		fmt.Fprintf(out, "api_key: %s\n", mask(cfg.APIKey))
		fmt.Fprintf(out, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(out, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "delimiter":
		if _, err := parseDelimiter(val); err != nil {
			return err
		}
		c.Delimiter = val
	case "method":
		m, err := modelprep.ParseMethod(val)
		if err != nil {
			return err
		}
		c.Method = string(m)
	case "kpi_candidates":
		var cols []string
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cols = append(cols, s)
			}
		}
		if len(cols) == 0 {
			return fmt.Errorf("kpi_candidates needs at least one column")
		}
		c.KPICandidates = cols
	case "drop_horizons", "windows":
		ints, err := parsePositiveInts(val)
		if err != nil {
			return fmt.Errorf("invalid list for %s: %w", key, err)
		}
		if key == "windows" {
			c.Windows = ints
		} else {
			c.DropHorizons = ints
		}
	case "drop_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for drop_threshold: %w", err)
		}
		c.DropThreshold = f
	case "close_horizon", "test_months", "max_tokens", "http_timeout_sec", "retry_max_attempts":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		switch key {
		case "close_horizon":
			c.CloseHorizon = i
		case "test_months":
			c.TestMonths = i
		case "max_tokens":
			c.MaxTokens = i
		case "http_timeout_sec":
			c.HTTPTimeoutSec = i
		case "retry_max_attempts":
			c.RetryMaxAttempts = i
		}
	case "log_level":
		if _, err := logging.ParseLevel(val); err != nil {
			return err
		}
		c.LogLevel = strings.ToLower(val)
	case "log_json":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for log_json: %w", err)
		}
		c.LogJSON = b
	case "api_key":
		c.APIKey = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p := normalizeProvider(val)
		if p != "openrouter" && p != "ollama" {
			return fmt.Errorf("invalid default_provider: %s (use openrouter or ollama)", val)
		}
		c.DefaultProvider = p
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for temperature: %w", err)
		}
		c.Temperature = f
	case "ollama_host":
		c.OllamaHost = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

func parsePositiveInts(val string) ([]int, error) {
	var out []int
	for _, s := range strings.Split(val, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, fmt.Errorf("%d is not positive", n)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}
