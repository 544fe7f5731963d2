package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/earlywarn-cli/internal/export"
	"github.com/KaramelBytes/earlywarn-cli/internal/run"
)

// resetFlags returns every flag of c and its subcommands to its default so
// values and Changed state do not leak between invocations. Slice flags
// append once set, so the run command gets a freshly bound flag set.
func resetFlags(c *cobra.Command) {
	if c == runPipelineCmd {
		c.ResetFlags()
		addRunFlags(c)
	}
	reset := func(f *pflag.Flag) {
		if _, ok := f.Value.(pflag.SliceValue); !ok {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	loadConfig()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// isolatedHome points HOME at a temp dir and writes a two-merchant extract
// set over 202401..202406 into it.
func isolatedHome(t *testing.T) (home, info, kpi, cust string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("EARLYWARN_API_KEY", "")
	info = writeLines(t, home, "info.csv",
		"ENCODED_MCT,MCT_NM,MCT_BRD_NUM,HPSN_MCT_ZCD_NM,MCT_SIGUNGU_NM,HPSN_MCT_BZN_CD_NM,ARE_D,MCT_ME_D",
		"A,성수 골목집,,백반/가정식,성동구,성수,20240101,",
		"B,메가커피 성수점,M01,커피전문점,성동구,성수,20200601,20240515",
	)
	kpiRows := []string{"ENCODED_MCT,TA_YM,KPI_VALUE"}
	custRows := []string{"ENCODED_MCT,TA_YM,MCT_UE_CLN_REU_RAT,MCT_UE_CLN_NEW_RAT"}
	avals := []string{"100", "95", "90", "80", "70", "50"}
	for i, ym := range []string{"202401", "202402", "202403", "202404", "202405", "202406"} {
		kpiRows = append(kpiRows, "A,"+ym+","+avals[i], "B,"+ym+",100")
		custRows = append(custRows, "A,"+ym+",30,10", "B,"+ym+",5,40")
	}
	kpi = writeLines(t, home, "kpi.csv", kpiRows...)
	cust = writeLines(t, home, "cust.csv", custRows...)
	return home, info, kpi, cust
}

func TestCLI_Run_Inspect_AdviseDryRun(t *testing.T) {
	home, info, kpi, cust := isolatedHome(t)
	outDir := filepath.Join(home, "out")

	out := mustExecute(t, "run", "--info", info, "--kpi", kpi, "--cust", cust, "--outdir", outDir,
		"--kpi-candidates", "KPI_VALUE", "--drop-horizons", "1", "--method", "classify", "--test-months", "1", "--xlsx")
	if !strings.Contains(out, "12 rows") || !strings.Contains(out, "y_risk_any") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	m, err := run.Load(outDir)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	for _, name := range []string{export.PanelCSV, export.PanelParquet, export.LabelSummaryCSV, export.LabelSummaryXLSX, "classify_train.csv", "classify_features.json"} {
		p, ok := m.Artifact(name)
		if !ok {
			t.Fatalf("artifact %s missing from manifest: %v", name, m.ArtifactNames())
		}
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}

	out = mustExecute(t, "inspect", filepath.Join(outDir, export.LabelSummaryCSV))
	if !strings.Contains(out, "[LABELS]") || !strings.Contains(out, "| y_drop_h1 |") {
		t.Fatalf("unexpected label summary report:\n%s", out)
	}
	out = mustExecute(t, "inspect", filepath.Join(outDir, export.PanelCSV), "--prefix", "KPI")
	if !strings.Contains(out, "Rows: 12") || !strings.Contains(out, "- KPI_PROXY: float") {
		t.Fatalf("unexpected panel report:\n%s", out)
	}

	out = mustExecute(t, "advise", "--run", outDir, "--merchant", "B", "--month", "202404", "--dry-run")
	for _, want := range []string{"--dry-run", "[상점 카드]", "- 가맹점 코드: B", "- 형태: 프랜차이즈", "(202404 기준)", "y_close_h3 (3개월 내 폐업): 위험"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dry-run output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "advise", "--run", outDir, "--merchant", "ZZ", "--dry-run"); err == nil {
		t.Fatal("expected error for unknown merchant")
	}
}

func TestCLI_RunFailsWithoutOutput(t *testing.T) {
	home, info, kpi, cust := isolatedHome(t)
	outDir := filepath.Join(home, "out")
	_, err := execute(t, "run", "--info", info, "--kpi", kpi, "--cust", cust, "--outdir", outDir,
		"--kpi-candidates", "KPI_VALUE", "--method", "all", "--test-months", "6")
	if err == nil {
		t.Fatal("expected insufficient history error")
	}
	if _, statErr := os.Stat(filepath.Join(outDir, run.FileName)); !os.IsNotExist(statErr) {
		t.Fatalf("run.json must not exist after a failed run: %v", statErr)
	}
	if _, err := execute(t, "run", "--info", info, "--kpi", kpi, "--cust", cust, "--outdir", outDir, "--sep", "x"); err == nil {
		t.Fatal("expected error for unsupported --sep")
	}
}

func TestCLI_RunRepeatedSliceFlags(t *testing.T) {
	home, info, kpi, cust := isolatedHome(t)
	for _, dir := range []string{"first", "second"} {
		outDir := filepath.Join(home, dir)
		out := mustExecute(t, "run", "--info", info, "--kpi", kpi, "--cust", cust, "--outdir", outDir,
			"--kpi-candidates", "KPI_VALUE", "--drop-horizons", "1", "--windows", "3")
		if !strings.Contains(out, "y_drop_h1") || strings.Contains(out, "y_drop_h2") {
			t.Fatalf("%s: unexpected run output:\n%s", dir, out)
		}
		if len(runDropHorizons) != 1 || len(runWindows) != 1 {
			t.Fatalf("%s: slice flags leaked between runs: horizons=%v windows=%v", dir, runDropHorizons, runWindows)
		}
	}
}

func TestCLI_AdviseWithLocalRuntime(t *testing.T) {
	home, info, kpi, cust := isolatedHome(t)
	outDir := filepath.Join(home, "out")
	mustExecute(t, "run", "--info", info, "--kpi", kpi, "--cust", cust, "--outdir", outDir,
		"--kpi-candidates", "KPI_VALUE", "--drop-horizons", "1")

	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "# 요약\n단골 확보"},
			"done":    true,
		})
	}))
	defer srv.Close()

	saved := filepath.Join(home, "advice.json")
	out := mustExecute(t, "advise", "--run", outDir, "--merchant", "A", "--provider", "ollama",
		"--ollama-host", srv.URL, "--model", "llama3.1:8b", "--output", saved)
	if gotModel != "llama3.1:8b" {
		t.Fatalf("model sent = %q", gotModel)
	}
	if !strings.Contains(out, "=== Consultant ===") || !strings.Contains(out, "단골 확보") {
		t.Fatalf("unexpected advise output:\n%s", out)
	}
	data, err := os.ReadFile(saved)
	if err != nil {
		t.Fatalf("read saved advice: %v", err)
	}
	var rec adviceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode saved advice: %v", err)
	}
	if rec.Merchant != "A" || rec.Month != "202406" || rec.Content != "# 요약\n단골 확보" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home, _, _, _ := isolatedHome(t)
	mustExecute(t, "config", "set", "default_model", "openai/gpt-4.1-mini")
	mustExecute(t, "config", "set", "api_key", "sk-abcdef123456")
	mustExecute(t, "config", "set", "windows", "3,6")
	if _, err := os.Stat(filepath.Join(home, ".earlywarn", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := mustExecute(t, "config", "show")
	for _, want := range []string{"default_model: openai/gpt-4.1-mini", "api_key: sk-****456", "windows: 3,6"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
	if _, err := execute(t, "config", "set", "method", "xgboost"); err == nil {
		t.Fatal("expected error for invalid method")
	}
	if _, err := execute(t, "config", "set", "nope", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
