package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/earlywarn-cli/internal/modelprep"
	"github.com/KaramelBytes/earlywarn-cli/internal/pipeline"
)

var (
	runInfo          string
	runKPI           string
	runCust          string
	runOutDir        string
	runMethod        string
	runSep           string
	runKPICandidates []string
	runDropHorizons  []int
	runDropThresh    float64
	runCloseHorizon  int
	runTestMonths    int
	runWindows       []int
	runSQLite        bool
	runXLSX          bool
)

var runPipelineCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the labeled merchant-month panel and export it",
	Example: `  earlywarn run --info info.csv --kpi kpi.csv --cust cust.csv --outdir out
  earlywarn run --info info.xlsx --kpi kpi.tsv --cust cust.tsv --outdir out --method all --xlsx
  earlywarn run --info i.csv --kpi k.csv --cust c.csv --outdir out --drop-horizons 1,3 --drop-thresh -0.25`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := runOptions(cmd)
		if err != nil {
			return err
		}
		m, err := pipeline.Run(cmd.Context(), opt, log)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Run %s: %d rows × %d columns, %d merchants\n", m.ID, m.Rows, m.Columns, m.Merchants)
		names := make([]string, 0, len(m.Labels))
		for n := range m.Labels {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			p := m.Labels[n]
			fmt.Fprintf(out, "  %-12s defined=%d positive=%d rate=%.4f\n", n, p.Defined, p.Positive, p.Rate)
		}
		fmt.Fprintf(out, "Artifacts in %s: %s\n", opt.OutDir, strings.Join(m.ArtifactNames(), ", "))
		return nil
	},
}

// runOptions layers flags that were set on this invocation over the config
// defaults.
func runOptions(cmd *cobra.Command) (pipeline.Options, error) {
	opt := pipeline.DefaultOptions()
	if cfg != nil {
		if len(cfg.KPICandidates) > 0 {
			opt.KPICandidates = cfg.KPICandidates
		}
		if len(cfg.DropHorizons) > 0 {
			opt.DropHorizons = cfg.DropHorizons
		}
		opt.DropThreshold = cfg.DropThreshold
		if cfg.CloseHorizon > 0 {
			opt.CloseHorizon = cfg.CloseHorizon
		}
		if len(cfg.Windows) > 0 {
			opt.Windows = cfg.Windows
		}
		if cfg.TestMonths > 0 {
			opt.TestMonths = cfg.TestMonths
		}
	}
	opt.InfoPath, opt.KPIPath, opt.CustPath, opt.OutDir = runInfo, runKPI, runCust, runOutDir
	opt.SQLite, opt.XLSX = runSQLite, runXLSX

	f := cmd.Flags()
	method := runMethod
	if !f.Changed("method") && cfg != nil && cfg.Method != "" {
		method = cfg.Method
	}
	m, err := modelprep.ParseMethod(method)
	if err != nil {
		return opt, fmt.Errorf("%w: %v", pipeline.ErrInvalidOptions, err)
	}
	opt.Method = m

	sep := runSep
	if !f.Changed("sep") && cfg != nil {
		sep = cfg.Delimiter
	}
	if opt.Delimiter, err = parseDelimiter(sep); err != nil {
		return opt, err
	}
	if f.Changed("kpi-candidates") {
		opt.KPICandidates = runKPICandidates
	}
	if f.Changed("drop-horizons") {
		opt.DropHorizons = runDropHorizons
	}
	if f.Changed("drop-thresh") {
		opt.DropThreshold = runDropThresh
	}
	if f.Changed("close-horizon") {
		opt.CloseHorizon = runCloseHorizon
	}
	if f.Changed("test-months") {
		opt.TestMonths = runTestMonths
	}
	if f.Changed("windows") {
		opt.Windows = runWindows
	}
	log.Debug("run options",
		zap.String("method", string(opt.Method)),
		zap.Ints("drop_horizons", opt.DropHorizons),
		zap.Float64("drop_threshold", opt.DropThreshold),
		zap.Ints("windows", opt.Windows))
	return opt, nil
}

// parseDelimiter maps the --sep value to a rune; empty means sniff from the
// file name.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", `\t`, "tab":
		return '\t', nil
	case ";":
		return ';', nil
	case "|":
		return '|', nil
	}
	return 0, fmt.Errorf("%w: unsupported --sep %q (use ',' | ';' | '|' | 'tab')", pipeline.ErrInvalidOptions, s)
}

// addRunFlags binds the run flags to fresh values on c.
func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&runInfo, "info", "", "merchant info extract (CSV/TSV/XLSX)")
	f.StringVar(&runKPI, "kpi", "", "monthly KPI extract (CSV/TSV/XLSX)")
	f.StringVar(&runCust, "cust", "", "monthly customer extract (CSV/TSV/XLSX)")
	f.StringVar(&runOutDir, "outdir", "", "output directory for artifacts and run.json")
	f.StringVar(&runMethod, "method", "none", "model prep: classify|cox|aft|all|none")
	f.StringVar(&runSep, "sep", "", "delimiter for text inputs: ',' | ';' | '|' | 'tab' (default: by extension)")
	f.StringSliceVar(&runKPICandidates, "kpi-candidates", nil, "KPI proxy source columns in priority order")
	f.IntSliceVar(&runDropHorizons, "drop-horizons", []int{1, 2, 3}, "forward horizons in months for y_drop_h{H}")
	f.Float64Var(&runDropThresh, "drop-thresh", -0.30, "relative change at or below which a drop is flagged")
	f.IntVar(&runCloseHorizon, "close-horizon", 3, "closure window in months for y_close_h{C}")
	f.IntVar(&runTestMonths, "test-months", 2, "months held out for the time-based test split")
	f.IntSliceVar(&runWindows, "windows", []int{3, 6, 12}, "rolling windows in months")
	f.BoolVar(&runSQLite, "sqlite", false, "also write dataset_features_labels.sqlite")
	f.BoolVar(&runXLSX, "xlsx", false, "also write label_summary.xlsx")
}

func init() {
	rootCmd.AddCommand(runPipelineCmd)
	addRunFlags(runPipelineCmd)
}
