package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/earlywarn-cli/internal/analysis"
	"github.com/KaramelBytes/earlywarn-cli/internal/features"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/pipeline"
	"github.com/KaramelBytes/earlywarn-cli/internal/tableio"
)

var (
	insOutputPath string
	insSep        string
	insSampleRows int
	insMaxCols    int
	insPrefix     string
	insOutliers   bool
	insOutlierThr float64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <panel.csv|label_summary.csv>",
	Short: "Print a markdown report of an exported panel or label summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		delim, err := parseDelimiter(insSep)
		if err != nil {
			return err
		}
		t, err := tableio.Read(path, delim)
		if err != nil {
			return err
		}

		var rep *analysis.Report
		if stats, perr := analysis.ParseSummary(t); perr == nil {
			rep = &analysis.Report{Name: filepath.Base(path), Rows: t.Rows(), Columns: len(t.Columns()), Labels: stats}
		} else {
			if _, err := features.CoerceNumeric(t, pipeline.IDColumn, pipeline.MonthColumn); err != nil {
				return err
			}
			opt := analysis.DefaultOptions()
			opt.SampleRows = insSampleRows
			opt.MaxColumns = insMaxCols
			opt.Prefix = insPrefix
			opt.Outliers = insOutliers
			if insOutlierThr > 0 {
				opt.OutlierThreshold = insOutlierThr
			}
			rep = analysis.Summarize(filepath.Base(path), t, labels.Names(t), opt)
		}
		md := rep.Markdown()

		if insOutputPath != "" {
			if err := os.WriteFile(insOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote report to %s\n", insOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(md, "\n"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&insOutputPath, "output", "o", "", "optional path to write the report (Markdown)")
	inspectCmd.Flags().StringVar(&insSep, "sep", "", "delimiter: ',' | ';' | '|' | 'tab' (default: by extension)")
	inspectCmd.Flags().IntVar(&insSampleRows, "sample-rows", 3, "number of sample rows to include")
	inspectCmd.Flags().IntVar(&insMaxCols, "max-cols", 60, "maximum schema lines (0 = all)")
	inspectCmd.Flags().StringVar(&insPrefix, "prefix", "", "only list columns starting with this prefix")
	inspectCmd.Flags().BoolVar(&insOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	inspectCmd.Flags().Float64Var(&insOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
