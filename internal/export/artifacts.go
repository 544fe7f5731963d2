package export

import (
	"github.com/KaramelBytes/earlywarn-cli/internal/analysis"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// Artifact names in the output directory.
const (
	PanelBase        = "dataset_features_labels"
	PanelParquet     = PanelBase + ".parquet"
	PanelCSV         = PanelBase + ".csv"
	PanelSQLite      = PanelBase + ".sqlite"
	LabelSummaryCSV  = "label_summary.csv"
	LabelSummaryXLSX = "label_summary.xlsx"
)

// StageTable encodes t as <base>.parquet and <base>.csv into b.
func StageTable(b *Bundle, base string, t *panel.Table) error {
	pq, err := EncodeParquet(t)
	if err != nil {
		return err
	}
	if err := b.Add(base+".parquet", pq); err != nil {
		return err
	}
	csv, err := EncodeCSV(t)
	if err != nil {
		return err
	}
	return b.Add(base+".csv", csv)
}

// StageSummary encodes the label summary as CSV and, when withXLSX is set,
// as a workbook.
func StageSummary(b *Bundle, stats []analysis.ColumnStats, withXLSX bool) error {
	data, err := EncodeSummaryCSV(stats)
	if err != nil {
		return err
	}
	if err := b.Add(LabelSummaryCSV, data); err != nil {
		return err
	}
	if !withXLSX {
		return nil
	}
	x, err := EncodeSummaryXLSX(stats)
	if err != nil {
		return err
	}
	return b.Add(LabelSummaryXLSX, x)
}
