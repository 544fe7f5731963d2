package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/KaramelBytes/earlywarn-cli/internal/analysis"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// EncodeCSV renders t with a header row. Missing values are empty cells and
// months are written as YYYYMM.
func EncodeCSV(t *panel.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Names()); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.Rows(); i++ {
		for j, c := range cols {
			rec[j] = c.TextAt(i)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeSummaryCSV renders describe statistics with one row per column,
// headed by an empty index cell.
func EncodeSummaryCSV(stats []analysis.ColumnStats) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{""}, analysis.DescribeHeader...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, s := range stats {
		if err := w.Write(append([]string{s.Name}, s.Record()...)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
