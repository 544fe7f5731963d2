package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/earlywarn-cli/internal/analysis"
)

const summarySheet = "Labels"

// EncodeSummaryXLSX renders the label summary as a workbook. Undefined
// statistics are left blank.
func EncodeSummaryXLSX(stats []analysis.ColumnStats) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(summarySheet); index == -1 {
		if _, err := f.NewSheet(summarySheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := append([]string{"label"}, analysis.DescribeHeader...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, cell, h)
	}
	for r, s := range stats {
		row := r + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(summarySheet, cell, v)
		}
		write(1, s.Name)
		write(2, s.Count)
		for k, v := range s.Values() {
			if !math.IsNaN(v) {
				write(k+3, v)
			}
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
