// Package tableio loads provider extracts into panel tables. Every cell is
// read as text; typing happens later in the pipeline.
package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

const utf8BOM = "\ufeff"

// Read dispatches on the file extension: .xlsx goes through the workbook
// reader, everything else is parsed as delimited text. A zero delim is
// sniffed from the file name.
func Read(path string, delim rune) (*panel.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, "")
	}
	if delim == 0 {
		delim = SniffDelimiter(path)
	}
	return ReadCSV(path, delim)
}

// SniffDelimiter guesses the delimiter from the file name.
func SniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

// ReadCSV loads a delimited file. Short rows are padded with missing values;
// empty cells are missing.
func ReadCSV(path string, delim rune) (*panel.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return panel.New(0), nil
		}
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	header = append([]string(nil), header...)

	var rows [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s row %d: %w", path, len(rows)+1, err)
		}
		rows = append(rows, append([]string(nil), rec...))
	}
	return build(header, rows)
}

// ReadXLSX loads one worksheet of a workbook; an empty sheet name selects the
// first sheet.
func ReadXLSX(path, sheet string) (*panel.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return panel.New(0), nil
		}
		sheet = sheets[0]
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	if len(all) == 0 {
		return panel.New(0), nil
	}
	return build(all[0], all[1:])
}

func build(header []string, rows [][]string) (*panel.Table, error) {
	names := headerNames(header)
	t := panel.New(len(rows))
	for j, name := range names {
		c := panel.NewTextColumn(name, len(rows))
		for i, rec := range rows {
			if j >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[j]); v != "" {
				c.SetText(i, v)
			}
		}
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// headerNames trims the header, strips a UTF-8 BOM, names blank headers
// by position and renames repeats to NAME.1, NAME.2, ...
func headerNames(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			for n := 1; ; n++ {
				if cand := fmt.Sprintf("%s.%d", name, n); !used[cand] {
					name = cand
					break
				}
			}
		}
		used[name] = true
		out[i] = name
	}
	return out
}
