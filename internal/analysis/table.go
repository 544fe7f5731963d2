package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// Options controls report rendering for panel tables.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// MaxColumns caps schema lines; engineered panels carry thousands of columns.
	MaxColumns int
	// Prefix restricts the schema section to columns starting with it.
	Prefix string
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
	// TopValues is the number of most frequent values listed for text columns.
	TopValues int
}

// DefaultOptions returns reasonable defaults for panel inspection.
func DefaultOptions() Options {
	return Options{
		SampleRows:       3,
		MaxColumns:       60,
		Outliers:         true,
		OutlierThreshold: 3.5,
		TopValues:        5,
	}
}

// Report is a markdown-friendly summary of a panel table.
type Report struct {
	Name     string
	Rows     int
	Columns  int
	Cols     []ColumnSummary
	Samples  [][]string
	Labels   []ColumnStats
	Warnings []string
}

// ColumnSummary captures the type and statistics of one column.
type ColumnSummary struct {
	Name    string
	Kind    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Text top values
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// Summarize builds a Report for t. labelCols are described in a separate
// section with the distribution statistics written to label_summary.csv.
func Summarize(name string, t *panel.Table, labelCols []string, opt Options) *Report {
	rep := &Report{Name: name, Rows: t.Rows(), Columns: len(t.Columns())}
	maxCols := opt.MaxColumns
	if maxCols <= 0 {
		maxCols = math.MaxInt
	}
	var shown []*panel.Column
	for _, c := range t.Columns() {
		if opt.Prefix != "" && !strings.HasPrefix(c.Name, opt.Prefix) {
			continue
		}
		if len(shown) == maxCols {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("schema truncated to %d columns", maxCols))
			break
		}
		shown = append(shown, c)
		rep.Cols = append(rep.Cols, summarizeColumn(c, opt))
	}
	for i := 0; i < t.Rows() && i < opt.SampleRows; i++ {
		row := make([]string, len(shown))
		for j, c := range shown {
			row[j] = c.TextAt(i)
		}
		rep.Samples = append(rep.Samples, row)
	}
	rep.Labels = Describe(t, labelCols)
	for _, s := range rep.Labels {
		if s.Count == 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("label %s has no observed values", s.Name))
		}
	}
	return rep
}

func summarizeColumn(c *panel.Column, opt Options) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Kind: c.Kind.String()}
	if !c.Kind.Numeric() {
		counts := map[string]int{}
		for i := 0; i < c.Len(); i++ {
			if !c.IsValid(i) {
				s.Missing++
				continue
			}
			s.NonNull++
			counts[c.TextAt(i)]++
		}
		s.Unique = len(counts)
		s.TopValues = topValues(counts, opt.TopValues)
		return s
	}

	// numeric stats via Welford
	var (
		n        int
		mean, m2 float64
		vals     []float64
	)
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for i := 0; i < c.Len(); i++ {
		x, ok := c.FloatAt(i)
		if !ok {
			s.Missing++
			continue
		}
		s.NonNull++
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
		vals = append(vals, x)
	}
	if n == 0 {
		s.Min, s.Max = 0, 0
		return s
	}
	s.Mean = mean
	if n > 1 {
		s.Std = math.Sqrt(m2 / float64(n-1))
	}
	if opt.Outliers && opt.OutlierThreshold > 0 {
		s.OutlierThreshold = opt.OutlierThreshold
		median, mad := medianMAD(vals)
		if mad > 0 {
			for _, v := range vals {
				z := 0.6745 * (v - median) / mad
				if math.Abs(z) > opt.OutlierThreshold {
					s.OutliersCount++
				}
				s.OutliersMaxAbsZ = math.Max(s.OutliersMaxAbsZ, math.Abs(z))
			}
		}
	}
	return s
}

func topValues(counts map[string]int, k int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, CategoryCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", r.Columns))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch {
		case c.Kind == "float" || c.Kind == "int":
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
			if c.OutliersCount > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f (max |z|≈%.2f)", c.OutliersCount, c.OutlierThreshold, c.OutliersMaxAbsZ))
			}
		case len(c.TopValues) > 0:
			b.WriteString(" — top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
			if c.Unique > len(c.TopValues) {
				b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
			}
		}
		b.WriteString("\n")
	}

	if len(r.Labels) > 0 {
		b.WriteString("\n[LABELS]\n")
		b.WriteString("| label | count | mean | std | min | 25% | 50% | 75% | max |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, s := range r.Labels {
			b.WriteString(fmt.Sprintf("| %s | %d", s.Name, s.Count))
			for _, v := range s.Values() {
				b.WriteString(" | ")
				b.WriteString(formatStat(v, 4))
			}
			b.WriteString(" |\n")
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(clip(val, 80)))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
