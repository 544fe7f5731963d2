package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// DescribeHeader is the column order of a describe table.
var DescribeHeader = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// ColumnStats is the distribution summary of one numeric column. Undefined
// statistics are NaN: everything but Count when the column is empty, and Std
// when it holds a single value.
type ColumnStats struct {
	Name  string
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Q25   float64
	Q50   float64
	Q75   float64
	Max   float64
}

// Values returns the statistics in DescribeHeader order, excluding count.
func (s ColumnStats) Values() []float64 {
	return []float64{s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max}
}

// Record renders the statistics as text in DescribeHeader order with
// undefined values left empty.
func (s ColumnStats) Record() []string {
	out := []string{strconv.Itoa(s.Count)}
	for _, v := range s.Values() {
		out = append(out, formatStat(v, -1))
	}
	return out
}

// Describe summarizes the named numeric columns of t. Missing or non-numeric
// columns are skipped.
func Describe(t *panel.Table, cols []string) []ColumnStats {
	var out []ColumnStats
	for _, name := range cols {
		c := t.Col(name)
		if c == nil || !c.Kind.Numeric() {
			continue
		}
		out = append(out, DescribeColumn(c))
	}
	return out
}

// DescribeColumn computes count, mean, sample std, min, quartiles and max
// over the non-missing values. Quartiles interpolate linearly between order
// statistics.
func DescribeColumn(c *panel.Column) ColumnStats {
	var vals []float64
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.FloatAt(i); ok {
			vals = append(vals, v)
		}
	}
	s := ColumnStats{Name: c.Name, Count: len(vals)}
	nan := math.NaN()
	if len(vals) == 0 {
		s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(vals)
	if len(vals) == 1 {
		s.Mean, s.Std = vals[0], nan
	} else {
		s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	}
	s.Min, s.Max = vals[0], vals[len(vals)-1]
	s.Q25, s.Q50, s.Q75 = quantile(vals, 0.25), quantile(vals, 0.5), quantile(vals, 0.75)
	return s
}

// formatStat renders v with prec significant digits (-1 for shortest exact);
// NaN renders as "".
func formatStat(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', prec, 64)
}

// ParseSummary reads a describe table back, as written to label_summary.csv:
// the first column holds the label name, the rest follow DescribeHeader.
// Empty cells are NaN.
func ParseSummary(t *panel.Table) ([]ColumnStats, error) {
	cols := t.Columns()
	if len(cols) != len(DescribeHeader)+1 {
		return nil, fmt.Errorf("summary table: want %d columns, got %d", len(DescribeHeader)+1, len(cols))
	}
	for j, h := range DescribeHeader {
		if cols[j+1].Name != h {
			return nil, fmt.Errorf("summary table: column %d is %q, want %q", j+1, cols[j+1].Name, h)
		}
	}
	out := make([]ColumnStats, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		vals := make([]float64, len(DescribeHeader))
		for j := range DescribeHeader {
			vals[j] = math.NaN()
			if s := cols[j+1].TextAt(i); s != "" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("summary row %d %s: %w", i+1, DescribeHeader[j], err)
				}
				vals[j] = v
			}
		}
		if math.IsNaN(vals[0]) {
			vals[0] = 0
		}
		out = append(out, ColumnStats{
			Name: cols[0].TextAt(i), Count: int(vals[0]),
			Mean: vals[1], Std: vals[2], Min: vals[3],
			Q25: vals[4], Q50: vals[5], Q75: vals[6], Max: vals[7],
		})
	}
	return out, nil
}
