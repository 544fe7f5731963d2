package features

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// DefaultWindows are the trailing window lengths in months.
var DefaultWindows = []int{3, 6, 12}

// MAName is the trailing-mean column for col over w months.
func MAName(col string, w int) string  { return fmt.Sprintf("%s__MA%d", col, w) }
func VolName(col string, w int) string { return fmt.Sprintf("%s__VOL%d", col, w) }
func PctName(col string) string        { return col + "__PCT1" }

// AddRollingFeatures appends trailing per-entity aggregates for every numeric
// column present at entry. t must be sorted by entity and month; spans give
// each entity's rows. For each window W, in order: all MA columns, then (for
// the shortest window only) the one-step change columns, then all VOL columns.
func AddRollingFeatures(t *panel.Table, spans []panel.Span, windows []int) ([]string, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("rolling: no windows")
	}
	for _, w := range windows {
		if w < 1 {
			return nil, fmt.Errorf("rolling: window %d must be >= 1", w)
		}
	}
	shortest := append([]int(nil), windows...)
	sort.Ints(shortest)

	bases := t.NumericNames()
	cols := make([]*panel.Column, len(bases))
	for i, name := range bases {
		cols[i] = t.Col(name)
	}

	pctDone := false
	for _, w := range windows {
		for _, c := range cols {
			if err := t.Add(trailing(c, spans, w, 1, MAName(c.Name, w), stat.Mean)); err != nil {
				return nil, err
			}
		}
		if w == shortest[0] && !pctDone {
			for _, c := range cols {
				if err := t.Add(oneStepChange(c, spans)); err != nil {
					return nil, err
				}
			}
			pctDone = true
		}
		for _, c := range cols {
			if err := t.Add(trailing(c, spans, w, 2, VolName(c.Name, w), stat.StdDev)); err != nil {
				return nil, err
			}
		}
	}
	return bases, nil
}

// TrailingMean is the per-entity trailing mean of c over w rows, defined when
// at least minValid values in the window are present.
func TrailingMean(c *panel.Column, spans []panel.Span, w, minValid int, name string) *panel.Column {
	return trailing(c, spans, w, minValid, name, stat.Mean)
}

func trailing(c *panel.Column, spans []panel.Span, w, minValid int, name string,
	agg func(x, weights []float64) float64) *panel.Column {
	out := panel.NewFloatColumn(name, c.Len())
	buf := make([]float64, 0, w)
	for _, sp := range spans {
		for i := sp.Start; i < sp.End; i++ {
			lo := i - w + 1
			if lo < sp.Start {
				lo = sp.Start
			}
			buf = buf[:0]
			for j := lo; j <= i; j++ {
				if v, ok := c.FloatAt(j); ok {
					buf = append(buf, v)
				}
			}
			if len(buf) >= minValid {
				out.SetFloat(i, agg(buf, nil))
			}
		}
	}
	return out
}

func oneStepChange(c *panel.Column, spans []panel.Span) *panel.Column {
	out := panel.NewFloatColumn(PctName(c.Name), c.Len())
	for _, sp := range spans {
		for i := sp.Start + 1; i < sp.End; i++ {
			cur, ok1 := c.FloatAt(i)
			prev, ok2 := c.FloatAt(i - 1)
			if !ok1 || !ok2 || prev == 0 {
				continue
			}
			out.SetFloat(i, cur/prev-1)
		}
	}
	return out
}
