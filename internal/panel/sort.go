package panel

import (
	"fmt"
	"sort"
)

// Span is a half-open row range [Start, End) holding one merchant's history.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// SortByEntity returns the table stably sorted by entity id and month.
// Missing months sort last within an entity; missing ids sort last overall.
func SortByEntity(t *Table, idCol, monthCol string) (*Table, error) {
	ids, months := t.Col(idCol), t.Col(monthCol)
	if ids == nil {
		return nil, fmt.Errorf("sort by %q: %w", idCol, ErrMissingColumn)
	}
	if months == nil {
		return nil, fmt.Errorf("sort by %q: %w", monthCol, ErrMissingColumn)
	}
	if months.Kind != KindMonth {
		return nil, fmt.Errorf("sort by %q: want month column, got %s", monthCol, months.Kind)
	}
	idx := make([]int, t.Rows())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		vi, vj := ids.Valid[i], ids.Valid[j]
		if vi != vj {
			return vi
		}
		if vi {
			si, sj := ids.TextAt(i), ids.TextAt(j)
			if si != sj {
				return si < sj
			}
		}
		mi, mj := months.Valid[i], months.Valid[j]
		if mi != mj {
			return mi
		}
		return mi && months.Int[i] < months.Int[j]
	})
	return t.Take(idx), nil
}

// EntitySpans splits a table sorted by SortByEntity into per-entity row
// ranges. Each row with a missing id forms its own span.
func EntitySpans(t *Table, idCol string) ([]Span, error) {
	ids := t.Col(idCol)
	if ids == nil {
		return nil, fmt.Errorf("spans by %q: %w", idCol, ErrMissingColumn)
	}
	if t.Rows() == 0 {
		return nil, nil
	}
	var spans []Span
	start := 0
	for i := 1; i <= t.Rows(); i++ {
		if i < t.Rows() && ids.Valid[i] && ids.Valid[start] && ids.TextAt(i) == ids.TextAt(start) {
			continue
		}
		spans = append(spans, Span{Start: start, End: i})
		start = i
	}
	return spans, nil
}
