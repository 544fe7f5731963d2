package panel

import (
	"fmt"
	"strings"
)

// Suffixes disambiguate non-key columns present on both sides of a join.
type Suffixes struct {
	Left  string
	Right string
}

const keySep = "\x1f"

// rowKey joins the key values of row i. Rows with any missing key have no key
// and never match.
func rowKey(t *Table, keys []string, i int) (string, bool) {
	var b strings.Builder
	for n, k := range keys {
		c := t.Col(k)
		if !c.Valid[i] {
			return "", false
		}
		if n > 0 {
			b.WriteString(keySep)
		}
		b.WriteString(c.TextAt(i))
	}
	return b.String(), true
}

func checkKeys(left, right *Table, keys []string) error {
	for _, k := range keys {
		lc, rc := left.Col(k), right.Col(k)
		if lc == nil || rc == nil {
			return fmt.Errorf("join key %q: %w", k, ErrMissingColumn)
		}
		if lc.Kind != rc.Kind {
			return fmt.Errorf("join key %q: kind %s vs %s", k, lc.Kind, rc.Kind)
		}
	}
	return nil
}

// OuterJoin keeps every row of both sides. Left rows come first in their
// original order, followed by unmatched right rows in theirs. Key columns are
// coalesced; the right side is matched by the first occurrence of each key.
func OuterJoin(left, right *Table, keys []string, sfx Suffixes) (*Table, error) {
	return join(left, right, keys, sfx, true)
}

// LeftJoin keeps every left row and attaches the first matching right row.
func LeftJoin(left, right *Table, keys []string, sfx Suffixes) (*Table, error) {
	return join(left, right, keys, sfx, false)
}

func join(left, right *Table, keys []string, sfx Suffixes, outer bool) (*Table, error) {
	if err := checkKeys(left, right, keys); err != nil {
		return nil, err
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	rindex := make(map[string]int, right.Rows())
	for j := 0; j < right.Rows(); j++ {
		if k, ok := rowKey(right, keys, j); ok {
			if _, seen := rindex[k]; !seen {
				rindex[k] = j
			}
		}
	}

	li := make([]int, 0, left.Rows())
	ri := make([]int, 0, left.Rows())
	matched := make([]bool, right.Rows())
	for i := 0; i < left.Rows(); i++ {
		j := -1
		if k, ok := rowKey(left, keys, i); ok {
			if m, hit := rindex[k]; hit {
				j = m
				matched[m] = true
			}
		}
		li = append(li, i)
		ri = append(ri, j)
	}
	if outer {
		for j := 0; j < right.Rows(); j++ {
			if !matched[j] {
				li = append(li, -1)
				ri = append(ri, j)
			}
		}
	}

	out := New(len(li))
	for _, c := range left.cols {
		var col *Column
		switch {
		case isKey[c.Name]:
			col = coalesce(c.take(li, c.Name), right.Col(c.Name).take(ri, c.Name))
		case right.Has(c.Name):
			col = c.take(li, c.Name+sfx.Left)
		default:
			col = c.take(li, c.Name)
		}
		if err := out.Add(col); err != nil {
			return nil, err
		}
	}
	for _, c := range right.cols {
		if isKey[c.Name] {
			continue
		}
		name := c.Name
		if left.Has(name) {
			name += sfx.Right
		}
		if err := out.Add(c.take(ri, name)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// coalesce fills missing values of a from b in place and returns a.
func coalesce(a, b *Column) *Column {
	for i := range a.Valid {
		if a.Valid[i] || !b.Valid[i] {
			continue
		}
		a.Valid[i] = true
		switch a.Kind {
		case KindText:
			a.Text[i] = b.Text[i]
		case KindFloat:
			a.Float[i] = b.Float[i]
		default:
			a.Int[i] = b.Int[i]
		}
	}
	return a
}

// Dedupe drops rows whose complete key repeats an earlier row. Rows with a
// missing key are kept. It returns the table and the number of dropped rows.
func Dedupe(t *Table, keys []string) (*Table, int, error) {
	for _, k := range keys {
		if !t.Has(k) {
			return nil, 0, fmt.Errorf("dedupe key %q: %w", k, ErrMissingColumn)
		}
	}
	seen := make(map[string]struct{}, t.Rows())
	keep := make([]int, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		if k, ok := rowKey(t, keys, i); ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		keep = append(keep, i)
	}
	dropped := t.Rows() - len(keep)
	if dropped == 0 {
		return t, 0, nil
	}
	return t.Take(keep), dropped, nil
}
