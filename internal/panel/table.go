// Package panel implements the typed columnar table the early-warning pipeline
// works on: an ordered schema of named columns with explicit missingness.
package panel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind is the semantic type of a column.
type Kind uint8

const (
	KindText Kind = iota
	KindFloat
	KindInt
	KindMonth
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindMonth:
		return "month"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this kind take part in statistics.
func (k Kind) Numeric() bool { return k == KindFloat || k == KindInt }

var (
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrLengthMismatch  = errors.New("column length mismatch")
	ErrMissingColumn   = errors.New("missing column")
)

// Column holds one named series. Only the slice matching Kind is populated;
// KindInt and KindMonth share Int. Valid[i] == false marks a missing value.
type Column struct {
	Name  string
	Kind  Kind
	Text  []string
	Float []float64
	Int   []int64
	Valid []bool
}

func newColumn(name string, kind Kind, n int) *Column {
	c := &Column{Name: name, Kind: kind, Valid: make([]bool, n)}
	switch kind {
	case KindText:
		c.Text = make([]string, n)
	case KindFloat:
		c.Float = make([]float64, n)
	default:
		c.Int = make([]int64, n)
	}
	return c
}

// NewTextColumn returns an all-missing text column of n rows.
func NewTextColumn(name string, n int) *Column { return newColumn(name, KindText, n) }

// NewFloatColumn returns an all-missing float column of n rows.
func NewFloatColumn(name string, n int) *Column { return newColumn(name, KindFloat, n) }

// NewIntColumn returns an all-missing integer column of n rows.
func NewIntColumn(name string, n int) *Column { return newColumn(name, KindInt, n) }

// NewMonthColumn returns an all-missing month column of n rows.
func NewMonthColumn(name string, n int) *Column { return newColumn(name, KindMonth, n) }

func (c *Column) Len() int { return len(c.Valid) }

func (c *Column) IsValid(i int) bool { return c.Valid[i] }

func (c *Column) SetMissing(i int) { c.Valid[i] = false }

func (c *Column) SetText(i int, v string) {
	c.Text[i] = v
	c.Valid[i] = true
}

// SetFloat stores v; NaN and infinities are stored as missing.
func (c *Column) SetFloat(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.Valid[i] = false
		return
	}
	c.Float[i] = v
	c.Valid[i] = true
}

func (c *Column) SetInt(i int, v int64) {
	c.Int[i] = v
	c.Valid[i] = true
}

func (c *Column) SetMonth(i int, m Month) { c.SetInt(i, int64(m)) }

// FloatAt returns the numeric value of row i for Float and Int columns.
func (c *Column) FloatAt(i int) (float64, bool) {
	if !c.Valid[i] {
		return 0, false
	}
	switch c.Kind {
	case KindFloat:
		return c.Float[i], true
	case KindInt:
		return float64(c.Int[i]), true
	}
	return 0, false
}

// IntAt returns the integer value of row i for Int columns.
func (c *Column) IntAt(i int) (int64, bool) {
	if !c.Valid[i] || c.Kind != KindInt {
		return 0, false
	}
	return c.Int[i], true
}

func (c *Column) MonthAt(i int) (Month, bool) {
	if !c.Valid[i] || c.Kind != KindMonth {
		return 0, false
	}
	return Month(c.Int[i]), true
}

// TextAt renders row i as text; missing values render as "".
func (c *Column) TextAt(i int) string {
	if !c.Valid[i] {
		return ""
	}
	switch c.Kind {
	case KindText:
		return c.Text[i]
	case KindFloat:
		return strconv.FormatFloat(c.Float[i], 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(c.Int[i], 10)
	case KindMonth:
		return Month(c.Int[i]).String()
	}
	return ""
}

// Count returns the number of non-missing values.
func (c *Column) Count() int {
	n := 0
	for _, ok := range c.Valid {
		if ok {
			n++
		}
	}
	return n
}

// take gathers rows by index; -1 yields a missing row.
func (c *Column) take(idx []int, name string) *Column {
	out := newColumn(name, c.Kind, len(idx))
	for i, j := range idx {
		if j < 0 || !c.Valid[j] {
			continue
		}
		out.Valid[i] = true
		switch c.Kind {
		case KindText:
			out.Text[i] = c.Text[j]
		case KindFloat:
			out.Float[i] = c.Float[j]
		default:
			out.Int[i] = c.Int[j]
		}
	}
	return out
}

// Field is one schema entry.
type Field struct {
	Name string
	Kind Kind
}

// Table is an ordered set of equally long, uniquely named columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New returns an empty table with a fixed row count.
func New(rows int) *Table {
	return &Table{index: map[string]int{}, rows: rows}
}

func (t *Table) Rows() int { return t.rows }

func (t *Table) Columns() []*Column { return t.cols }

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Col returns the named column or nil.
func (t *Table) Col(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.cols[i]
	}
	return nil
}

func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

func (t *Table) Schema() []Field {
	out := make([]Field, len(t.cols))
	for i, c := range t.cols {
		out[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return out
}

// NumericNames lists Float and Int columns in schema order.
func (t *Table) NumericNames() []string {
	var out []string
	for _, c := range t.cols {
		if c.Kind.Numeric() {
			out = append(out, c.Name)
		}
	}
	return out
}

// Add appends a new schema entry.
func (t *Table) Add(c *Column) error {
	if c.Len() != t.rows {
		return fmt.Errorf("add %q: %w (%d rows, table has %d)", c.Name, ErrLengthMismatch, c.Len(), t.rows)
	}
	if t.Has(c.Name) {
		return fmt.Errorf("add %q: %w", c.Name, ErrDuplicateColumn)
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Replace swaps an existing column in place, keeping its schema position.
func (t *Table) Replace(c *Column) error {
	i, ok := t.index[c.Name]
	if !ok {
		return fmt.Errorf("replace %q: %w", c.Name, ErrMissingColumn)
	}
	if c.Len() != t.rows {
		return fmt.Errorf("replace %q: %w", c.Name, ErrLengthMismatch)
	}
	t.cols[i] = c
	return nil
}

// Take returns a new table holding the given rows in the given order.
func (t *Table) Take(idx []int) *Table {
	out := New(len(idx))
	for _, c := range t.cols {
		_ = out.Add(c.take(idx, c.Name))
	}
	return out
}

// Select returns a table restricted to the named columns, in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	out := New(t.rows)
	for _, n := range names {
		c := t.Col(n)
		if c == nil {
			return nil, fmt.Errorf("select %q: %w", n, ErrMissingColumn)
		}
		if err := out.Add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
