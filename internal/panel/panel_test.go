package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textCol(name string, vals ...string) *Column {
	c := NewTextColumn(name, len(vals))
	for i, v := range vals {
		if v != "" {
			c.SetText(i, v)
		}
	}
	return c
}

func floatCol(name string, vals ...float64) *Column {
	c := NewFloatColumn(name, len(vals))
	for i, v := range vals {
		c.SetFloat(i, v)
	}
	return c
}

func monthCol(name string, vals ...string) *Column {
	c := NewMonthColumn(name, len(vals))
	for i, v := range vals {
		if m, ok := ParseMonth(v); ok {
			c.SetMonth(i, m)
		}
	}
	return c
}

func table(t *testing.T, cols ...*Column) *Table {
	t.Helper()
	tb := New(cols[0].Len())
	for _, c := range cols {
		require.NoError(t, tb.Add(c))
	}
	return tb
}

func TestParseMonth(t *testing.T) {
	m, ok := ParseMonth("202403")
	require.True(t, ok)
	assert.Equal(t, 2024, m.Year())
	assert.Equal(t, time.March, m.Month())
	assert.Equal(t, "202403", m.String())

	next, _ := ParseMonth("202501")
	assert.Equal(t, Month(10), next-m)

	for _, bad := range []string{"", "2024", "202413", "2024-03", "abcdef"} {
		_, ok := ParseMonth(bad)
		assert.False(t, ok, bad)
	}
	m, ok = ParseMonth("202312.0")
	require.True(t, ok)
	assert.Equal(t, "202312", m.String())
}

func TestParseDateMonth(t *testing.T) {
	for _, in := range []string{"20240315", "2024-03-15", "2024/03/15", "202403"} {
		m, ok := ParseDateMonth(in)
		require.True(t, ok, in)
		assert.Equal(t, "202403", m.String(), in)
	}
	_, ok := ParseDateMonth("someday")
	assert.False(t, ok)
}

func TestSetFloatRejectsNonFinite(t *testing.T) {
	c := floatCol("x", 1, math.NaN(), math.Inf(-1))
	assert.Equal(t, []bool{true, false, false}, c.Valid)
	assert.Equal(t, "", c.TextAt(1))
	assert.Equal(t, "1", c.TextAt(0))
}

func TestAddRejectsDuplicatesAndLength(t *testing.T) {
	tb := New(2)
	require.NoError(t, tb.Add(floatCol("a", 1, 2)))
	assert.ErrorIs(t, tb.Add(floatCol("a", 1, 2)), ErrDuplicateColumn)
	assert.ErrorIs(t, tb.Add(floatCol("b", 1)), ErrLengthMismatch)
	assert.Equal(t, []string{"a"}, tb.Names())
}

func TestOuterJoinSuffixesAndUnmatched(t *testing.T) {
	left := table(t,
		textCol("id", "A", "A", "B"),
		monthCol("ym", "202401", "202402", "bad"),
		floatCol("v", 1, 2, 3),
		floatCol("k", 10, 20, 30),
	)
	right := table(t,
		textCol("id", "A", "C", "B"),
		monthCol("ym", "202402", "202401", "bad"),
		floatCol("v", 7, 8, 9),
		floatCol("c", 100, 200, 300),
	)
	out, err := OuterJoin(left, right, []string{"id", "ym"}, Suffixes{Left: "_KPI", Right: "_CUST"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "ym", "v_KPI", "k", "v_CUST", "c"}, out.Names())
	// 3 left rows, then C and the unparseable B row from the right
	require.Equal(t, 5, out.Rows())
	assert.Equal(t, "A", out.Col("id").TextAt(1))
	assert.Equal(t, "7", out.Col("v_CUST").TextAt(1))
	assert.False(t, out.Col("v_CUST").Valid[0])
	assert.False(t, out.Col("c").Valid[2], "missing month never matches")
	assert.Equal(t, "C", out.Col("id").TextAt(3))
	assert.Equal(t, "202401", out.Col("ym").TextAt(3))
	assert.False(t, out.Col("k").Valid[3])
	assert.Equal(t, "B", out.Col("id").TextAt(4))
	assert.Equal(t, "300", out.Col("c").TextAt(4))
}

func TestLeftJoinDropsRightOnly(t *testing.T) {
	left := table(t, textCol("id", "A", "B"), floatCol("v", 1, 2))
	right := table(t, textCol("id", "B", "Z"), textCol("region", "강남구", "중구"))
	out, err := LeftJoin(left, right, []string{"id"}, Suffixes{Left: "_PANEL", Right: "_INFO"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Rows())
	assert.False(t, out.Col("region").Valid[0])
	assert.Equal(t, "강남구", out.Col("region").TextAt(1))
}

func TestJoinKindMismatch(t *testing.T) {
	left := table(t, textCol("ym", "202401"))
	right := table(t, monthCol("ym", "202401"))
	_, err := LeftJoin(left, right, []string{"ym"}, Suffixes{})
	assert.Error(t, err)
}

func TestDedupeKeepsFirst(t *testing.T) {
	tb := table(t,
		textCol("id", "A", "A", "", ""),
		floatCol("v", 1, 2, 3, 4),
	)
	out, dropped, err := Dedupe(tb, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []float64{1, 3, 4}, out.Col("v").Float)
}

func TestSortAndSpans(t *testing.T) {
	tb := table(t,
		textCol("id", "B", "A", "A", "", "A"),
		monthCol("ym", "202402", "", "202403", "202401", "202401"),
		floatCol("v", 1, 2, 3, 4, 5),
	)
	sorted, err := SortByEntity(tb, "id", "ym")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 3, 2, 1, 4}, sorted.Col("v").Float)

	spans, err := EntitySpans(sorted, "id")
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 3}, {3, 4}, {4, 5}}, spans)
}
