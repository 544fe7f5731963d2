// Package labels builds the forward-looking risk labels of the merchant panel.
package labels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/features"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

const (
	KPIProxyColumn    = "KPI_PROXY"
	KPIProxyMA3Column = "KPI_PROXY_MA3"
	RiskAnyColumn     = "y_risk_any"

	dropPrefix  = "y_drop_h"
	closePrefix = "y_close_h"
)

// ErrNoKPICandidates is returned when none of the KPI proxy candidates exist.
var ErrNoKPICandidates = errors.New("no KPI proxy candidate column present")

// DefaultKPICandidates lists the proxy sources in priority order.
var DefaultKPICandidates = []string{
	"RC_M1_SAA_MID", "RC_M1_TO_UE_CT_MID", "RC_M1_UE_CUS_CN_MID", "RC_M1_AV_NP_AT_MID",
}

// Options configures label construction.
type Options struct {
	IDColumn      string
	MonthColumn   string
	ClosureColumn string
	KPICandidates []string
	DropHorizons  []int
	DropThreshold float64
	CloseHorizon  int
}

func DefaultOptions() Options {
	return Options{
		IDColumn:      "ENCODED_MCT",
		MonthColumn:   "TA_YM",
		ClosureColumn: "MCT_ME_D",
		KPICandidates: append([]string(nil), DefaultKPICandidates...),
		DropHorizons:  []int{1, 2, 3},
		DropThreshold: -0.30,
		CloseHorizon:  3,
	}
}

func DropName(h int) string  { return fmt.Sprintf("%s%d", dropPrefix, h) }
func CloseName(c int) string { return fmt.Sprintf("%s%d", closePrefix, c) }

// IsLabel reports whether name is a generated label column.
func IsLabel(name string) bool {
	return name == RiskAnyColumn || strings.HasPrefix(name, dropPrefix) || strings.HasPrefix(name, closePrefix)
}

// Names lists the label columns of t in schema order.
func Names(t *panel.Table) []string {
	var out []string
	for _, n := range t.Names() {
		if IsLabel(n) {
			out = append(out, n)
		}
	}
	return out
}

// Build sorts t by merchant and month and appends KPI_PROXY, KPI_PROXY_MA3,
// one y_drop_h{H} per horizon, y_close_h{C} and y_risk_any.
func Build(t *panel.Table, opt Options) (*panel.Table, error) {
	sorted, err := panel.SortByEntity(t, opt.IDColumn, opt.MonthColumn)
	if err != nil {
		return nil, err
	}
	spans, err := panel.EntitySpans(sorted, opt.IDColumn)
	if err != nil {
		return nil, err
	}
	proxy, err := KPIProxy(sorted, opt.KPICandidates)
	if err != nil {
		return nil, err
	}
	base := features.TrailingMean(proxy, spans, 3, 2, KPIProxyMA3Column)

	var risk []*panel.Column
	add := []*panel.Column{proxy, base}
	for _, h := range opt.DropHorizons {
		c := DropLabel(proxy, base, spans, h, opt.DropThreshold)
		add = append(add, c)
		risk = append(risk, c)
	}
	closeCol := CloseLabel(sorted, opt.MonthColumn, opt.ClosureColumn, opt.CloseHorizon)
	add = append(add, closeCol)
	risk = append(risk, closeCol)
	add = append(add, RiskAny(risk...))

	for _, c := range add {
		if err := sorted.Add(c); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// KPIProxy coalesces the candidate columns row-wise in priority order.
func KPIProxy(t *panel.Table, candidates []string) (*panel.Column, error) {
	var present []*panel.Column
	for _, name := range candidates {
		if c := t.Col(name); c != nil && c.Kind.Numeric() {
			present = append(present, c)
		}
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("%w (tried %s)", ErrNoKPICandidates, strings.Join(candidates, ", "))
	}
	out := panel.NewFloatColumn(KPIProxyColumn, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		for _, c := range present {
			if v, ok := c.FloatAt(i); ok {
				out.SetFloat(i, v)
				break
			}
		}
	}
	return out, nil
}

// DropLabel flags rows whose KPI proxy H rows ahead has fallen by at least
// |threshold| relative to the trailing baseline. Rows without a future row, a
// future value or a usable baseline are left missing.
func DropLabel(proxy, base *panel.Column, spans []panel.Span, h int, threshold float64) *panel.Column {
	out := panel.NewFloatColumn(DropName(h), proxy.Len())
	for _, sp := range spans {
		for i := sp.Start; i+h < sp.End; i++ {
			fut, ok1 := proxy.FloatAt(i + h)
			b, ok2 := base.FloatAt(i)
			if !ok1 || !ok2 || b == 0 {
				continue
			}
			if (fut-b)/b <= threshold {
				out.SetFloat(i, 1)
			} else {
				out.SetFloat(i, 0)
			}
		}
	}
	return out
}

// CloseLabel flags rows whose merchant closes within 1..horizon months.
// Rows at or past the closure month are missing. Merchants without a closure
// date, or panels without the closure column, are 0 throughout.
func CloseLabel(t *panel.Table, monthCol, closureCol string, horizon int) *panel.Column {
	out := panel.NewFloatColumn(CloseName(horizon), t.Rows())
	months, closure := t.Col(monthCol), t.Col(closureCol)
	for i := 0; i < t.Rows(); i++ {
		var (
			cm panel.Month
			ok bool
		)
		if closure != nil {
			cm, ok = closureMonth(closure, i)
		}
		if !ok {
			out.SetFloat(i, 0)
			continue
		}
		if months == nil {
			continue
		}
		rm, rok := months.MonthAt(i)
		if !rok {
			continue
		}
		switch dist := int(cm - rm); {
		case dist <= 0:
		case dist <= horizon:
			out.SetFloat(i, 1)
		default:
			out.SetFloat(i, 0)
		}
	}
	return out
}

func closureMonth(c *panel.Column, i int) (panel.Month, bool) {
	switch c.Kind {
	case panel.KindMonth:
		return c.MonthAt(i)
	case panel.KindText:
		if !c.IsValid(i) {
			return 0, false
		}
		return panel.ParseDateMonth(c.Text[i])
	default:
		v, ok := c.FloatAt(i)
		if !ok {
			return 0, false
		}
		return panel.ParseDateMonth(strconv.FormatFloat(v, 'f', -1, 64))
	}
}

// RiskAny is the row-wise maximum of the given labels, skipping missing
// values. Rows where every label is missing stay missing.
func RiskAny(cols ...*panel.Column) *panel.Column {
	n := 0
	if len(cols) > 0 {
		n = cols[0].Len()
	}
	out := panel.NewFloatColumn(RiskAnyColumn, n)
	for i := 0; i < n; i++ {
		best, seen := 0.0, false
		for _, c := range cols {
			if v, ok := c.FloatAt(i); ok && (!seen || v > best) {
				best, seen = v, true
			}
		}
		if seen {
			out.SetFloat(i, best)
		}
	}
	return out
}
