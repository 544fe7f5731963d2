// Package modelprep turns the labeled panel into train/test datasets for the
// downstream classifier and survival models. Model fitting happens elsewhere.
package modelprep

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// MinLookbackMonths is the number of training months required on top of the
// test window.
const MinLookbackMonths = 3

// ErrInsufficientHistory is returned when the panel spans too few months for
// the requested test window.
var ErrInsufficientHistory = errors.New("not enough months for time-based split")

// Method selects which datasets are prepared.
type Method string

const (
	Classify Method = "classify"
	Cox      Method = "cox"
	AFT      Method = "aft"
	All      Method = "all"
	None     Method = "none"
)

// ParseMethod accepts a method name; "lgbm" is an alias for classify.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case Classify, Cox, AFT, All, None:
		return m, nil
	case "lgbm":
		return Classify, nil
	case "":
		return None, nil
	}
	return "", fmt.Errorf("unknown method %q (want classify|cox|aft|all|none)", s)
}

// Expand lists the concrete methods selected by m.
func (m Method) Expand() []Method {
	switch m {
	case All:
		return []Method{Classify, Cox, AFT}
	case None, "":
		return nil
	}
	return []Method{m}
}

// Columns names the structural columns of the panel.
type Columns struct {
	ID      string
	Month   string
	Open    string
	Closure string
}

func DefaultColumns() Columns {
	return Columns{ID: "ENCODED_MCT", Month: "TA_YM", Open: "ARE_D", Closure: "MCT_ME_D"}
}

// Options configures dataset preparation.
type Options struct {
	Columns    Columns
	TestMonths int
}

// Split is a time-based partition of rows at Cutoff: train < Cutoff <= test.
type Split struct {
	Months []panel.Month
	Cutoff panel.Month
	Train  []int
	Test   []int
}

// TimeSplit partitions rows (all rows when nil) by month. Rows without a month
// fall in neither side.
func TimeSplit(t *panel.Table, rows []int, monthCol string, testMonths int) (*Split, error) {
	months := t.Col(monthCol)
	if months == nil {
		return nil, fmt.Errorf("split on %q: %w", monthCol, panel.ErrMissingColumn)
	}
	if testMonths < 1 {
		return nil, fmt.Errorf("test months must be >= 1, got %d", testMonths)
	}
	if rows == nil {
		rows = make([]int, t.Rows())
		for i := range rows {
			rows[i] = i
		}
	}
	seen := map[panel.Month]bool{}
	var distinct []panel.Month
	for _, i := range rows {
		if m, ok := months.MonthAt(i); ok && !seen[m] {
			seen[m] = true
			distinct = append(distinct, m)
		}
	}
	sort.Slice(distinct, func(a, b int) bool { return distinct[a] < distinct[b] })
	if len(distinct) < testMonths+MinLookbackMonths {
		return nil, fmt.Errorf("%w: %d distinct months, need at least %d",
			ErrInsufficientHistory, len(distinct), testMonths+MinLookbackMonths)
	}
	s := &Split{Months: distinct, Cutoff: distinct[len(distinct)-testMonths]}
	for _, i := range rows {
		m, ok := months.MonthAt(i)
		switch {
		case !ok:
		case m < s.Cutoff:
			s.Train = append(s.Train, i)
		default:
			s.Test = append(s.Test, i)
		}
	}
	return s, nil
}

// FeatureSet describes one prepared dataset for the external trainer.
type FeatureSet struct {
	Method      Method   `json:"method"`
	Target      []string `json:"target"`
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical,omitempty"`
	Excluded    []string `json:"excluded"`
	Cutoff      string   `json:"cutoff"`
	Months      []string `json:"months"`
	TrainRows   int      `json:"train_rows"`
	TestRows    int      `json:"test_rows"`
	Imputed     bool     `json:"imputed,omitempty"`
}

// Dataset is a prepared train/test pair.
type Dataset struct {
	Method   Method
	Train    *panel.Table
	Test     *panel.Table
	Features FeatureSet
}

// Survival frame column names.
const (
	StartColumn      = "start"
	StopColumn       = "stop"
	EventColumn      = "event"
	LowerBoundColumn = "label_lower"
	UpperBoundColumn = "label_upper"
)

// Prepare builds the datasets selected by m. Every split precondition is
// checked before any dataset is returned, so callers can validate before
// writing anything.
func Prepare(t *panel.Table, m Method, opt Options) ([]Dataset, error) {
	methods := m.Expand()
	if len(methods) == 0 {
		return nil, nil
	}
	var out []Dataset
	var tv *panel.Table
	for _, method := range methods {
		var (
			ds  *Dataset
			err error
		)
		switch method {
		case Classify:
			ds, err = prepareClassify(t, opt)
		case Cox, AFT:
			if tv == nil {
				if tv, err = SurvivalFrame(t, opt.Columns); err != nil {
					return nil, err
				}
			}
			ds, err = prepareSurvival(tv, method, opt)
		default:
			err = fmt.Errorf("unsupported method %q", method)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		out = append(out, *ds)
	}
	return out, nil
}

func excludedColumns(t *panel.Table, cols Columns, extra ...string) map[string]bool {
	ex := map[string]bool{cols.ID: true, cols.Month: true, cols.Open: true, cols.Closure: true}
	for _, e := range extra {
		ex[e] = true
	}
	for _, n := range t.Names() {
		if labels.IsLabel(n) {
			ex[n] = true
		}
	}
	return ex
}

func monthStrings(ms []panel.Month) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	return out
}

func prepareClassify(t *panel.Table, opt Options) (*Dataset, error) {
	target := t.Col(labels.RiskAnyColumn)
	if target == nil {
		return nil, fmt.Errorf("target %q: %w", labels.RiskAnyColumn, panel.ErrMissingColumn)
	}
	var rows []int
	for i := 0; i < t.Rows(); i++ {
		if target.IsValid(i) {
			rows = append(rows, i)
		}
	}
	split, err := TimeSplit(t, rows, opt.Columns.Month, opt.TestMonths)
	if err != nil {
		return nil, err
	}
	ex := excludedColumns(t, opt.Columns)
	fs := FeatureSet{
		Method: Classify,
		Target: []string{labels.RiskAnyColumn},
		Cutoff: split.Cutoff.String(),
		Months: monthStrings(split.Months),
	}
	for _, c := range t.Columns() {
		switch {
		case ex[c.Name]:
			fs.Excluded = append(fs.Excluded, c.Name)
		case c.Kind.Numeric():
			fs.Numeric = append(fs.Numeric, c.Name)
		case c.Kind == panel.KindText:
			fs.Categorical = append(fs.Categorical, c.Name)
		default:
			fs.Excluded = append(fs.Excluded, c.Name)
		}
	}
	train, test := t.Take(split.Train), t.Take(split.Test)
	fs.TrainRows, fs.TestRows = train.Rows(), test.Rows()
	return &Dataset{Method: Classify, Train: train, Test: test, Features: fs}, nil
}

// SurvivalFrame adds counting-process columns to a panel sorted by merchant
// and month: start is the 0-based row index within the merchant, stop is
// start+1 and event is 1 on the row whose month equals the closure month.
func SurvivalFrame(t *panel.Table, cols Columns) (*panel.Table, error) {
	sorted, err := panel.SortByEntity(t, cols.ID, cols.Month)
	if err != nil {
		return nil, err
	}
	spans, err := panel.EntitySpans(sorted, cols.ID)
	if err != nil {
		return nil, err
	}
	n := sorted.Rows()
	start := panel.NewIntColumn(StartColumn, n)
	stop := panel.NewIntColumn(StopColumn, n)
	event := panel.NewIntColumn(EventColumn, n)
	months, closure := sorted.Col(cols.Month), sorted.Col(cols.Closure)
	for _, sp := range spans {
		for i := sp.Start; i < sp.End; i++ {
			idx := int64(i - sp.Start)
			start.SetInt(i, idx)
			stop.SetInt(i, idx+1)
			event.SetInt(i, 0)
			if closure == nil || !closure.IsValid(i) {
				continue
			}
			cm, ok := panel.ParseDateMonth(closure.TextAt(i))
			if rm, rok := months.MonthAt(i); ok && rok && rm == cm {
				event.SetInt(i, 1)
			}
		}
	}
	for _, c := range []*panel.Column{start, stop, event} {
		if err := sorted.Add(c); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func prepareSurvival(tv *panel.Table, method Method, opt Options) (*Dataset, error) {
	split, err := TimeSplit(tv, nil, opt.Columns.Month, opt.TestMonths)
	if err != nil {
		return nil, err
	}
	ex := excludedColumns(tv, opt.Columns, StartColumn, StopColumn, EventColumn)
	var covariates []string
	for _, c := range tv.Columns() {
		if !ex[c.Name] && c.Kind.Numeric() {
			covariates = append(covariates, c.Name)
		}
	}
	keep := []string{opt.Columns.ID, opt.Columns.Month, StartColumn, StopColumn, EventColumn}
	fs := FeatureSet{
		Method:   method,
		Target:   []string{StartColumn, StopColumn, EventColumn},
		Numeric:  covariates,
		Cutoff:   split.Cutoff.String(),
		Months:   monthStrings(split.Months),
		Imputed:  true,
		Excluded: excludedNames(tv, ex),
	}
	base, err := tv.Select(append(keep, covariates...))
	if err != nil {
		return nil, err
	}
	train, test := base.Take(split.Train), base.Take(split.Test)
	medians := columnMedians(train, covariates)
	imputeMedians(train, medians)
	imputeMedians(test, medians)

	if method == AFT {
		fs.Target = []string{LowerBoundColumn, UpperBoundColumn}
		for _, part := range []*panel.Table{train, test} {
			if err := addAFTBounds(part); err != nil {
				return nil, err
			}
		}
	}
	fs.TrainRows, fs.TestRows = train.Rows(), test.Rows()
	return &Dataset{Method: method, Train: train, Test: test, Features: fs}, nil
}

func excludedNames(t *panel.Table, ex map[string]bool) []string {
	var out []string
	for _, n := range t.Names() {
		if ex[n] {
			out = append(out, n)
		}
	}
	return out
}

// addAFTBounds adds interval-censoring bounds: lower = start, upper = stop
// for observed events and +Inf for censored rows.
func addAFTBounds(t *panel.Table) error {
	start, stop, event := t.Col(StartColumn), t.Col(StopColumn), t.Col(EventColumn)
	lower := panel.NewFloatColumn(LowerBoundColumn, t.Rows())
	upper := panel.NewFloatColumn(UpperBoundColumn, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		s, _ := start.FloatAt(i)
		lower.SetFloat(i, s)
		if e, _ := event.IntAt(i); e == 1 {
			v, _ := stop.FloatAt(i)
			upper.SetFloat(i, v)
			continue
		}
		// +Inf marks right censoring; SetFloat would record it as missing.
		upper.Float[i] = math.Inf(1)
		upper.Valid[i] = true
	}
	if err := t.Add(lower); err != nil {
		return err
	}
	return t.Add(upper)
}

func columnMedians(t *panel.Table, cols []string) map[string]float64 {
	out := make(map[string]float64, len(cols))
	for _, name := range cols {
		c := t.Col(name)
		var vals []float64
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.FloatAt(i); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			out[name] = vals[mid]
		} else {
			out[name] = (vals[mid-1] + vals[mid]) / 2
		}
	}
	return out
}

// imputeMedians fills missing covariates with training medians. Int columns
// are widened to float so fractional medians survive.
func imputeMedians(t *panel.Table, medians map[string]float64) {
	for name, med := range medians {
		c := t.Col(name)
		if c == nil {
			continue
		}
		out := panel.NewFloatColumn(name, c.Len())
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.FloatAt(i); ok {
				out.SetFloat(i, v)
			} else {
				out.SetFloat(i, med)
			}
		}
		_ = t.Replace(out)
	}
}
