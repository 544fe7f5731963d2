// Package pipeline runs the extract, transform and load stages that turn the
// three provider extracts into the labeled merchant-month panel.
package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/KaramelBytes/earlywarn-cli/internal/features"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/modelprep"
)

// ErrInvalidOptions wraps every option validation failure.
var ErrInvalidOptions = errors.New("invalid pipeline options")

// Source column names.
const (
	IDColumn      = "ENCODED_MCT"
	MonthColumn   = "TA_YM"
	RegionColumn  = "MCT_SIGUNGU_NM"
	ZoneColumn    = "HPSN_MCT_BZN_CD_NM"
	OpenColumn    = "ARE_D"
	ClosureColumn = "MCT_ME_D"
)

// PeerKeys define a peer group.
var PeerKeys = []string{RegionColumn, ZoneColumn, MonthColumn}

// Options configures one pipeline run.
type Options struct {
	InfoPath string
	KPIPath  string
	CustPath string
	OutDir   string

	// Delimiter for text inputs; zero sniffs it from the file name.
	Delimiter rune

	Method        modelprep.Method
	KPICandidates []string
	DropHorizons  []int
	DropThreshold float64
	CloseHorizon  int
	Windows       []int
	TestMonths    int

	SQLite bool
	XLSX   bool
}

// DefaultOptions returns the stock horizons, threshold and windows with no
// input paths set.
func DefaultOptions() Options {
	lo := labels.DefaultOptions()
	return Options{
		Method:        modelprep.None,
		KPICandidates: lo.KPICandidates,
		DropHorizons:  lo.DropHorizons,
		DropThreshold: lo.DropThreshold,
		CloseHorizon:  lo.CloseHorizon,
		Windows:       append([]int(nil), features.DefaultWindows...),
		TestMonths:    2,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

// Validate checks the options without touching the filesystem.
func (o Options) Validate() error {
	switch {
	case o.InfoPath == "" || o.KPIPath == "" || o.CustPath == "":
		return invalid("--info, --kpi and --cust are required")
	case o.OutDir == "":
		return invalid("--outdir is required")
	case len(o.DropHorizons) == 0:
		return invalid("at least one drop horizon is required")
	case len(o.Windows) == 0:
		return invalid("at least one rolling window is required")
	case len(o.KPICandidates) == 0:
		return invalid("at least one KPI candidate column is required")
	case o.CloseHorizon < 1:
		return invalid("close horizon must be >= 1, got %d", o.CloseHorizon)
	case o.TestMonths < 1:
		return invalid("test months must be >= 1, got %d", o.TestMonths)
	case math.IsNaN(o.DropThreshold) || math.IsInf(o.DropThreshold, 0):
		return invalid("drop threshold must be finite")
	}
	seen := map[int]bool{}
	for _, h := range o.DropHorizons {
		if h < 1 {
			return invalid("drop horizon must be >= 1, got %d", h)
		}
		if seen[h] {
			return invalid("drop horizon %d listed more than once", h)
		}
		seen[h] = true
	}
	seen = map[int]bool{}
	for _, w := range o.Windows {
		if w < 1 {
			return invalid("rolling window must be >= 1, got %d", w)
		}
		if seen[w] {
			return invalid("rolling window %d listed more than once", w)
		}
		seen[w] = true
	}
	if _, err := modelprep.ParseMethod(string(o.Method)); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (o Options) labelOptions() labels.Options {
	lo := labels.DefaultOptions()
	lo.IDColumn = IDColumn
	lo.MonthColumn = MonthColumn
	lo.ClosureColumn = ClosureColumn
	lo.KPICandidates = o.KPICandidates
	lo.DropHorizons = o.DropHorizons
	lo.DropThreshold = o.DropThreshold
	lo.CloseHorizon = o.CloseHorizon
	return lo
}

func (o Options) prepOptions() modelprep.Options {
	return modelprep.Options{
		Columns:    modelprep.Columns{ID: IDColumn, Month: MonthColumn, Open: OpenColumn, Closure: ClosureColumn},
		TestMonths: o.TestMonths,
	}
}
