package features

import (
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// SpecialMissing are the provider's "no data" codes in numeric fields.
var SpecialMissing = []float64{-999999.9, -999999.0, -99999.9, -99999.0}

// RateColumns are percentage fields reported on a 0-100 scale.
var RateColumns = []string{
	"DLV_SAA_RAT", "M1_SME_RY_SAA_RAT", "M1_SME_RY_CNT_RAT",
	"M12_SME_RY_SAA_PCE_RT", "M12_SME_BZN_SAA_PCE_RT",
	"M12_SME_RY_ME_MCT_RAT", "M12_SME_BZN_ME_MCT_RAT",
	"M12_MAL_1020_RAT", "M12_MAL_30_RAT", "M12_MAL_40_RAT", "M12_MAL_50_RAT", "M12_MAL_60_RAT",
	"M12_FME_1020_RAT", "M12_FME_30_RAT", "M12_FME_40_RAT", "M12_FME_50_RAT", "M12_FME_60_RAT",
	"MCT_UE_CLN_REU_RAT", "MCT_UE_CLN_NEW_RAT",
	"RC_M1_SHC_RSD_UE_CLN_RAT", "RC_M1_SHC_WP_UE_CLN_RAT", "RC_M1_SHC_FLP_UE_CLN_RAT",
}

// IsSentinel reports whether v is one of the SpecialMissing codes.
func IsSentinel(v float64) bool {
	for _, s := range SpecialMissing {
		if v == s {
			return true
		}
	}
	return false
}

// ParseNumber parses a provider numeric cell. Thousands separators are
// ignored; NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CoerceNumeric converts each text column whose non-empty values all parse as
// numbers into a float column. Columns named in skip are left as text. It
// returns the names of converted columns.
func CoerceNumeric(t *panel.Table, skip ...string) ([]string, error) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	var converted []string
	for _, c := range t.Columns() {
		if c.Kind != panel.KindText || skipped[c.Name] {
			continue
		}
		out := panel.NewFloatColumn(c.Name, c.Len())
		ok := true
		for i := 0; i < c.Len(); i++ {
			if !c.IsValid(i) || strings.TrimSpace(c.Text[i]) == "" {
				continue
			}
			v, parsed := ParseNumber(c.Text[i])
			if !parsed {
				ok = false
				break
			}
			out.SetFloat(i, v)
		}
		if !ok {
			continue
		}
		if err := t.Replace(out); err != nil {
			return converted, err
		}
		converted = append(converted, c.Name)
	}
	return converted, nil
}

// ReplaceSentinels marks every numeric sentinel value as missing and returns
// the number of cells changed.
func ReplaceSentinels(t *panel.Table) int {
	n := 0
	for _, c := range t.Columns() {
		if !c.Kind.Numeric() {
			continue
		}
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.FloatAt(i); ok && IsSentinel(v) {
				c.SetMissing(i)
				n++
			}
		}
	}
	return n
}

// StandardizeRates rescales 0-100 rate columns to 0-1. Unparseable cells and
// sentinels become missing. Absent columns are skipped.
func StandardizeRates(t *panel.Table, cols []string) ([]string, error) {
	var done []string
	for _, name := range cols {
		src := t.Col(name)
		if src == nil {
			continue
		}
		out := panel.NewFloatColumn(name, src.Len())
		for i := 0; i < src.Len(); i++ {
			var (
				v  float64
				ok bool
			)
			if src.Kind == panel.KindText {
				if src.IsValid(i) {
					v, ok = ParseNumber(src.Text[i])
				}
			} else {
				v, ok = src.FloatAt(i)
			}
			if !ok || IsSentinel(v) {
				continue
			}
			out.SetFloat(i, v/100)
		}
		if err := t.Replace(out); err != nil {
			return done, err
		}
		done = append(done, name)
	}
	return done, nil
}
