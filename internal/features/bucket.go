// Package features derives numeric signals from the merchant panel: bucket
// parsing, missing-value normalization, peer z-scores and rolling windows.
package features

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// Suffixes appended to a bucketed column.
const (
	OrdinalSuffix  = "_ORD"
	MidpointSuffix = "_MID"
)

// BucketColumns are the provider fields encoded as "<rank>_<label>" strings.
var BucketColumns = []string{
	"MCT_OPE_MS_CN", "RC_M1_SAA", "RC_M1_TO_UE_CT",
	"RC_M1_UE_CUS_CN", "RC_M1_AV_NP_AT", "APV_CE_RAT",
}

var (
	ordinalPattern = regexp.MustCompile(`^(\d+)_`)
	rangePattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*%?`)
	barePattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%?`)
)

// bucketVocabulary maps known band phrases to a representative share.
var bucketVocabulary = []struct {
	phrases  []string
	midpoint float64
}{
	{[]string{"90%초과", "90% 초과"}, 0.95},
	{[]string{"75-90%"}, 0.825},
	{[]string{"50-75%"}, 0.625},
	{[]string{"25-50%"}, 0.375},
	{[]string{"10-25%"}, 0.175},
	{[]string{"10%이하", "10% 이하", "1구간"}, 0.05},
}

// Bucket is the parsed form of one bucketed value.
type Bucket struct {
	Ordinal     int64
	HasOrdinal  bool
	Midpoint    float64
	HasMidpoint bool
}

// ParseBucket extracts the rank prefix and a midpoint share from a bucket
// label. Both parts are optional and parsed independently; unparseable input
// yields an empty Bucket. A midpoint outside [0,1] is treated as missing.
func ParseBucket(raw string) Bucket {
	var b Bucket
	s := strings.TrimSpace(raw)
	if s == "" {
		return b
	}
	rest := s
	if m := ordinalPattern.FindStringSubmatchIndex(s); m != nil {
		if n, err := strconv.ParseInt(s[m[2]:m[3]], 10, 64); err == nil {
			b.Ordinal, b.HasOrdinal = n, true
		}
		rest = s[m[1]:]
	}
	b.Midpoint, b.HasMidpoint = midpoint(rest)
	return b
}

func midpoint(s string) (float64, bool) {
	if m := rangePattern.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return (lo + hi) / 2 / 100, true
		}
	}
	for _, v := range bucketVocabulary {
		for _, p := range v.phrases {
			if strings.Contains(s, p) {
				return v.midpoint, true
			}
		}
	}
	if m := barePattern.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return share(v / 100)
		}
	}
	return 0, false
}

func share(v float64) (float64, bool) {
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// AddBucketFeatures appends <col>_ORD and <col>_MID for every listed column
// present in t. Source columns are kept; absent columns are skipped.
func AddBucketFeatures(t *panel.Table, cols []string) ([]string, error) {
	var added []string
	for _, name := range cols {
		src := t.Col(name)
		if src == nil {
			continue
		}
		ord := panel.NewIntColumn(name+OrdinalSuffix, t.Rows())
		mid := panel.NewFloatColumn(name+MidpointSuffix, t.Rows())
		for i := 0; i < t.Rows(); i++ {
			if !src.IsValid(i) {
				continue
			}
			b := ParseBucket(src.TextAt(i))
			if b.HasOrdinal {
				ord.SetInt(i, b.Ordinal)
			}
			if b.HasMidpoint {
				mid.SetFloat(i, b.Midpoint)
			}
		}
		if err := t.Add(ord); err != nil {
			return added, err
		}
		if err := t.Add(mid); err != nil {
			return added, err
		}
		added = append(added, name)
	}
	return added, nil
}
