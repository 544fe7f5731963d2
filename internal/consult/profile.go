// Package consult turns one merchant-month of the labeled panel into a
// consultant prompt and sends it to an LLM runtime.
package consult

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/KaramelBytes/earlywarn-cli/internal/features"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// Merchant info fields used for the store card.
const (
	IDColumn       = "ENCODED_MCT"
	MonthColumn    = "TA_YM"
	NameColumn     = "MCT_NM"
	BrandColumn    = "MCT_BRD_NUM"
	IndustryColumn = "HPSN_MCT_ZCD_NM"
	OpenColumn     = "ARE_D"
)

// Unknown marks a profile attribute the data cannot support.
const Unknown = "미상"

// ErrMerchantNotFound is returned when no panel row matches the request.
var ErrMerchantNotFound = errors.New("merchant not found in panel")

// Signal is one label or KPI reading of the selected row.
type Signal struct {
	Name    string
	Value   float64
	Defined bool
}

// Profile is the store card handed to the consultant.
type Profile struct {
	MerchantID  string
	Month       string
	StoreName   string
	Industry    string
	Franchise   bool
	StoreAge    string
	AgeMonths   int // -1 when the open date is unknown
	CustomerAge string
	Behavior    []string
	KPI         []Signal
	Risks       []Signal
}

// AtRisk reports whether y_risk_any is set on the row.
func (p *Profile) AtRisk() bool {
	for _, r := range p.Risks {
		if r.Name == labels.RiskAnyColumn {
			return r.Defined && r.Value == 1
		}
	}
	return false
}

// FindRow returns the row of merchant id in month (YYYYMM), or its latest
// month when month is empty.
func FindRow(t *panel.Table, id, month string) (int, error) {
	ids := t.Col(IDColumn)
	if ids == nil {
		return -1, fmt.Errorf("%q: %w", IDColumn, panel.ErrMissingColumn)
	}
	var want panel.Month
	if month != "" {
		m, ok := panel.ParseMonth(month)
		if !ok {
			return -1, fmt.Errorf("invalid month %q (want YYYYMM)", month)
		}
		want = m
	}
	best, bestMonth := -1, panel.Month(-1)
	for i := 0; i < t.Rows(); i++ {
		if !ids.IsValid(i) || ids.TextAt(i) != id {
			continue
		}
		m, ok := monthAt(t, i)
		switch {
		case month != "":
			if ok && m == want {
				return i, nil
			}
		case best < 0 || (ok && m > bestMonth):
			best = i
			if ok {
				bestMonth = m
			}
		}
	}
	if best < 0 {
		if month != "" {
			return -1, fmt.Errorf("%w: %s in %s", ErrMerchantNotFound, id, month)
		}
		return -1, fmt.Errorf("%w: %s", ErrMerchantNotFound, id)
	}
	return best, nil
}

// ProfileFromRow derives the store card from row i. Columns may be typed or
// plain text as read back from the exported CSV.
func ProfileFromRow(t *panel.Table, i int) (*Profile, error) {
	if i < 0 || i >= t.Rows() {
		return nil, fmt.Errorf("row %d out of range", i)
	}
	p := &Profile{
		MerchantID: text(t, IDColumn, i),
		StoreName:  text(t, NameColumn, i),
		AgeMonths:  -1,
	}
	rowMonth, hasMonth := monthAt(t, i)
	if hasMonth {
		p.Month = rowMonth.String()
	}
	p.Industry = ClassifyIndustry(text(t, IndustryColumn, i))
	if p.Industry == "기타" && p.StoreName != "" {
		if byName := ClassifyIndustry(p.StoreName); byName != "기타" {
			p.Industry = byName
		}
	}
	p.Franchise = text(t, BrandColumn, i) != "" || IsFranchiseName(p.StoreName)

	p.StoreAge = Unknown
	if open, ok := panel.ParseDateMonth(text(t, OpenColumn, i)); ok && hasMonth {
		p.AgeMonths = int(rowMonth - open)
		p.StoreAge = StoreAge(p.AgeMonths)
	}
	p.CustomerAge = customerAge(t, i)
	p.Behavior = behavior(t, i)

	for _, name := range []string{labels.KPIProxyColumn, labels.KPIProxyMA3Column} {
		if t.Has(name) {
			v, ok := number(t, name, i)
			p.KPI = append(p.KPI, Signal{Name: name, Value: v, Defined: ok})
		}
	}
	for _, name := range t.Names() {
		if labels.IsLabel(name) {
			v, ok := number(t, name, i)
			p.Risks = append(p.Risks, Signal{Name: name, Value: v, Defined: ok})
		}
	}
	return p, nil
}

// StoreAge buckets months since opening.
func StoreAge(months int) string {
	switch {
	case months < 0:
		return Unknown
	case months <= 12:
		return "신규"
	case months <= 24:
		return "전환기"
	}
	return "오래된"
}

var industryKeywords = []struct {
	category string
	words    []string
}{
	{"주점/주류", []string{"주점", "호프", "맥주", "와인", "소주", "이자카야", "포차", "요리주점"}},
	{"카페/디저트", []string{"카페", "커피", "디저트", "도너츠", "빙수", "와플", "마카롱", "베이커리", "제과", "아이스크림"}},
	{"한식", []string{"한식", "국밥", "백반", "찌개", "감자탕", "분식", "치킨", "한정식", "죽", "고기", "족발", "국수", "냉면"}},
	{"일식", []string{"일식", "초밥", "돈가스", "라멘", "덮밥", "소바", "우동"}},
	{"중식", []string{"중식", "짬뽕", "짜장", "마라", "훠궈", "딤섬"}},
	{"양식/세계요리", []string{"양식", "스테이크", "피자", "파스타", "햄버거", "샌드위치", "토스트", "버거", "베트남", "태국", "멕시칸"}},
}

// ClassifyIndustry maps a business-type or store name to a coarse industry
// by keyword, first match in table order; unmatched names are "기타".
func ClassifyIndustry(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "기타"
	}
	for _, ik := range industryKeywords {
		if containsAny(n, ik.words) {
			return ik.category
		}
	}
	return "기타"
}

var (
	nameNoise     = regexp.MustCompile(`[\s*\-()\[\]{}_/\\.|,!?&^%$#@~` + "`" + `+=:;"']`)
	brandKeywords = []string{
		"파리바게", "뚜레쥬르", "배스킨", "던킨", "투썸", "이디야", "빽다방", "메가커피", "메가mgc", "컴포즈",
		"할리스", "스타벅스", "탐앤탐스", "공차", "폴바셋", "교촌", "네네", "호식이", "처갓집", "굽네",
		"bbq", "bhc", "맘스터치", "죠스", "신전", "명랑", "두끼", "본죽", "원할머니", "한솥",
		"도미노", "피자헛", "파파존스", "버거킹", "서브웨이", "이삭토스트", "롯데리아",
	}
)

// IsFranchiseName reports whether a store name carries a known brand.
func IsFranchiseName(name string) bool {
	n := nameNoise.ReplaceAllString(strings.ToLower(name), "")
	return n != "" && containsAny(n, brandKeywords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var ageGroups = []struct {
	label string
	cols  []string
}{
	{"20대 이하 고객 중심", []string{"M12_MAL_1020_RAT", "M12_FME_1020_RAT"}},
	{"30~40대 고객 중심", []string{"M12_MAL_30_RAT", "M12_FME_30_RAT", "M12_MAL_40_RAT", "M12_FME_40_RAT"}},
	{"50대 이상 고객 중심", []string{"M12_MAL_50_RAT", "M12_FME_50_RAT", "M12_MAL_60_RAT", "M12_FME_60_RAT"}},
}

func customerAge(t *panel.Table, i int) string {
	best, bestShare := Unknown, -1.0
	for _, g := range ageGroups {
		sum, seen := 0.0, false
		for _, c := range g.cols {
			if v, ok := number(t, c, i); ok {
				sum += v
				seen = true
			}
		}
		if seen && sum > bestShare {
			best, bestShare = g.label, sum
		}
	}
	return best
}

type choice struct {
	label string
	col   string
}

var behaviorSets = [][]choice{
	{{"재방문 고객 중심", "MCT_UE_CLN_REU_RAT"}, {"신규 고객 중심", "MCT_UE_CLN_NEW_RAT"}},
	{{"거주 고객 중심", "RC_M1_SHC_RSD_UE_CLN_RAT"}, {"직장인 고객 중심", "RC_M1_SHC_WP_UE_CLN_RAT"}, {"유동인구 고객 중심", "RC_M1_SHC_FLP_UE_CLN_RAT"}},
}

// behavior picks the dominant share within each set; ties keep the first.
func behavior(t *panel.Table, i int) []string {
	var out []string
	for _, set := range behaviorSets {
		best, bestShare := "", -1.0
		for _, c := range set {
			if v, ok := number(t, c.col, i); ok && v > bestShare {
				best, bestShare = c.label, v
			}
		}
		if best != "" {
			out = append(out, best)
		}
	}
	return out
}

func text(t *panel.Table, name string, i int) string {
	c := t.Col(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.TextAt(i))
}

func number(t *panel.Table, name string, i int) (float64, bool) {
	c := t.Col(name)
	if c == nil || !c.IsValid(i) {
		return 0, false
	}
	if c.Kind.Numeric() {
		return c.FloatAt(i)
	}
	return features.ParseNumber(c.TextAt(i))
}

func monthAt(t *panel.Table, i int) (panel.Month, bool) {
	c := t.Col(MonthColumn)
	if c == nil {
		return 0, false
	}
	if c.Kind == panel.KindMonth {
		return c.MonthAt(i)
	}
	return panel.ParseMonth(c.TextAt(i))
}
