package panel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar month encoded as year*12 + (month-1). Differences between
// two Months are whole-month distances.
type Month int64

// NewMonth builds a Month from a year and a 1-based month.
func NewMonth(year int, month time.Month) Month {
	return Month(int64(year)*12 + int64(month) - 1)
}

// MonthOf truncates t to its calendar month.
func MonthOf(t time.Time) Month { return NewMonth(t.Year(), t.Month()) }

func (m Month) Year() int { return int(int64(m) / 12) }

func (m Month) Month() time.Month { return time.Month(int64(m)%12 + 1) }

// Time returns the first day of the month in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// String formats the month as YYYYMM, the provider's wire format.
func (m Month) String() string { return fmt.Sprintf("%04d%02d", m.Year(), int(m.Month())) }

// ParseMonth parses the fixed 6-digit YYYYMM format.
func ParseMonth(s string) (Month, bool) {
	s = strings.TrimSpace(s)
	// values exported by spreadsheets sometimes carry a trailing ".0"
	s = strings.TrimSuffix(s, ".0")
	if len(s) != 6 {
		return 0, false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, false
	}
	mo, err := strconv.Atoi(s[4:])
	if err != nil || mo < 1 || mo > 12 {
		return 0, false
	}
	return NewMonth(y, time.Month(mo)), true
}

var dateLayouts = []string{
	"20060102", "2006-01-02", "2006/01/02", "2006.01.02",
	time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04",
}

// ParseDateMonth parses a calendar date in one of the layouts seen in merchant-info
// extracts and truncates it to its month. A bare YYYYMM is accepted as well.
func ParseDateMonth(s string) (Month, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return MonthOf(t), true
		}
	}
	return ParseMonth(s)
}
