package analysis

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

var scores = []float64{10, 11, 9.5, 10.5, 9.8, 10.2, 8.8, 9.7, 50}

func fixtureTable(t *testing.T) *panel.Table {
	t.Helper()
	n := len(scores)
	region := panel.NewTextColumn("MCT_SIGUNGU_NM", n)
	score := panel.NewFloatColumn("RC_M1_SAA_MID", n)
	label := panel.NewFloatColumn("y_drop_h1", n)
	for i, v := range scores {
		if i%3 == 0 {
			region.SetText(i, "서울 성동구")
		} else if i%3 == 1 {
			region.SetText(i, "서울 중구")
		}
		score.SetFloat(i, v)
		if i < 5 {
			label.SetFloat(i, float64(i%2))
		}
	}
	tb := panel.New(n)
	for _, c := range []*panel.Column{region, score, label} {
		if err := tb.Add(c); err != nil {
			t.Fatalf("add %s: %v", c.Name, err)
		}
	}
	return tb
}

func TestSummarizeAndMarkdown(t *testing.T) {
	tb := fixtureTable(t)
	opt := DefaultOptions()
	opt.SampleRows = 2

	rep := Summarize("dataset_features_labels.csv", tb, []string{"y_drop_h1"}, opt)
	if rep.Rows != 9 || rep.Columns != 3 {
		t.Fatalf("rows/cols = %d/%d, want 9/3", rep.Rows, rep.Columns)
	}
	if len(rep.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(rep.Samples))
	}
	region := rep.Cols[0]
	if region.NonNull != 6 || region.Missing != 3 || region.Unique != 2 {
		t.Fatalf("region summary = %+v", region)
	}
	score := rep.Cols[1]
	if score.OutliersCount != 1 {
		t.Fatalf("outliers = %d, want 1", score.OutliersCount)
	}
	if score.Min != 8.8 || score.Max != 50 {
		t.Fatalf("min/max = %v/%v", score.Min, score.Max)
	}

	md := rep.Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"File: dataset_features_labels.csv",
		"Rows: 9",
		"- RC_M1_SAA_MID: float (non-null 9, missing 0.0%)",
		"outliers: 1 above |z|>3.5",
		"- MCT_SIGUNGU_NM: text (non-null 6, missing 33.3%)",
		"[LABELS]",
		"| y_drop_h1 | 5 |",
		"[HEAD AND SAMPLE ROWS]",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestSummarizeTruncatesSchema(t *testing.T) {
	tb := fixtureTable(t)
	opt := DefaultOptions()
	opt.MaxColumns = 1
	rep := Summarize("x", tb, nil, opt)
	if len(rep.Cols) != 1 {
		t.Fatalf("cols = %d, want 1", len(rep.Cols))
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "truncated") {
		t.Fatalf("warnings = %#v", rep.Warnings)
	}
}

func TestSummarizePrefix(t *testing.T) {
	rep := Summarize("x", fixtureTable(t), nil, Options{Prefix: "y_"})
	if len(rep.Cols) != 1 || rep.Cols[0].Name != "y_drop_h1" {
		t.Fatalf("cols = %+v", rep.Cols)
	}
}

func TestDescribeColumn(t *testing.T) {
	c := panel.NewFloatColumn("y_risk_any", 5)
	for i, v := range []float64{0, 1, 0, math.NaN(), 1} {
		c.SetFloat(i, v)
	}
	s := DescribeColumn(c)
	if s.Count != 4 {
		t.Fatalf("count = %d, want 4", s.Count)
	}
	checks := map[string][2]float64{
		"mean": {s.Mean, 0.5},
		"std":  {s.Std, math.Sqrt(1.0 / 3.0)},
		"min":  {s.Min, 0},
		"25%":  {s.Q25, 0},
		"50%":  {s.Q50, 0.5},
		"75%":  {s.Q75, 1},
		"max":  {s.Max, 1},
	}
	for name, v := range checks {
		if math.Abs(v[0]-v[1]) > 1e-12 {
			t.Fatalf("%s = %v, want %v", name, v[0], v[1])
		}
	}
	rec := s.Record()
	if len(rec) != len(DescribeHeader) || rec[0] != "4" || rec[1] != "0.5" {
		t.Fatalf("record = %#v", rec)
	}
}

func TestDescribeDegenerate(t *testing.T) {
	empty := DescribeColumn(panel.NewFloatColumn("e", 3))
	if empty.Count != 0 || !math.IsNaN(empty.Mean) || !math.IsNaN(empty.Max) {
		t.Fatalf("empty = %+v", empty)
	}
	if rec := empty.Record(); rec[0] != "0" || rec[1] != "" {
		t.Fatalf("empty record = %#v", rec)
	}
	one := panel.NewFloatColumn("o", 1)
	one.SetFloat(0, 7)
	s := DescribeColumn(one)
	if s.Mean != 7 || !math.IsNaN(s.Std) || s.Q25 != 7 {
		t.Fatalf("single = %+v", s)
	}
}

func TestDescribeSkipsTextAndAbsent(t *testing.T) {
	tb := fixtureTable(t)
	got := Describe(tb, []string{"MCT_SIGUNGU_NM", "nope", "y_drop_h1"})
	if len(got) != 1 || got[0].Name != "y_drop_h1" {
		t.Fatalf("describe = %+v", got)
	}
}

func TestParseSummary(t *testing.T) {
	header := append([]string{"Unnamed: 0"}, DescribeHeader...)
	rows := [][]string{
		{"y_drop_h1", "5", "0.4", "0.5477225575051661", "0", "0", "0", "1", "1"},
		{"y_close_h3", "0", "", "", "", "", "", "", ""},
	}
	tb := panel.New(len(rows))
	for j, name := range header {
		c := panel.NewTextColumn(name, len(rows))
		for i, r := range rows {
			if r[j] != "" {
				c.SetText(i, r[j])
			}
		}
		if err := tb.Add(c); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := ParseSummary(tb)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if len(stats) != 2 || stats[0].Name != "y_drop_h1" || stats[0].Count != 5 || stats[0].Q75 != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[1].Count != 0 || !math.IsNaN(stats[1].Mean) {
		t.Fatalf("empty label = %+v", stats[1])
	}
	md := (&Report{Name: "label_summary.csv", Labels: stats}).Markdown()
	if !strings.Contains(md, "| y_drop_h1 | 5 | 0.4 |") {
		t.Fatalf("markdown missing label row:\n%s", md)
	}

	if _, err := ParseSummary(fixtureTable(t)); err == nil {
		t.Fatal("expected error for a non-summary table")
	}
}

func TestMarkdownClipsSamplesOnRunes(t *testing.T) {
	long := strings.Repeat("성수동 골목 카페 ", 12)
	rep := &Report{
		Cols:    []ColumnSummary{{Name: "MCT_NM", Kind: "text"}},
		Samples: [][]string{{long}, {"메가커피"}},
	}
	md := rep.Markdown()
	if !utf8.ValidString(md) {
		t.Fatalf("markdown is not valid UTF-8")
	}
	want := string([]rune(long)[:77]) + "..."
	if !strings.Contains(md, "| "+want+" |") || !strings.Contains(md, "| 메가커피 |") {
		t.Fatalf("unexpected sample rows:\n%s", md)
	}
	if got := clip("abc", 80); got != "abc" {
		t.Fatalf("short value changed: %q", got)
	}
}
