package pipeline

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/earlywarn-cli/internal/features"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// Stats summarizes what Transform did.
type Stats struct {
	Rows       int
	Columns    int
	Merchants  int
	Months     []panel.Month
	Duplicates map[string]int // source -> rows dropped by dedupe
	BadMonths  int            // rows whose TA_YM did not parse
	Sentinels  int
}

// Transform turns raw sources into the labeled panel. The sources are not
// modified.
func Transform(src *Sources, opt Options, log *zap.Logger) (*panel.Table, *Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st := &Stats{Duplicates: map[string]int{}}
	start := time.Now()

	kpi, err := prepareMonthly("kpi", src.KPI, st, log)
	if err != nil {
		return nil, nil, err
	}
	cust, err := prepareMonthly("cust", src.Cust, st, log)
	if err != nil {
		return nil, nil, err
	}
	if !src.Info.Has(IDColumn) {
		return nil, nil, fmt.Errorf("info table: %q: %w", IDColumn, panel.ErrMissingColumn)
	}
	info, n, err := panel.Dedupe(src.Info, []string{IDColumn})
	if err != nil {
		return nil, nil, fmt.Errorf("info table: %w", err)
	}
	st.Duplicates["info"] = n
	if n > 0 {
		log.Warn("dropped duplicate merchants", zap.String("source", "info"), zap.Int("rows", n))
	}

	// Field parser: bucketed strings live in the KPI extract.
	added, err := features.AddBucketFeatures(kpi, features.BucketColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("bucket features: %w", err)
	}
	log.Debug("bucket features", zap.Int("columns", len(added)))

	for _, part := range []struct {
		name string
		t    *panel.Table
	}{{"kpi", kpi}, {"cust", cust}} {
		conv, err := features.CoerceNumeric(part.t, IDColumn, MonthColumn)
		if err != nil {
			return nil, nil, fmt.Errorf("%s table: %w", part.name, err)
		}
		st.Sentinels += features.ReplaceSentinels(part.t)
		rates, err := features.StandardizeRates(part.t, features.RateColumns)
		if err != nil {
			return nil, nil, fmt.Errorf("%s table: %w", part.name, err)
		}
		log.Debug("normalized source",
			zap.String("source", part.name),
			zap.Int("numeric", len(conv)),
			zap.Int("rates", len(rates)))
	}

	merged, err := panel.OuterJoin(kpi, cust, []string{IDColumn, MonthColumn}, panel.Suffixes{Left: "_KPI", Right: "_CUST"})
	if err != nil {
		return nil, nil, fmt.Errorf("merge kpi and cust: %w", err)
	}
	merged, err = panel.LeftJoin(merged, info, []string{IDColumn}, panel.Suffixes{Left: "_PANEL", Right: "_INFO"})
	if err != nil {
		return nil, nil, fmt.Errorf("merge info: %w", err)
	}
	for _, k := range []string{RegionColumn, ZoneColumn} {
		if !merged.Has(k) {
			log.Warn("peer key absent; z-scores will be missing", zap.String("column", k))
			if err := merged.Add(panel.NewTextColumn(k, merged.Rows())); err != nil {
				return nil, nil, err
			}
		}
	}
	log.Info("merged sources", zap.Int("rows", merged.Rows()), zap.Int("columns", len(merged.Columns())))

	zs, err := features.AddPeerZScores(merged, PeerKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("peer z-scores: %w", err)
	}

	sorted, err := panel.SortByEntity(merged, IDColumn, MonthColumn)
	if err != nil {
		return nil, nil, err
	}
	spans, err := panel.EntitySpans(sorted, IDColumn)
	if err != nil {
		return nil, nil, err
	}
	rolled, err := features.AddRollingFeatures(sorted, spans, opt.Windows)
	if err != nil {
		return nil, nil, fmt.Errorf("rolling features: %w", err)
	}
	log.Debug("derived features", zap.Int("peer_z", len(zs)), zap.Int("rolling", len(rolled)))

	out, err := labels.Build(sorted, opt.labelOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("labels: %w", err)
	}

	st.Rows, st.Columns = out.Rows(), len(out.Columns())
	st.Merchants, st.Months = entityCounts(out)
	log.Info("built panel",
		zap.Int("rows", st.Rows),
		zap.Int("columns", st.Columns),
		zap.Int("merchants", st.Merchants),
		zap.Int("months", len(st.Months)),
		zap.Duration("elapsed", time.Since(start)))
	return out, st, nil
}

// prepareMonthly parses TA_YM into a month column and drops duplicate
// (merchant, month) rows, keeping the first.
func prepareMonthly(name string, src *panel.Table, st *Stats, log *zap.Logger) (*panel.Table, error) {
	for _, k := range []string{IDColumn, MonthColumn} {
		if !src.Has(k) {
			return nil, fmt.Errorf("%s table: %q: %w", name, k, panel.ErrMissingColumn)
		}
	}
	t := src.Take(identity(src.Rows()))
	raw := t.Col(MonthColumn)
	if raw.Kind != panel.KindMonth {
		months := panel.NewMonthColumn(MonthColumn, t.Rows())
		for i := 0; i < t.Rows(); i++ {
			if !raw.IsValid(i) {
				continue
			}
			if m, ok := panel.ParseMonth(raw.TextAt(i)); ok {
				months.SetMonth(i, m)
			} else {
				st.BadMonths++
			}
		}
		if err := t.Replace(months); err != nil {
			return nil, err
		}
	}
	out, n, err := panel.Dedupe(t, []string{IDColumn, MonthColumn})
	if err != nil {
		return nil, fmt.Errorf("%s table: %w", name, err)
	}
	st.Duplicates[name] = n
	if n > 0 {
		log.Warn("dropped duplicate merchant-months", zap.String("source", name), zap.Int("rows", n))
	}
	return out, nil
}

func entityCounts(t *panel.Table) (int, []panel.Month) {
	ids := map[string]bool{}
	if c := t.Col(IDColumn); c != nil {
		for i := 0; i < c.Len(); i++ {
			if c.IsValid(i) {
				ids[c.TextAt(i)] = true
			}
		}
	}
	seen := map[panel.Month]bool{}
	var months []panel.Month
	if c := t.Col(MonthColumn); c != nil {
		for i := 0; i < c.Len(); i++ {
			if m, ok := c.MonthAt(i); ok && !seen[m] {
				seen[m] = true
				months = append(months, m)
			}
		}
	}
	sort.Slice(months, func(a, b int) bool { return months[a] < months[b] })
	return len(ids), months
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
