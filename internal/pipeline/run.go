package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/earlywarn-cli/internal/analysis"
	"github.com/KaramelBytes/earlywarn-cli/internal/export"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/modelprep"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
	"github.com/KaramelBytes/earlywarn-cli/internal/run"
	"github.com/KaramelBytes/earlywarn-cli/internal/utils"
)

// FeaturesFile is the feature-set descriptor written for a prepared method.
func FeaturesFile(m modelprep.Method) string { return string(m) + "_features.json" }

// Run executes the whole pipeline and commits every artifact plus run.json
// into opt.OutDir. Nothing under the final names is written when any stage
// fails.
func Run(ctx context.Context, opt Options, log *zap.Logger) (*run.Manifest, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	m := run.New(opt.OutDir)
	log = log.With(zap.String("run", m.ID))

	start := time.Now()
	src, err := Extract(opt)
	if err != nil {
		return nil, err
	}
	log.Info("extracted sources",
		zap.Int("info_rows", src.Info.Rows()),
		zap.Int("kpi_rows", src.KPI.Rows()),
		zap.Int("cust_rows", src.Cust.Rows()),
		zap.Duration("elapsed", time.Since(start)))

	tbl, st, err := Transform(src, opt, log)
	if err != nil {
		return nil, err
	}
	datasets, err := modelprep.Prepare(tbl, opt.Method, opt.prepOptions())
	if err != nil {
		return nil, fmt.Errorf("model prep: %w", err)
	}

	b := export.NewBundle(opt.OutDir)
	if err := stage(ctx, b, tbl, datasets, opt, log); err != nil {
		b.Discard()
		return nil, err
	}
	for _, in := range []struct {
		role, path string
		t          *panel.Table
	}{{"info", opt.InfoPath, src.Info}, {"kpi", opt.KPIPath, src.KPI}, {"cust", opt.CustPath, src.Cust}} {
		m.AddInput(run.Input{
			Role:    in.role,
			Path:    in.path,
			Rows:    in.t.Rows(),
			Columns: len(in.t.Columns()),
			Dropped: st.Duplicates[in.role],
		})
	}
	m.Settings = settings(opt)
	m.Rows, m.Columns, m.Merchants = st.Rows, st.Columns, st.Merchants
	for _, mo := range st.Months {
		m.Months = append(m.Months, mo.String())
	}
	for _, name := range b.Names() {
		m.Artifacts[name] = name
	}
	for _, name := range labels.Names(tbl) {
		m.Labels[name] = prevalence(tbl.Col(name))
	}
	manifest, err := m.Encode()
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("encode run manifest: %w", err)
	}
	// run.json is staged last so it is published after every artifact.
	if err := b.Add(run.FileName, manifest); err != nil {
		b.Discard()
		return nil, err
	}
	if _, err := b.Commit(); err != nil {
		return nil, fmt.Errorf("commit artifacts: %w", err)
	}
	log.Info("run complete",
		zap.String("outdir", opt.OutDir),
		zap.Int("artifacts", len(m.Artifacts)),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

func stage(ctx context.Context, b *export.Bundle, tbl *panel.Table, datasets []modelprep.Dataset, opt Options, log *zap.Logger) error {
	if err := export.StageTable(b, export.PanelBase, tbl); err != nil {
		return fmt.Errorf("encode panel: %w", err)
	}
	labelCols := labels.Names(tbl)
	if err := export.StageSummary(b, analysis.Describe(tbl, labelCols), opt.XLSX); err != nil {
		return fmt.Errorf("encode label summary: %w", err)
	}
	if opt.SQLite {
		p, err := b.TempPath(export.PanelSQLite)
		if err != nil {
			return err
		}
		wide := append([]string{labels.KPIProxyColumn, labels.KPIProxyMA3Column}, labelCols...)
		if err := export.WriteSQLite(ctx, p, tbl, wide); err != nil {
			return err
		}
	}
	for _, ds := range datasets {
		if err := export.StageTable(b, string(ds.Method)+"_train", ds.Train); err != nil {
			return fmt.Errorf("encode %s train: %w", ds.Method, err)
		}
		if err := export.StageTable(b, string(ds.Method)+"_test", ds.Test); err != nil {
			return fmt.Errorf("encode %s test: %w", ds.Method, err)
		}
		data, err := utils.PrettyJSON(ds.Features)
		if err != nil {
			return err
		}
		if err := b.Add(FeaturesFile(ds.Method), data); err != nil {
			return err
		}
		log.Info("prepared dataset",
			zap.String("method", string(ds.Method)),
			zap.String("cutoff", ds.Features.Cutoff),
			zap.Int("train_rows", ds.Features.TrainRows),
			zap.Int("test_rows", ds.Features.TestRows),
			zap.Int("features", len(ds.Features.Numeric)+len(ds.Features.Categorical)))
	}
	log.Debug("staged artifacts", zap.Strings("names", b.Names()))
	return nil
}

func settings(opt Options) run.Settings {
	s := run.Settings{
		Method:        string(opt.Method),
		KPICandidates: opt.KPICandidates,
		DropHorizons:  opt.DropHorizons,
		DropThreshold: opt.DropThreshold,
		CloseHorizon:  opt.CloseHorizon,
		Windows:       opt.Windows,
		TestMonths:    opt.TestMonths,
		SQLite:        opt.SQLite,
		XLSX:          opt.XLSX,
	}
	if opt.Delimiter != 0 {
		s.Delimiter = string(opt.Delimiter)
	}
	return s
}

func prevalence(c *panel.Column) run.Prevalence {
	var p run.Prevalence
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.FloatAt(i); ok {
			p.Defined++
			if v == 1 {
				p.Positive++
			}
		}
	}
	if p.Defined > 0 {
		p.Rate = float64(p.Positive) / float64(p.Defined)
	}
	return p
}
