package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/earlywarn-cli/internal/export"
	"github.com/KaramelBytes/earlywarn-cli/internal/labels"
	"github.com/KaramelBytes/earlywarn-cli/internal/modelprep"
	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
	"github.com/KaramelBytes/earlywarn-cli/internal/run"
	"github.com/KaramelBytes/earlywarn-cli/internal/tableio"
)

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

// fixtureOptions writes two merchants over 202401..202406. A's KPI falls
// 100, 95, 90, 80, 70, 50; B is flat and closes in May 2024.
func fixtureOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	opt := DefaultOptions()
	opt.InfoPath = writeFile(t, dir, "info.csv",
		"ENCODED_MCT,MCT_SIGUNGU_NM,HPSN_MCT_BZN_CD_NM,ARE_D,MCT_ME_D",
		"A,성동구,성수,20200101,",
		"B,성동구,성수,20230601,20240515",
		"C,마포구,연남,20210101,",
	)
	kpi := []string{"ENCODED_MCT,TA_YM,RC_M1_SAA,KPI_VALUE,DLV_SAA_RAT"}
	custRows := []string{"ENCODED_MCT,TA_YM,MCT_UE_CLN_REU_RAT"}
	avals := []string{"100", "95", "90", "80", "70", "50"}
	for i, ym := range []string{"202401", "202402", "202403", "202404", "202405", "202406"} {
		rate := "20"
		if i == 2 {
			rate = "-999999.9"
		}
		kpi = append(kpi, "A,"+ym+",3_50-75%,"+avals[i]+","+rate)
		if i == 0 {
			kpi = append(kpi, "A,"+ym+",1_10%이하,999,5")
		}
		kpi = append(kpi, "B,"+ym+",1_10%이하,100,"+rate)
		custRows = append(custRows, "A,"+ym+",30", "B,"+ym+",40")
	}
	opt.KPIPath = writeFile(t, dir, "kpi.csv", kpi...)
	opt.CustPath = writeFile(t, dir, "cust.csv", custRows...)
	opt.OutDir = filepath.Join(dir, "out")
	opt.KPICandidates = []string{"KPI_VALUE"}
	opt.DropHorizons = []int{1}
	return opt
}

func floatsOf(t *testing.T, tb *panel.Table, name string) []float64 {
	t.Helper()
	c := tb.Col(name)
	require.NotNil(t, c, name)
	out := make([]float64, c.Len())
	for i := range out {
		v, ok := c.FloatAt(i)
		if !ok {
			v = -1
		}
		out[i] = v
	}
	return out
}

func TestTransformEndToEnd(t *testing.T) {
	opt := fixtureOptions(t)
	src, err := Extract(opt)
	require.NoError(t, err)
	tb, st, err := Transform(src, opt, nil)
	require.NoError(t, err)

	assert.Equal(t, 12, tb.Rows())
	assert.Equal(t, 2, st.Merchants, "info-only merchant C is dropped")
	assert.Len(t, st.Months, 6)
	assert.Equal(t, 1, st.Duplicates["kpi"])

	// -1 stands for missing below.
	assert.Equal(t, []float64{-1, 0, 0, 0, 1, -1, -1, 0, 0, 0, 0, -1}, floatsOf(t, tb, labels.DropName(1)))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 1, 1, 1, -1, -1}, floatsOf(t, tb, labels.CloseName(3)))
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 0, 0, 1, 1, 1, 0, -1}, floatsOf(t, tb, labels.RiskAnyColumn))

	// first duplicate kept
	assert.Equal(t, 100.0, floatsOf(t, tb, "KPI_VALUE")[0])
	assert.Equal(t, 3.0, floatsOf(t, tb, "RC_M1_SAA_ORD")[0])
	assert.Equal(t, 0.625, floatsOf(t, tb, "RC_M1_SAA_MID")[0])

	rates := floatsOf(t, tb, "DLV_SAA_RAT")
	assert.InDelta(t, 0.2, rates[0], 1e-12)
	assert.Equal(t, -1.0, rates[2], "sentinel becomes missing")
	assert.InDelta(t, 0.3, floatsOf(t, tb, "MCT_UE_CLN_REU_RAT")[0], 1e-12)

	z := floatsOf(t, tb, "KPI_VALUE__PEER_Z")
	assert.Equal(t, -1.0, z[0], "zero variance group")
	assert.InDelta(t, -0.7071067811865475, z[1], 1e-9)
	assert.InDelta(t, 0.7071067811865475, z[7], 1e-9)

	assert.True(t, tb.Has("KPI_VALUE__MA3"))
	assert.True(t, tb.Has("KPI_VALUE__PCT1"))
	assert.True(t, tb.Has("KPI_VALUE__VOL12"))
	assert.False(t, tb.Has("KPI_VALUE__PCT1__MA3"))
	assert.Equal(t, panel.KindMonth, tb.Col(MonthColumn).Kind)
}

func TestRunWritesArtifactsAndManifest(t *testing.T) {
	opt := fixtureOptions(t)
	opt.Method = modelprep.All
	opt.TestMonths = 1
	opt.SQLite = true
	opt.XLSX = true

	m, err := Run(context.Background(), opt, nil)
	require.NoError(t, err)

	for _, name := range []string{
		export.PanelParquet, export.PanelCSV, export.PanelSQLite,
		export.LabelSummaryCSV, export.LabelSummaryXLSX,
		"classify_train.csv", "classify_test.parquet", FeaturesFile(modelprep.Classify),
		"cox_train.csv", "aft_test.csv", FeaturesFile(modelprep.AFT),
		run.FileName,
	} {
		_, err := os.Stat(filepath.Join(opt.OutDir, name))
		assert.NoError(t, err, name)
	}

	loaded, err := run.Load(opt.OutDir)
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.ID)
	assert.Equal(t, 12, loaded.Rows)
	assert.Equal(t, 2, loaded.Merchants)
	assert.Len(t, loaded.Inputs, 3)
	assert.Equal(t, 1, loaded.Inputs[1].Dropped)
	assert.Equal(t, run.Prevalence{Defined: 11, Positive: 4, Rate: 4.0 / 11}, loaded.Labels[labels.RiskAnyColumn])
	p, ok := loaded.Artifact(export.PanelCSV)
	require.True(t, ok)

	back, err := tableio.ReadCSV(p, ',')
	require.NoError(t, err)
	assert.Equal(t, 12, back.Rows())
	assert.Equal(t, "202405", back.Col(MonthColumn).TextAt(4))
	assert.Equal(t, "1", back.Col(labels.DropName(1)).TextAt(4))
	assert.False(t, back.Col(labels.DropName(1)).IsValid(5))

	summary, err := os.ReadFile(filepath.Join(opt.OutDir, export.LabelSummaryCSV))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "y_drop_h1,")
	assert.Contains(t, string(summary), "y_risk_any,11,")
}

func TestRunFailsBeforeWriting(t *testing.T) {
	opt := fixtureOptions(t)
	opt.Method = modelprep.Classify
	opt.TestMonths = 4
	_, err := Run(context.Background(), opt, nil)
	require.ErrorIs(t, err, modelprep.ErrInsufficientHistory)
	_, statErr := os.Stat(opt.OutDir)
	assert.True(t, os.IsNotExist(statErr), "no output directory on failure")

	opt = fixtureOptions(t)
	opt.KPICandidates = []string{"NOT_A_COLUMN"}
	_, err = Run(context.Background(), opt, nil)
	require.ErrorIs(t, err, labels.ErrNoKPICandidates)
}

func TestRunCommitLeavesNoPartialOutput(t *testing.T) {
	opt := fixtureOptions(t)
	blocker := filepath.Join(opt.OutDir, export.LabelSummaryCSV)
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	_, err := Run(context.Background(), opt, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit artifacts")

	entries, err := os.ReadDir(opt.OutDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the pre-existing directory remains")
	assert.Equal(t, export.LabelSummaryCSV, entries[0].Name())
}

func TestValidate(t *testing.T) {
	base := fixtureOptions(t)
	require.NoError(t, base.Validate())
	for name, mutate := range map[string]func(*Options){
		"no inputs":    func(o *Options) { o.KPIPath = "" },
		"no outdir":    func(o *Options) { o.OutDir = "" },
		"no horizons":  func(o *Options) { o.DropHorizons = nil },
		"zero horizon": func(o *Options) { o.DropHorizons = []int{0} },
		"dup horizon":  func(o *Options) { o.DropHorizons = []int{1, 2, 1} },
		"bad window":   func(o *Options) { o.Windows = []int{3, 0} },
		"dup window":   func(o *Options) { o.Windows = []int{3, 3} },
		"no windows":   func(o *Options) { o.Windows = nil },
		"close":        func(o *Options) { o.CloseHorizon = 0 },
		"test months":  func(o *Options) { o.TestMonths = 0 },
		"method":       func(o *Options) { o.Method = "xgb" },
	} {
		o := base
		mutate(&o)
		assert.ErrorIs(t, o.Validate(), ErrInvalidOptions, name)
	}

	o := base
	o.DropHorizons = []int{1, 1}
	_, err := Run(context.Background(), o, nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.Contains(t, err.Error(), "drop horizon 1 listed more than once")
	_, statErr := os.Stat(o.OutDir)
	assert.True(t, os.IsNotExist(statErr), "no output directory for rejected options")
}
