package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/earlywarn-cli/internal/utils"
)

// Settings are the effective pipeline options of a run.
type Settings struct {
	Method        string   `json:"method"`
	Delimiter     string   `json:"delimiter,omitempty"`
	KPICandidates []string `json:"kpi_candidates"`
	DropHorizons  []int    `json:"drop_horizons"`
	DropThreshold float64  `json:"drop_threshold"`
	CloseHorizon  int      `json:"close_horizon"`
	Windows       []int    `json:"windows"`
	TestMonths    int      `json:"test_months"`
	SQLite        bool     `json:"sqlite"`
	XLSX          bool     `json:"xlsx"`
}

// Prevalence is the share of positive rows among rows where a label is defined.
type Prevalence struct {
	Defined  int     `json:"defined"`
	Positive int     `json:"positive"`
	Rate     float64 `json:"rate"`
}

// Manifest describes one pipeline invocation and is persisted as run.json.
type Manifest struct {
	ID         string                `json:"id"`
	CreatedAt  time.Time             `json:"created_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Inputs     []Input               `json:"inputs"`
	Settings   Settings              `json:"settings"`
	Rows       int                   `json:"rows"`
	Columns    int                   `json:"columns"`
	Merchants  int                   `json:"merchants"`
	Months     []string              `json:"months"`
	Artifacts  map[string]string     `json:"artifacts"`
	Labels     map[string]Prevalence `json:"labels"`

	// Not serialized: output directory holding run.json
	dir string `json:"-"`
}

// New starts a manifest for a run writing into dir. Call Save to persist.
func New(dir string) *Manifest {
	return &Manifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Artifacts: map[string]string{},
		Labels:    map[string]Prevalence{},
		dir:       dir,
	}
}

// Load reads run.json from dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run manifest not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read run manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse run manifest: %w", err)
	}
	m.dir = dir
	return &m, nil
}

// Dir returns the run's output directory.
func (m *Manifest) Dir() string { return m.dir }

// AddInput records a source file, filling size and modification time from disk.
func (m *Manifest) AddInput(in Input) {
	if info, err := os.Stat(in.Path); err == nil {
		in.Size = info.Size()
		in.Modified = info.ModTime()
	}
	m.Inputs = append(m.Inputs, in)
}

// Artifact returns the path of a committed artifact, relative names resolved
// against the run directory.
func (m *Manifest) Artifact(name string) (string, bool) {
	p, ok := m.Artifacts[name]
	if !ok {
		return "", false
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.dir, p)
	}
	return p, true
}

// ArtifactNames lists artifacts in name order.
func (m *Manifest) ArtifactNames() []string {
	out := make([]string, 0, len(m.Artifacts))
	for n := range m.Artifacts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Encode stamps FinishedAt and returns the run.json bytes.
func (m *Manifest) Encode() ([]byte, error) {
	m.FinishedAt = time.Now()
	return utils.PrettyJSON(m)
}

// Save stamps FinishedAt and writes run.json atomically.
func (m *Manifest) Save() error {
	if m.dir == "" {
		return errors.New("run directory not set")
	}
	if err := utils.EnsureDir(m.dir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(m.dir, FileName), data)
}
