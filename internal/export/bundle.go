package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/KaramelBytes/earlywarn-cli/internal/utils"
)

// Bundle stages a run's artifacts and publishes them together. Nothing is
// visible under the final names until Commit.
type Bundle struct {
	dir     string
	bytes   map[string][]byte
	staged  map[string]string // name -> temp path
	order   []string
	done    bool
	stageID string
}

func NewBundle(dir string) *Bundle {
	return &Bundle{
		dir:     dir,
		bytes:   map[string][]byte{},
		staged:  map[string]string{},
		stageID: uuid.NewString(),
	}
}

func (b *Bundle) Dir() string { return b.dir }

func (b *Bundle) track(name string) error {
	if b.done {
		return errors.New("bundle already committed or discarded")
	}
	if _, dup := b.bytes[name]; dup {
		return fmt.Errorf("artifact %q staged twice", name)
	}
	if _, dup := b.staged[name]; dup {
		return fmt.Errorf("artifact %q staged twice", name)
	}
	b.order = append(b.order, name)
	return nil
}

// Add stages an in-memory artifact.
func (b *Bundle) Add(name string, data []byte) error {
	if err := b.track(name); err != nil {
		return err
	}
	b.bytes[name] = data
	return nil
}

// TempPath reserves a hidden temp file in the output directory for writers
// that need a real path, such as SQLite. The file is renamed on Commit.
func (b *Bundle) TempPath(name string) (string, error) {
	if err := b.track(name); err != nil {
		return "", err
	}
	if err := utils.EnsureDir(b.dir); err != nil {
		return "", fmt.Errorf("create %s: %w", b.dir, err)
	}
	p := b.tempName(name)
	b.staged[name] = p
	return p, nil
}

// Names lists staged artifacts in staging order.
func (b *Bundle) Names() []string { return append([]string(nil), b.order...) }

// Commit publishes every staged artifact under its final name and returns the
// final paths keyed by artifact name. In-memory artifacts are spilled to temp
// files first so publishing is a run of same-directory renames. If any rename
// fails, artifacts already published are removed and the files they replaced
// are restored.
func (b *Bundle) Commit() (map[string]string, error) {
	if b.done {
		return nil, errors.New("bundle already committed or discarded")
	}
	if err := utils.EnsureDir(b.dir); err != nil {
		b.Discard()
		return nil, fmt.Errorf("create %s: %w", b.dir, err)
	}
	for _, name := range b.order {
		data, ok := b.bytes[name]
		if !ok {
			continue
		}
		p := b.tempName(name)
		b.staged[name] = p
		if err := os.WriteFile(p, data, 0o644); err != nil {
			b.Discard()
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
	}
	b.bytes = nil

	var done []published
	for _, name := range b.order {
		pub, err := b.publish(name)
		if err != nil {
			rollback(done)
			b.Discard()
			return nil, fmt.Errorf("commit %s: %w", name, err)
		}
		delete(b.staged, name)
		done = append(done, pub)
	}
	out := make(map[string]string, len(done))
	for _, pub := range done {
		if pub.backup != "" {
			_ = os.Remove(pub.backup)
		}
		out[pub.name] = pub.dst
	}
	b.done = true
	return out, nil
}

type published struct {
	name, dst, backup string
}

func (b *Bundle) tempName(name string) string {
	return filepath.Join(b.dir, fmt.Sprintf(".%s.%s.tmp", name, b.stageID))
}

// publish moves any existing file at the final name aside, then renames the
// staged temp file into place.
func (b *Bundle) publish(name string) (published, error) {
	pub := published{name: name, dst: filepath.Join(b.dir, name)}
	if info, err := os.Lstat(pub.dst); err == nil {
		if info.IsDir() {
			return pub, fmt.Errorf("%s exists and is a directory", pub.dst)
		}
		pub.backup = filepath.Join(b.dir, fmt.Sprintf(".%s.%s.bak", name, b.stageID))
		if err := os.Rename(pub.dst, pub.backup); err != nil {
			return pub, fmt.Errorf("move aside previous file: %w", err)
		}
	}
	if err := os.Rename(b.staged[name], pub.dst); err != nil {
		if pub.backup != "" {
			_ = os.Rename(pub.backup, pub.dst)
		}
		return pub, fmt.Errorf("atomic rename: %w", err)
	}
	return pub, nil
}

// rollback undoes published artifacts in reverse order.
func rollback(done []published) {
	for i := len(done) - 1; i >= 0; i-- {
		pub := done[i]
		_ = os.Remove(pub.dst)
		if pub.backup != "" {
			_ = os.Rename(pub.backup, pub.dst)
		}
	}
}

// Discard removes staged temp files. It is safe to call more than once.
func (b *Bundle) Discard() {
	for n, p := range b.staged {
		_ = os.Remove(p)
		delete(b.staged, n)
	}
	b.bytes = nil
	b.done = true
}
