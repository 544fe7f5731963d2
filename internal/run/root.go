package run

import (
	"errors"
	"os"
	"path/filepath"
)

// FileName is the manifest that marks an output directory as a pipeline run.
const FileName = "run.json"

// FindRoot walks up from start to the nearest directory holding a run.json.
// A file path starts the search from its directory; an empty start uses the
// working directory.
func FindRoot(start string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	info, err := os.Stat(start)
	if err != nil {
		return "", err
	}
	dir := start
	if !info.IsDir() {
		dir = filepath.Dir(start)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("run directory not found (run.json)")
		}
		dir = parent
	}
}
