package storage

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrExists is returned by Publish when the target exists and overwriting
// was not requested.
var ErrExists = stderrors.New("file already exists")

// Files manages a download directory and remembers which names are taken.
type Files struct {
	dir   string
	known map[string]bool
	mu    sync.RWMutex
}

const tempPattern = ".dl-*.part"

// NewFiles creates the directory if needed and indexes its current files.
func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f := &Files{dir: dir, known: make(map[string]bool)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			f.known[e.Name()] = true
		}
	}
	return f, nil
}

// Dir returns the managed directory.
func (f *Files) Dir() string {
	return f.dir
}

// Path returns the full path for name.
func (f *Files) Path(name string) string {
	return filepath.Join(f.dir, name)
}

// Exists reports whether name is present in the directory.
func (f *Files) Exists(name string) bool {
	f.mu.RLock()
	cached := f.known[name]
	f.mu.RUnlock()
	if cached {
		return true
	}

	if _, err := os.Stat(f.Path(name)); err == nil {
		f.remember(name)
		return true
	}
	return false
}

func (f *Files) remember(name string) {
	f.mu.Lock()
	f.known[name] = true
	f.mu.Unlock()
}

// Publish streams r into name. The data lands in a temporary file first.
// Without overwrite the temporary file is hard-linked into place, which
// fails with ErrExists if another writer got there first; with overwrite it
// is renamed over any existing file.
func (f *Files) Publish(r io.Reader, name string, overwrite bool) (int64, error) {
	// The temporary name must not grow with name, which may already be
	// close to the filesystem limit.
	tmp, err := os.CreateTemp(f.dir, tempPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		return n, fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	target := f.Path(name)
	if overwrite {
		if err := os.Rename(tmpPath, target); err != nil {
			return n, fmt.Errorf("failed to rename temporary file: %w", err)
		}
	} else if err := os.Link(tmpPath, target); err != nil {
		if stderrors.Is(err, os.ErrExist) {
			f.remember(name)
			return 0, ErrExists
		}
		return n, fmt.Errorf("failed to link file into place: %w", err)
	}

	f.remember(name)
	return n, nil
}

// Count returns how many files the directory is known to hold.
func (f *Files) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.known)
}
