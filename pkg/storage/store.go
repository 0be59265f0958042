package storage

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/result"
)

// DefaultResultsFile is the name of the persisted result list.
const DefaultResultsFile = "urls.json"

// ErrNoResultsFile is wrapped by ReadFile when the list does not exist.
var ErrNoResultsFile = stderrors.New("results file not found")

// Mode chooses how a session treats previously persisted results.
type Mode int

const (
	// ModeMerge loads prior results, deduplicates against them and saves
	// the union.
	ModeMerge Mode = iota
	// ModeReplace ignores prior results and overwrites the file with only
	// this run's results, keeping the previous file as a backup.
	ModeReplace
)

// Force maps the mode onto Load's force argument.
func (m Mode) Force() bool {
	return m == ModeReplace
}

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "merge"
}

// ParseMode parses "merge" or "replace".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "merge":
		return ModeMerge, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeMerge, fmt.Errorf("unknown persistence mode %q", s)
	}
}

// ResultStore persists the result set of one save directory. It assumes a
// single writer for the duration of a run.
type ResultStore struct {
	dir      string
	filename string
	logger   logger.Logger
}

// NewResultStore creates a store for dir/filename.
func NewResultStore(dir, filename string, log logger.Logger) *ResultStore {
	if filename == "" {
		filename = DefaultResultsFile
	}
	return &ResultStore{dir: dir, filename: filename, logger: log}
}

// Path returns the location of the results file.
func (s *ResultStore) Path() string {
	return filepath.Join(s.dir, s.filename)
}

// Dir returns the save directory.
func (s *ResultStore) Dir() string {
	return s.dir
}

// Load returns the persisted results. It returns an empty set when force is
// set or no file exists yet.
func (s *ResultStore) Load(force bool) (result.Set, error) {
	if force {
		return result.NewSet(), nil
	}

	set, err := s.read()
	if stderrors.Is(err, os.ErrNotExist) {
		return result.NewSet(), nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.DebugWithFields("Loaded results", map[string]interface{}{
		"path":  s.Path(),
		"count": set.Len(),
	})
	return set, nil
}

// Save overwrites the file with results. It performs no merge.
func (s *ResultStore) Save(results result.Set) error {
	data, err := json.MarshalIndent(results.Sorted(), "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to marshal results", err)
	}
	if err := WriteFileAtomic(s.Path(), append(data, '\n'), 0644); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to save results", err)
	}

	s.logger.InfoWithFields("Saved results", map[string]interface{}{
		"path":  s.Path(),
		"count": results.Len(),
	})
	return nil
}

// Backup copies the current file to <file>.bak. A missing file, or one
// holding no results, is not copied so an earlier backup is never replaced
// by an empty one.
func (s *ResultStore) Backup() error {
	data, err := os.ReadFile(s.Path())
	if stderrors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to read results for backup", err)
	}
	if set, err := decode(bytes.NewReader(data), s.Path(), s.logger); err == nil && set.Len() == 0 {
		return nil
	}
	if err := WriteFileAtomic(s.Path()+".bak", data, 0644); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to write results backup", err)
	}
	return nil
}

func (s *ResultStore) read() (result.Set, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, s.Path(), s.logger)
}

// ReadFile loads a results file by path. A missing file is an input error.
func ReadFile(path string, log logger.Logger) (result.Set, error) {
	f, err := os.Open(path)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(errors.ErrorTypeInput, path, ErrNoResultsFile)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInput, "failed to open results file", err)
	}
	defer f.Close()
	return decode(f, path, log)
}

func decode(r io.Reader, path string, log logger.Logger) (result.Set, error) {
	var records []result.Result
	err := json.NewDecoder(r).Decode(&records)
	if stderrors.Is(err, io.EOF) {
		return result.NewSet(), nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInput, fmt.Sprintf("malformed results file %s", path), err)
	}

	set := result.NewSet()
	for i, rec := range records {
		if !rec.Valid() {
			log.WarnWithFields("Skipping result without url", map[string]interface{}{
				"path":  path,
				"index": i,
			})
			continue
		}
		set.Add(rec)
	}
	return set, nil
}
