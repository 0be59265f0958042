// Package metadata keeps a JSON record of each scrape session next to its
// results.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scrapix/pkg/crawler"
	"scrapix/pkg/storage"
)

// DefaultFile is the record's file name inside a session directory.
const DefaultFile = "session.json"

// Params is the request a session was started with.
type Params struct {
	Limit            int      `json:"limit"`
	Skip             int      `json:"skip"`
	ExcludedKeywords []string `json:"excluded_keywords,omitempty"`
	MinResolution    string   `json:"min_resolution,omitempty"`
	MaxResolution    string   `json:"max_resolution,omitempty"`
	Headless         bool     `json:"headless"`
	Mode             string   `json:"mode"`
}

// Downloads summarises the download pass that followed a session.
type Downloads struct {
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// Record describes one run.
type Record struct {
	RunID      string    `json:"run_id"`
	Query      string    `json:"query"`
	Params     Params    `json:"params"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	State string `json:"state"`
	Error string `json:"error,omitempty"`

	// Loaded is what the store held before the run, Harvested what the
	// run added, Saved what the store holds after it.
	Loaded    int `json:"loaded"`
	Harvested int `json:"harvested"`
	Saved     int `json:"saved"`

	Stats      crawler.Stats `json:"stats"`
	Screenshot string        `json:"screenshot,omitempty"`
	Page       string        `json:"page,omitempty"`
	Downloads  *Downloads    `json:"downloads,omitempty"`
	Version    string        `json:"version"`
}

// Duration is how long the run took.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Save writes the record into dir.
func (r *Record) Save(dir, name string) error {
	if name == "" {
		name = DefaultFile
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(dir, name), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	return nil
}

// Load reads the record from dir.
func Load(dir, name string) (*Record, error) {
	if name == "" {
		name = DefaultFile
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &r, nil
}

// Exists reports whether dir holds a record.
func Exists(dir, name string) bool {
	if name == "" {
		name = DefaultFile
	}
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
