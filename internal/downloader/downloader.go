// Package downloader saves harvested images into a directory.
package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/result"
	"scrapix/pkg/storage"
)

// Status is the fate of one download.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Outcome reports one download.
type Outcome struct {
	Result   result.Result
	Path     string
	Status   Status
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Fetcher opens the body behind an image URL.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Manager downloads results with a bounded number of concurrent fetches.
type Manager struct {
	fetcher Fetcher
	workers int
	logger  logger.Logger

	// OnOutcome, when set, is called from the collecting goroutine as each
	// item finishes.
	OnOutcome func(Outcome)
}

// NewManager creates a Manager running up to workers downloads at once.
func NewManager(fetcher Fetcher, workers int, log logger.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{fetcher: fetcher, workers: workers, logger: log}
}

// Filename returns the percent-decoded last path segment of rawURL.
func Filename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeInput, "unparseable URL", err)
	}

	escaped := u.EscapedPath()
	segment := escaped[strings.LastIndex(escaped, "/")+1:]
	name, err := url.PathUnescape(segment)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeInput, "undecodable path segment", err)
	}

	switch {
	case name == "", name == ".", name == "..":
		return "", errs.New(errs.ErrorTypeInput, fmt.Sprintf("no file name in %q", rawURL))
	case strings.ContainsAny(name, "/\\\x00"):
		return "", errs.New(errs.ErrorTypeInput, fmt.Sprintf("unsafe file name %q", name))
	}
	return name, nil
}

// Download saves one result into dir. An existing file is left alone
// unless force is set.
func (m *Manager) Download(ctx context.Context, r result.Result, dir string, force bool) Outcome {
	files, err := storage.NewFiles(dir)
	if err != nil {
		return Outcome{Result: r, Status: StatusFailed, Err: errs.Wrap(errs.ErrorTypeStorage, "download directory unavailable", err)}
	}
	return m.download(ctx, files, r, force)
}

// DownloadAll saves every result into dir and returns outcomes in input
// order. A failed item never stops the others.
func (m *Manager) DownloadAll(ctx context.Context, results []result.Result, dir string, force bool) []Outcome {
	outcomes := make([]Outcome, len(results))
	files, err := storage.NewFiles(dir)
	if err != nil {
		err = errs.Wrap(errs.ErrorTypeStorage, "download directory unavailable", err)
		for i, r := range results {
			outcomes[i] = Outcome{Result: r, Status: StatusFailed, Err: err}
		}
		return outcomes
	}
	m.logger.DebugWithFields("Download directory ready", map[string]interface{}{
		"dir":      dir,
		"existing": files.Count(),
		"queued":   len(results),
	})

	pool := NewWorkerPool(m.workers, func(ctx context.Context, job DownloadJob) Outcome {
		return m.download(ctx, files, job.Result, force)
	}, m.logger)
	pool.Start(ctx)

	go func() {
		defer pool.Stop()
		for i, r := range results {
			if err := pool.Submit(DownloadJob{Index: i, Result: r}); err != nil {
				return
			}
		}
	}()

	done := make([]bool, len(results))
	for res := range pool.Results() {
		outcomes[res.Job.Index] = res.Outcome
		done[res.Job.Index] = true
		if m.OnOutcome != nil {
			m.OnOutcome(res.Outcome)
		}
	}

	for i, r := range results {
		if !done[i] {
			outcomes[i] = Outcome{Result: r, Status: StatusFailed, Err: ctx.Err()}
		}
	}
	return outcomes
}

func (m *Manager) download(ctx context.Context, files *storage.Files, r result.Result, force bool) Outcome {
	start := time.Now()
	out := Outcome{Result: r, Status: StatusFailed}
	log := m.logger.WithField("url", r.URL())
	finish := func() Outcome {
		out.Duration = time.Since(start)
		return out
	}

	name, err := Filename(r.URL())
	if err != nil {
		out.Err = err
		log.WithError(err).Warn("Cannot derive file name, skipping download")
		return finish()
	}
	out.Path = files.Path(name)

	if !force && files.Exists(name) {
		out.Status = StatusSkipped
		log.DebugWithFields("File already present", map[string]interface{}{"path": out.Path})
		return finish()
	}

	body, err := m.fetcher.Open(ctx, r.URL())
	if err != nil {
		out.Err = err
		log.WithError(err).Warn("Download failed")
		return finish()
	}
	defer body.Close()

	n, err := files.Publish(body, name, force)
	switch {
	case stderrors.Is(err, storage.ErrExists):
		out.Status = StatusSkipped
	case err != nil:
		if ctx.Err() != nil {
			out.Err = ctx.Err()
		} else {
			out.Err = errs.Wrap(errs.ErrorTypeStorage, "failed to write image", err)
		}
		log.WithError(err).Warn("Download failed")
	default:
		out.Status = StatusDownloaded
		out.Bytes = n
		log.DebugWithFields("Image downloaded", map[string]interface{}{
			"path":  out.Path,
			"bytes": n,
		})
	}
	return finish()
}

// Summary totals a batch.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusDownloaded:
			s.Downloaded++
			s.Bytes += o.Bytes
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// Errors returns the failures of a batch joined together, or nil.
func Errors(outcomes []Outcome) error {
	var all []error
	for _, o := range outcomes {
		if o.Status == StatusFailed && o.Err != nil {
			all = append(all, fmt.Errorf("%s: %w", o.Result.URL(), o.Err))
		}
	}
	return stderrors.Join(all...)
}
