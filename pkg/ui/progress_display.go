package ui

import (
	"fmt"
	"sync"
	"time"
)

// DownloadProgress counts finished downloads and prints a running line.
type DownloadProgress struct {
	mu         sync.Mutex
	p          *Printer
	total      int
	downloaded int
	skipped    int
	failed     int
	bytes      int64
	start      time.Time
}

// NewDownloadProgress creates a tracker for total downloads.
func NewDownloadProgress(p *Printer, total int) *DownloadProgress {
	return &DownloadProgress{p: p, total: total, start: time.Now()}
}

// Record notes one finished item. status is downloaded, skipped or failed.
func (d *DownloadProgress) Record(status string, bytes int64, url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch status {
	case "downloaded":
		d.downloaded++
		d.bytes += bytes
	case "skipped":
		d.skipped++
	default:
		d.failed++
		if !d.p.tty {
			d.p.Printf("%s %s: %v\n", d.p.Red("✗"), url, err)
		}
	}

	if d.p.tty && !d.p.quiet {
		done := d.downloaded + d.skipped + d.failed
		line := fmt.Sprintf("\r%s [%s] %d/%d • %s", d.p.Cyan("download"), bar(done, d.total), done, d.total, FormatBytes(d.bytes))
		if d.failed > 0 {
			line += " • " + d.p.Red(fmt.Sprintf("%d failed", d.failed))
		}
		d.p.Printf("%s", line)
	}
}

// Complete prints the closing summary.
func (d *DownloadProgress) Complete(dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.p.tty && !d.p.quiet {
		d.p.Printf("\n")
	}
	d.p.Success(fmt.Sprintf("Downloaded %d images (%s) to %s in %s",
		d.downloaded, FormatBytes(d.bytes), dir, formatDuration(time.Since(d.start))))
	if d.skipped > 0 {
		d.p.Info("  already present", fmt.Sprint(d.skipped))
	}
	if d.failed > 0 {
		d.p.Warning(fmt.Sprintf("%d downloads failed", d.failed))
	}
}
