package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"scrapix/pkg/crawler"
)

const (
	barFilled = "━"
	barEmpty  = "─"
	barWidth  = 20
)

// HarvestProgress turns crawler events into a progress line.
type HarvestProgress struct {
	mu       sync.Mutex
	p        *Printer
	query    string
	limit    int
	accepted int
	rejected int
	failed   int
	pass     int
	start    time.Time
}

// NewHarvestProgress creates a tracker for a harvest towards limit.
func NewHarvestProgress(p *Printer, query string, limit int) *HarvestProgress {
	return &HarvestProgress{p: p, query: query, limit: limit, start: time.Now()}
}

// Observe records one event. It is suitable as crawler.Crawler.OnEvent.
func (h *HarvestProgress) Observe(e crawler.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Kind {
	case crawler.EventPass:
		h.pass = e.Pass
		if !h.p.tty && !h.p.quiet {
			h.p.Printf("%s pass %d: %d thumbnails, %d new\n", h.p.Magenta("→"), e.Pass, e.Visible, e.New)
		}
	case crawler.EventAccepted:
		h.accepted = e.Accepted
	case crawler.EventRejected:
		h.rejected++
	case crawler.EventInteractionFailed:
		h.failed++
	}
	h.redraw()
}

func (h *HarvestProgress) redraw() {
	if !h.p.tty || h.p.quiet {
		return
	}
	line := h.line()
	pad := h.p.Width() - len([]rune(line)) - 1
	if pad < 0 {
		pad = 0
	}
	h.p.Printf("\r%s%s", line, strings.Repeat(" ", pad))
}

func (h *HarvestProgress) line() string {
	line := fmt.Sprintf("%s [%s] %d/%d • pass %d • %d rejected",
		h.p.Cyan(h.query), bar(h.accepted, h.limit), h.accepted, h.limit, h.pass, h.rejected)
	if h.failed > 0 {
		line += " • " + h.p.Red(fmt.Sprintf("%d click failures", h.failed))
	}
	return line
}

// Finish prints the closing summary.
func (h *HarvestProgress) Finish(saved int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.p.tty && !h.p.quiet {
		h.p.Printf("\n")
	}
	h.p.Success(fmt.Sprintf("Harvested %d new images for %q in %s (%d stored)",
		h.accepted, h.query, formatDuration(time.Since(h.start)), saved))
}

// Accepted returns the number of accepted results observed so far.
func (h *HarvestProgress) Accepted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accepted
}

func bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = min(barWidth, done*barWidth/total)
	}
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, barWidth-filled)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
