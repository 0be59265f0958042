// Package diagnostics records what the browser was showing when a session
// ended, and reads those records back.
package diagnostics

import (
	"context"
	"os"
	"path/filepath"

	"scrapix/pkg/browser"
	"scrapix/pkg/logger"
	"scrapix/pkg/storage"
)

// Names are the file names written into the session directory.
type Names struct {
	Screenshot string
	Page       string
}

// DefaultNames match the output section defaults.
var DefaultNames = Names{Screenshot: "screenshot.png", Page: "page.html"}

// Artifacts lists the files a capture actually wrote.
type Artifacts struct {
	Screenshot string
	Page       string
}

// Capture saves a screenshot and the page source into dir. Each half is
// best-effort: failures are logged and the other half still runs.
func Capture(ctx context.Context, page browser.Page, dir string, names Names, log logger.Logger) Artifacts {
	var out Artifacts
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).WarnWithFields("Cannot create diagnostics directory", map[string]interface{}{"dir": dir})
		return out
	}

	shot := filepath.Join(dir, names.Screenshot)
	if err := page.Screenshot(ctx, shot); err != nil {
		log.WithError(err).WarnWithFields("Screenshot capture failed", map[string]interface{}{"path": shot})
	} else {
		out.Screenshot = shot
	}

	src := filepath.Join(dir, names.Page)
	html, err := page.PageSource(ctx)
	if err == nil {
		err = storage.WriteFileAtomic(src, []byte(html), 0644)
	}
	if err != nil {
		log.WithError(err).WarnWithFields("Page source capture failed", map[string]interface{}{"path": src})
	} else {
		out.Page = src
	}

	log.DebugWithFields("Diagnostics captured", map[string]interface{}{
		"screenshot": out.Screenshot,
		"page":       out.Page,
	})
	return out
}
