package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapix/pkg/browser"
	"scrapix/pkg/browser/browsertest"
	"scrapix/pkg/logger"
)

const resultsPage = `<html><head><title> duck - Search </title></head><body>
<nav><span>All</span><a href="/imgres">Images</a></nav>
<div class="F0uyec"><img src="data:,"></div>
<div class="F0uyec"><img src="data:,"></div>
<div class="F0uyec other"><img src="data:,"></div>
<div id="panel">
  <img class="n3VNCb" src="https://encrypted-tbn0.gstatic.com/images?q=1">
  <img class="n3VNCb" src="https://cdn.example/wild-duck.jpg" alt="wild duck">
</div>
<button id="L2AGLb">Accept all</button>
</body></html>`

func testProbe() Probe {
	return Probe{
		Thumbnail: browser.ByClass("div", "F0uyec"),
		Images: []browser.Selector{
			browser.ByClass("img", "n3VNCb"),
			browser.ByClass("img", "iPVvYb"),
			browser.ByXPath("img", "//img[@data-role='full']"),
		},
		Consent:             []browser.Selector{browser.ByID("button", "W0wltc"), browser.ByID("button", "L2AGLb")},
		ImagesLink:          browser.ByText("a", "Images"),
		ChallengeIndicators: []string{`iframe[src^="https://www.google.com/recaptcha"]`, "form#captcha-form"},
	}
}

func TestInspect(t *testing.T) {
	r, err := Inspect(resultsPage, testProbe())
	require.NoError(t, err)

	assert.Equal(t, "duck - Search", r.Title)
	assert.Equal(t, 3, r.Thumbnails.Matches)
	assert.True(t, r.Thumbnails.Supported)

	require.Len(t, r.Images, 3)
	assert.Equal(t, 2, r.Images[0].Matches)
	assert.Equal(t, 0, r.Images[1].Matches)
	assert.False(t, r.Images[2].Supported, "xpath cannot be evaluated statically")
	assert.Equal(t, []string{
		"https://encrypted-tbn0.gstatic.com/images?q=1",
		"https://cdn.example/wild-duck.jpg",
	}, r.ImageURLs)

	require.Len(t, r.Consent, 2)
	assert.Zero(t, r.Consent[0].Matches)
	assert.Equal(t, 1, r.Consent[1].Matches)

	assert.Equal(t, 1, r.ImagesLink.Matches)
	assert.False(t, r.Challenge)
}

func TestDetectChallenge(t *testing.T) {
	indicators := testProbe().ChallengeIndicators

	tests := []struct {
		name string
		html string
		want bool
	}{
		{"recaptcha frame", `<html><body><iframe name="a-x" src="https://www.google.com/recaptcha/api2/anchor"></iframe></body></html>`, true},
		{"captcha form", `<form id="captcha-form"></form>`, true},
		{"clean page", resultsPage, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectChallenge(tt.html, indicators))
		})
	}

	assert.False(t, DetectChallenge(`<form id="captcha-form"></form>`, nil))
}

func TestCaptureWritesBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	page := browsertest.NewPage(browsertest.Layout{})
	page.Source = resultsPage

	got := Capture(context.Background(), page, dir, DefaultNames, logger.NewNopLogger())

	assert.Equal(t, filepath.Join(dir, "screenshot.png"), got.Screenshot)
	assert.Equal(t, filepath.Join(dir, "page.html"), got.Page)

	shot, err := os.ReadFile(got.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), shot)

	html, err := os.ReadFile(got.Page)
	require.NoError(t, err)
	assert.Equal(t, resultsPage, string(html))
}

func TestCaptureIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	page := browsertest.NewPage(browsertest.Layout{})
	page.ScreenshotErr = errors.New("target crashed")
	tl := logger.NewTestLogger()

	got := Capture(context.Background(), page, dir, DefaultNames, tl)

	assert.Empty(t, got.Screenshot)
	assert.NotEmpty(t, got.Page, "page source is still saved")
	assert.True(t, tl.HasMessage("Screenshot capture failed"))

	page.ScreenshotErr = nil
	page.SourceErr = errors.New("no document")
	tl.Clear()

	got = Capture(context.Background(), page, dir, DefaultNames, tl)
	assert.NotEmpty(t, got.Screenshot)
	assert.Empty(t, got.Page)
	assert.True(t, tl.HasMessage("Page source capture failed"))
	assert.False(t, tl.HasError(), "capture problems are warnings only")
}
