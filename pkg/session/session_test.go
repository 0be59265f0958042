package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapix/pkg/browser"
	"scrapix/pkg/browser/browsertest"
	"scrapix/pkg/crawler"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/metadata"
	"scrapix/pkg/pacing"
	"scrapix/pkg/result"
	"scrapix/pkg/storage"
	"scrapix/pkg/validator"
)

const searchURL = "https://search.example/search?q="

var (
	thumbSel   = browser.ByClass("div", "thumb")
	imageSel   = browser.ByClass("img", "big")
	challenge  = browser.ByXPath("iframe", "//iframe[starts-with(@name, 'a-')]")
	consentA   = browser.ByID("button", "reject")
	consentB   = browser.ByID("button", "accept")
	imagesLink = browser.ByText("a", "Images")
)

type fixture struct {
	dir   string
	page  *browsertest.Page
	store *storage.ResultStore
	log   *logger.TestLogger
	deps  Deps
}

func newFixture(t *testing.T, thumbs ...browsertest.Thumb) *fixture {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "duck")
	log := logger.NewTestLogger()
	page := browsertest.NewPage(browsertest.Layout{
		Thumbnail:  thumbSel,
		Images:     []browser.Selector{imageSel},
		Challenge:  challenge,
		Consent:    []browser.Selector{consentA, consentB},
		ImagesLink: imagesLink,
	}, thumbs...)
	store := storage.NewResultStore(dir, "", log)

	c := crawler.New(page, validator.New(nil, log), pacing.None(), crawler.Markers{
		Thumbnail:       thumbSel,
		Images:          []browser.Selector{imageSel},
		SourceAttribute: "src",
		TitleAttribute:  "alt",
		SchemeMarker:    "http",
		ProxyMarker:     "encrypted",
	}, crawler.Timeouts{Click: time.Second}, log)

	return &fixture{
		dir:   dir,
		page:  page,
		store: store,
		log:   log,
		deps: Deps{
			Page:    page,
			Store:   store,
			Crawler: c,
			Pacer:   pacing.None(),
			Markers: Markers{
				Challenge:           challenge,
				ChallengeIndicators: []string{"form#captcha-form"},
				Consent:             []browser.Selector{consentA, consentB},
				ImagesLink:          imagesLink,
			},
			Timeouts: Timeouts{
				Navigation: time.Second,
				Challenge:  time.Second,
				Consent:    time.Second,
				ImagesLink: time.Second,
			},
			SearchURL: searchURL,
			Logger:    log,
		},
	}
}

func (f *fixture) run(ctx context.Context, p Params) (*Outcome, error) {
	return New(f.deps).Run(ctx, p)
}

func (f *fixture) saved(t *testing.T) result.Set {
	t.Helper()
	set, err := storage.ReadFile(f.store.Path(), logger.NewNopLogger())
	require.NoError(t, err)
	return set
}

func (f *fixture) exists(name string) bool {
	_, err := os.Stat(filepath.Join(f.dir, name))
	return err == nil
}

func duckParams() Params {
	return Params{Query: "duck", Limit: 10, Headless: true}
}

func TestRunDeduplicatesAgainstPersistedResults(t *testing.T) {
	f := newFixture(t,
		browsertest.Thumb{Title: "x", URL: "http://a"},
		browsertest.Thumb{Title: "y", URL: "http://b"},
	)
	require.NoError(t, f.store.Save(result.NewSet(result.New("x", "http://a"))))

	out, err := f.run(context.Background(), duckParams())

	require.NoError(t, err)
	assert.Equal(t, Completed, out.State)
	assert.Equal(t, result.NewSet(result.New("y", "http://b")), out.Harvested)
	want := result.NewSet(result.New("x", "http://a"), result.New("y", "http://b"))
	assert.Equal(t, want, out.Merged)
	assert.Equal(t, want, f.saved(t))

	assert.Equal(t, []string{searchURL + "duck"}, f.page.Navigations)
	assert.True(t, f.page.ImagesClicked)
	assert.False(t, f.exists("screenshot.png"), "no capture on success by default")
	assert.NotEqual(t, uuid.Nil, out.RunID)
}

func TestRunWalksStatesInOrder(t *testing.T) {
	f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
	ctrl := New(f.deps)
	assert.Equal(t, Idle, ctrl.State())

	_, err := ctrl.Run(context.Background(), duckParams())
	require.NoError(t, err)
	assert.Equal(t, Completed, ctrl.State())

	var states []interface{}
	for _, m := range f.log.GetMessages() {
		if m.Message == "Session state changed" {
			states = append(states, m.Fields["to"])
		}
	}
	assert.Equal(t, []interface{}{
		"navigated", "challenge_checked", "consent_resolved", "images_view", "harvesting", "completed",
	}, states)
}

func TestRunEscapesQuery(t *testing.T) {
	f := newFixture(t)
	p := duckParams()
	p.Query = "wild duck & pond"

	_, err := f.run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{searchURL + "wild+duck+%26+pond"}, f.page.Navigations)
}

func TestRunFailsOnChallenge(t *testing.T) {
	f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
	f.page.ChallengePresent = true
	prior := result.NewSet(result.New("old", "http://old"))
	require.NoError(t, f.store.Save(prior))

	out, err := f.run(context.Background(), duckParams())

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeChallenge))
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, Failed, out.State)
	assert.Empty(t, f.page.Clicked, "harvest never starts")
	assert.True(t, f.exists("screenshot.png"))
	assert.True(t, f.exists("page.html"))
	assert.Equal(t, prior, f.saved(t), "prior results are kept")
}

func TestRunDetectsChallengeInPageSource(t *testing.T) {
	f := newFixture(t)
	f.page.Source = `<html><body><form id="captcha-form"></form></body></html>`

	_, err := f.run(context.Background(), duckParams())

	assert.True(t, errs.Is(err, errs.ErrorTypeChallenge))
	assert.False(t, f.page.ImagesClicked)
}

func TestRunConsentIsBestEffort(t *testing.T) {
	tests := []struct {
		name         string
		consentIndex int
		wantClicked  bool
	}{
		{"second control present", 1, true},
		{"first control present", 0, true},
		{"no dialog", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
			f.page.ConsentIndex = tt.consentIndex

			out, err := f.run(context.Background(), duckParams())

			require.NoError(t, err)
			assert.Equal(t, Completed, out.State)
			assert.Equal(t, tt.wantClicked, f.page.ConsentClicked)
			assert.Equal(t, !tt.wantClicked, f.log.HasMessage("No consent dialog dismissed, continuing"))
		})
	}
}

func TestRunFailsWithoutImagesLink(t *testing.T) {
	f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
	f.page.ImagesLinkPresent = false
	ctrl := New(f.deps)

	out, err := ctrl.Run(context.Background(), duckParams())

	assert.True(t, errs.Is(err, errs.ErrorTypeImagesView))
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, Failed, ctrl.State())
	assert.True(t, f.exists("page.html"))
	assert.Zero(t, f.saved(t).Len())
}

func TestRunFailsOnNavigationError(t *testing.T) {
	f := newFixture(t)
	f.page.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	out, err := f.run(context.Background(), duckParams())

	assert.True(t, errs.Is(err, errs.ErrorTypeNavigation))
	assert.Equal(t, Failed, out.State)
	assert.True(t, f.exists(metadata.DefaultFile))
}

func TestRunReplaceModeKeepsBackup(t *testing.T) {
	f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
	prior := result.NewSet(result.New("x", "http://a"), result.New("old", "http://old"))
	require.NoError(t, f.store.Save(prior))

	p := duckParams()
	p.Mode = storage.ModeReplace
	out, err := f.run(context.Background(), p)

	require.NoError(t, err)
	assert.Zero(t, out.Loaded.Len())
	want := result.NewSet(result.New("x", "http://a"))
	assert.Equal(t, want, out.Harvested, "known results are ignored in replace mode")
	assert.Equal(t, want, f.saved(t))

	backup, err := storage.ReadFile(f.store.Path()+".bak", logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, prior, backup)
}

func TestRunFailedReplaceRunsKeepPriorResults(t *testing.T) {
	f := newFixture(t, browsertest.Thumb{Title: "x", URL: "http://a"})
	f.page.ChallengePresent = true
	prior := result.NewSet(result.New("old", "http://old"))
	require.NoError(t, f.store.Save(prior))

	p := duckParams()
	p.Mode = storage.ModeReplace
	for i := 0; i < 2; i++ {
		_, err := f.run(context.Background(), p)
		require.True(t, errs.Is(err, errs.ErrorTypeChallenge), "run %d", i)
	}

	assert.Equal(t, prior, f.saved(t), "saved results are left alone")
	assert.False(t, f.exists("urls.json.bak"), "no backup is needed when nothing is replaced")
	assert.True(t, f.log.HasMessage("Failed replace run harvested nothing, keeping saved results"))
}

func TestRunSavesPartialResultsOnCancel(t *testing.T) {
	f := newFixture(t,
		browsertest.Thumb{Title: "a", URL: "http://a"},
		browsertest.Thumb{Title: "b", URL: "http://b"},
		browsertest.Thumb{Title: "c", URL: "http://c"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.page.BeforeClick = func(i int) {
		if i == 1 {
			cancel()
		}
	}

	out, err := f.run(ctx, duckParams())

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, out.State)

	partial := result.NewSet(result.New("a", "http://a"))
	assert.Equal(t, partial, out.Harvested)
	assert.Equal(t, partial, f.saved(t))
	assert.True(t, f.exists("screenshot.png"), "diagnostics survive cancellation")

	rec, err := metadata.Load(f.dir, "")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.State)
	assert.Equal(t, 1, rec.Harvested)
	assert.Contains(t, rec.Error, "context canceled")
}

func TestRunWritesRecord(t *testing.T) {
	f := newFixture(t,
		browsertest.Thumb{Title: "duck toy", URL: "http://a"},
		browsertest.Thumb{Title: "wild duck", URL: "http://b"},
		browsertest.Thumb{Title: "duck pond", URL: "http://c"},
	)
	f.deps.Diagnostics.OnSuccess = true
	lo := validator.Resolution{Width: 10, Height: 10}

	p := Params{Query: "duck", Limit: 2, ExcludedKeywords: []string{"toy"}, MinResolution: &lo}
	out, err := f.run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, result.NewSet(result.New("wild duck", "http://b"), result.New("duck pond", "http://c")), out.Harvested)
	assert.True(t, f.exists("screenshot.png"))

	rec, err := metadata.Load(f.dir, "")
	require.NoError(t, err)
	assert.Equal(t, out.RunID.String(), rec.RunID)
	assert.Equal(t, "completed", rec.State)
	assert.Equal(t, "10x10", rec.Params.MinResolution)
	assert.Equal(t, "merge", rec.Params.Mode)
	assert.Equal(t, 2, rec.Saved)
	assert.Equal(t, 1, rec.Stats.Verdicts["excluded_keyword"])
	assert.Equal(t, filepath.Join(f.dir, "page.html"), rec.Page)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

func TestRunRejectsMalformedStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.dir, 0755))
	require.NoError(t, os.WriteFile(f.store.Path(), []byte("{not json"), 0644))

	out, err := f.run(context.Background(), duckParams())

	assert.True(t, errs.Is(err, errs.ErrorTypeInput))
	assert.Equal(t, Failed, out.State)
	assert.Empty(t, f.page.Navigations)
}

func TestRunRejectsInvalidParams(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(context.Background(), Params{Query: "duck"})

	assert.Nil(t, out)
	assert.True(t, errs.Is(err, errs.ErrorTypeInput))
	assert.Empty(t, f.page.Navigations)
}

func TestParamsValidate(t *testing.T) {
	small := &validator.Resolution{Width: 100, Height: 100}
	big := &validator.Resolution{Width: 800, Height: 600}
	tall := &validator.Resolution{Width: 50, Height: 900}

	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{"valid", Params{Query: "duck", Limit: 1}, ""},
		{"valid bounds", Params{Query: "duck", Limit: 1, MinResolution: small, MaxResolution: big}, ""},
		{"empty query", Params{Query: "  ", Limit: 1}, "query"},
		{"zero limit", Params{Query: "duck"}, "limit"},
		{"negative skip", Params{Query: "duck", Limit: 1, Skip: -1}, "skip"},
		{"valid keywords", Params{Query: "duck", Limit: 1, ExcludedKeywords: []string{"toy", "plush"}}, ""},
		{"blank keyword", Params{Query: "duck", Limit: 1, ExcludedKeywords: []string{"toy", " "}}, "keyword"},
		{"min above max", Params{Query: "duck", Limit: 1, MinResolution: big, MaxResolution: small}, "exceeds"},
		{"min above max on one axis", Params{Query: "duck", Limit: 1, MinResolution: tall, MaxResolution: big}, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "images_view", ImagesView.String())
	assert.Equal(t, "unknown", State(99).String())
}
