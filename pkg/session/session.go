package session

import (
	"context"
	stderrors "errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"scrapix/pkg/browser"
	"scrapix/pkg/crawler"
	"scrapix/pkg/diagnostics"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/metadata"
	"scrapix/pkg/pacing"
	"scrapix/pkg/result"
	"scrapix/pkg/storage"
)

// Markers locate the page controls the session deals with before the
// harvest starts.
type Markers struct {
	Challenge browser.Selector
	// ChallengeIndicators are CSS selectors checked against the page
	// source when the live probe finds nothing.
	ChallengeIndicators []string
	Consent             []browser.Selector
	ImagesLink          browser.Selector
}

// Timeouts bound every wait of the setup phase.
type Timeouts struct {
	Navigation time.Duration
	Challenge  time.Duration
	Consent    time.Duration
	ImagesLink time.Duration
	// Capture bounds diagnostics taken after the run context has ended.
	Capture time.Duration
}

// DiagnosticsOptions control post-run capture.
type DiagnosticsOptions struct {
	OnSuccess bool
	Names     diagnostics.Names
}

// Harvester is the crawler as seen by the session.
type Harvester interface {
	Harvest(ctx context.Context, req crawler.Request, known result.Set) (result.Set, error)
	LastStats() crawler.Stats
}

// Deps wires a Controller.
type Deps struct {
	Page        browser.Page
	Store       *storage.ResultStore
	Crawler     Harvester
	Pacer       pacing.Policy
	Markers     Markers
	Timeouts    Timeouts
	Diagnostics DiagnosticsOptions
	// RecordFile names the run record; empty uses metadata.DefaultFile.
	RecordFile string
	SearchURL  string
	Logger     logger.Logger
}

// Outcome is what a run produced. It is returned even when the run fails.
type Outcome struct {
	RunID     uuid.UUID
	State     State
	Loaded    result.Set
	Harvested result.Set
	Merged    result.Set
	Record    *metadata.Record
	Err       error
}

// Controller runs sessions against one page. It is not safe for
// concurrent use.
type Controller struct {
	deps  Deps
	log   logger.Logger
	state State
}

// New creates a Controller.
func New(deps Deps) *Controller {
	if deps.Pacer == nil {
		deps.Pacer = pacing.None()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	if deps.Diagnostics.Names == (diagnostics.Names{}) {
		deps.Diagnostics.Names = diagnostics.DefaultNames
	}
	if deps.Timeouts.Capture <= 0 {
		deps.Timeouts.Capture = 10 * time.Second
	}
	return &Controller{deps: deps, log: deps.Logger, state: Idle}
}

// State returns the state the controller last reached.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transition(to State) {
	logger.LogStateChange(c.log, c.state, to)
	c.state = to
}

// Run executes one session. Once the store has been loaded, the merged
// result set is saved no matter how the run ends. Fatal page conditions
// are returned as typed errors; a cancelled ctx yields a cancelled error
// wrapping ctx's error.
func (c *Controller) Run(ctx context.Context, p Params) (*Outcome, error) {
	if err := p.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInput, "invalid session parameters", err)
	}

	c.state = Idle
	out := &Outcome{RunID: uuid.New(), State: Idle}
	c.log = c.deps.Logger.WithFields(map[string]interface{}{
		"run_id": out.RunID.String(),
		"query":  p.Query,
	})
	rec := &metadata.Record{
		RunID:     out.RunID.String(),
		Query:     p.Query,
		Params:    p.record(),
		StartedAt: time.Now(),
		Version:   logger.Version,
	}
	out.Record = rec

	loaded, err := c.deps.Store.Load(p.Mode.Force())
	if err != nil {
		c.transition(Failed)
		out.State = Failed
		out.Err = err
		return out, err
	}
	out.Loaded = loaded
	rec.Loaded = loaded.Len()
	c.log.InfoWithFields("Session started", map[string]interface{}{
		"limit":  p.Limit,
		"skip":   p.Skip,
		"mode":   p.Mode.String(),
		"loaded": loaded.Len(),
	})

	harvested, runErr := c.drive(ctx, p, loaded)
	if harvested == nil {
		harvested = result.NewSet()
	}
	out.Harvested = harvested
	if ctxErr := ctx.Err(); ctxErr != nil && (runErr == nil || stderrors.Is(runErr, ctxErr)) {
		runErr = errs.Wrap(errs.ErrorTypeCancelled, "session interrupted", ctxErr)
	}

	if runErr != nil {
		c.transition(Failed)
	} else {
		c.transition(Completed)
	}
	out.State = c.state

	if runErr != nil || c.deps.Diagnostics.OnSuccess {
		c.capture(ctx, rec)
	}

	merged, saveErr := c.persist(p.Mode, loaded, harvested, runErr)
	out.Merged = merged

	err = runErr
	if saveErr != nil {
		err = stderrors.Join(runErr, saveErr)
	}
	out.Err = err

	c.finishRecord(rec, out, err)
	if err != nil {
		c.log.WithError(err).ErrorWithFields("Session failed", map[string]interface{}{
			"state":     c.state.String(),
			"harvested": harvested.Len(),
			"saved":     merged.Len(),
		})
	} else {
		c.log.InfoWithFields("Session completed", map[string]interface{}{
			"harvested": harvested.Len(),
			"saved":     merged.Len(),
		})
	}
	return out, err
}

// drive walks the page from a fresh tab to the end of the harvest.
func (c *Controller) drive(ctx context.Context, p Params, loaded result.Set) (result.Set, error) {
	if err := c.navigate(ctx, p.Query); err != nil {
		return nil, err
	}
	if err := c.checkChallenge(ctx); err != nil {
		return nil, err
	}
	if err := c.resolveConsent(ctx); err != nil {
		return nil, err
	}
	if err := c.openImages(ctx); err != nil {
		return nil, err
	}

	c.transition(Harvesting)
	return c.deps.Crawler.Harvest(ctx, p.request(), loaded)
}

func (c *Controller) navigate(ctx context.Context, query string) error {
	target := c.deps.SearchURL + url.QueryEscape(query)
	c.log.DebugWithFields("Navigating", map[string]interface{}{"url": target})

	if err := c.deps.Page.Navigate(ctx, target, c.deps.Timeouts.Navigation); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to open search page", err)
	}
	c.transition(Navigated)

	if err := c.deps.Pacer.Pause(ctx, pacing.PhaseSettle); err != nil {
		return err
	}

	var title string
	if err := c.deps.Page.Evaluate(ctx, "document.title", &title); err == nil {
		c.log.InfoWithFields("Search page loaded", map[string]interface{}{"title": title})
	}
	return nil
}

func (c *Controller) checkChallenge(ctx context.Context) error {
	m := c.deps.Markers
	if m.Challenge != (browser.Selector{}) {
		el, err := browser.FindFirst(ctx, c.deps.Page, m.Challenge, c.deps.Timeouts.Challenge)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.log.WithError(err).Warn("Challenge probe failed")
		case el != nil:
			return errs.New(errs.ErrorTypeChallenge, "interactive challenge detected")
		}
	}

	if len(m.ChallengeIndicators) > 0 {
		html, err := c.deps.Page.PageSource(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.log.WithError(err).Warn("Cannot read page source for challenge check")
		case diagnostics.DetectChallenge(html, m.ChallengeIndicators):
			return errs.New(errs.ErrorTypeChallenge, "interactive challenge detected in page source")
		}
	}

	c.transition(ChallengeChecked)
	return nil
}

// resolveConsent clicks the first consent control it finds. Nothing here
// is fatal.
func (c *Controller) resolveConsent(ctx context.Context) error {
	resolved := false
	for _, sel := range c.deps.Markers.Consent {
		el, err := browser.FindFirst(ctx, c.deps.Page, sel, c.deps.Timeouts.Consent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || el == nil {
			continue
		}

		if err := c.click(ctx, el, c.deps.Timeouts.Consent); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).WarnWithFields("Consent control not clickable", map[string]interface{}{
				"selector": sel.String(),
			})
			continue
		}
		c.log.DebugWithFields("Consent dismissed", map[string]interface{}{"selector": sel.String()})
		resolved = true
		break
	}
	if !resolved {
		c.log.Info("No consent dialog dismissed, continuing")
	}

	c.transition(ConsentResolved)
	return nil
}

func (c *Controller) openImages(ctx context.Context) error {
	els, err := c.deps.Page.Find(ctx, c.deps.Markers.ImagesLink, browser.FindOptions{
		Timeout:  c.deps.Timeouts.ImagesLink,
		Required: true,
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || len(els) == 0 {
		if err == nil {
			err = browser.ErrNotFound
		}
		return errs.Wrap(errs.ErrorTypeImagesView, "images view control not found", err)
	}

	if err := c.click(ctx, els[0], c.deps.Timeouts.ImagesLink); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeImagesView, "failed to open images view", err)
	}
	c.transition(ImagesView)

	return c.deps.Pacer.Pause(ctx, pacing.PhaseSettle)
}

func (c *Controller) click(ctx context.Context, el browser.Element, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return el.Click(ctx)
}

// capture runs on a context detached from ctx so that a cancelled run
// still leaves its diagnostics behind.
func (c *Controller) capture(ctx context.Context, rec *metadata.Record) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.deps.Timeouts.Capture)
	defer cancel()

	got := diagnostics.Capture(cctx, c.deps.Page, c.deps.Store.Dir(), c.deps.Diagnostics.Names, c.log)
	rec.Screenshot = got.Screenshot
	rec.Page = got.Page
}

// persist saves the run's results. A replace run that failed without
// harvesting anything leaves the saved file and its backup untouched.
func (c *Controller) persist(mode storage.Mode, loaded, harvested result.Set, runErr error) (result.Set, error) {
	merged := loaded.Union(harvested)
	if mode == storage.ModeReplace {
		if runErr != nil && harvested.Len() == 0 {
			c.log.Warn("Failed replace run harvested nothing, keeping saved results")
			return merged, nil
		}
		if err := c.deps.Store.Backup(); err != nil {
			return merged, err
		}
	}
	return merged, c.deps.Store.Save(merged)
}

func (c *Controller) finishRecord(rec *metadata.Record, out *Outcome, err error) {
	rec.FinishedAt = time.Now()
	rec.State = out.State.String()
	rec.Harvested = out.Harvested.Len()
	rec.Saved = out.Merged.Len()
	rec.Stats = c.deps.Crawler.LastStats()
	if err != nil {
		rec.Error = err.Error()
	}

	if saveErr := rec.Save(c.deps.Store.Dir(), c.deps.RecordFile); saveErr != nil {
		c.log.WithError(saveErr).Warn("Failed to write session record")
	}
}
