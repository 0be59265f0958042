// Package crawler harvests full-size image URLs from an image-results grid
// by clicking through its thumbnails pass by pass.
package crawler

import (
	"context"
	"strings"
	"time"

	"scrapix/pkg/browser"
	"scrapix/pkg/logger"
	"scrapix/pkg/pacing"
	"scrapix/pkg/result"
	"scrapix/pkg/validator"
)

// Markers tell the crawler how to find thumbnails and read the enlarged
// image they reveal.
type Markers struct {
	Thumbnail browser.Selector
	// Images are tried in order after each click.
	Images          []browser.Selector
	SourceAttribute string
	TitleAttribute  string
	// SchemeMarker must appear in a usable source; ProxyMarker must not.
	SchemeMarker string
	ProxyMarker  string
}

// Timeouts bound the per-thumbnail interaction.
type Timeouts struct {
	Click time.Duration
}

// Request describes one harvest.
type Request struct {
	Query string
	Limit int
	Skip  int
	Rules validator.Rules
}

// Acceptor is the validation step applied to every candidate.
type Acceptor interface {
	Check(ctx context.Context, candidate result.Result, known result.Lookup, rules validator.Rules) validator.Verdict
}

// Crawler runs the harvest loop against one page.
type Crawler struct {
	page     browser.Page
	accept   Acceptor
	pacer    pacing.Policy
	markers  Markers
	timeouts Timeouts
	logger   logger.Logger

	// OnEvent, when set, receives progress as it happens.
	OnEvent func(Event)

	stats Stats
}

// New creates a Crawler.
func New(page browser.Page, accept Acceptor, pacer pacing.Policy, markers Markers, timeouts Timeouts, log logger.Logger) *Crawler {
	return &Crawler{
		page:     page,
		accept:   accept,
		pacer:    pacer,
		markers:  markers,
		timeouts: timeouts,
		logger:   log,
	}
}

// crawlState lives for one Harvest call.
type crawlState struct {
	accumulated result.Set
	seen        int
}

// Harvest collects up to req.Limit new results, skipping the first req.Skip
// thumbnails. known results are never returned again.
//
// The loop stops when the limit is reached or when a pass finds no
// thumbnails beyond those already seen. Both are normal outcomes. If ctx
// ends, the thumbnail in flight is finished and the results so far are
// returned with ctx's error.
func (c *Crawler) Harvest(ctx context.Context, req Request, known result.Set) (result.Set, error) {
	c.stats = newStats()
	state := &crawlState{accumulated: result.NewSet()}
	lookup := result.Either(state.accumulated, known)
	log := c.logger.WithField("query", req.Query)

	if err := c.pacer.Pause(ctx, pacing.PhaseGather); err != nil {
		return state.accumulated, err
	}

	for pass := 1; state.accumulated.Len() < req.Limit; pass++ {
		if err := ctx.Err(); err != nil {
			return state.accumulated, err
		}

		thumbs, err := c.page.Find(ctx, c.markers.Thumbnail, browser.FindOptions{All: true})
		if err != nil {
			if ctx.Err() != nil {
				return state.accumulated, ctx.Err()
			}
			log.WithError(err).ErrorWithFields("Thumbnail lookup failed, ending harvest", map[string]interface{}{
				"pass": pass,
			})
			c.emit(Event{Kind: EventExhausted, Pass: pass, Accepted: state.accumulated.Len(), Err: err})
			break
		}

		c.stats.Passes = pass
		newCount := len(thumbs) - state.seen
		c.emit(Event{Kind: EventPass, Pass: pass, Visible: len(thumbs), New: newCount, Accepted: state.accumulated.Len()})
		if newCount <= 0 {
			log.InfoWithFields("No new thumbnails, results exhausted", map[string]interface{}{
				"pass":     pass,
				"visible":  len(thumbs),
				"accepted": state.accumulated.Len(),
			})
			c.emit(Event{Kind: EventExhausted, Pass: pass, Accepted: state.accumulated.Len()})
			break
		}

		if req.Skip > len(thumbs) {
			log.DebugWithFields("Skip prefix not loaded yet, scrolling", map[string]interface{}{
				"pass":    pass,
				"visible": len(thumbs),
				"skip":    req.Skip,
			})
			if err := c.scrollTo(ctx, thumbs[len(thumbs)-1]); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Scroll to last thumbnail failed")
			}
			if err := c.pacer.Pause(ctx, pacing.PhaseScroll); err != nil {
				return state.accumulated, err
			}
			state.seen = len(thumbs)
			continue
		}

		start := max(state.seen, req.Skip)
		for i := start; i < len(thumbs); i++ {
			if err := ctx.Err(); err != nil {
				return state.accumulated, err
			}
			c.process(ctx, log, req, pass, i, thumbs[i], state, lookup)
			if state.accumulated.Len() >= req.Limit {
				c.emit(Event{Kind: EventLimitReached, Pass: pass, Index: i, Accepted: state.accumulated.Len()})
				break
			}
		}
		state.seen = len(thumbs)
		logger.LogHarvestProgress(c.logger, req.Query, state.accumulated.Len(), req.Limit, pass)
	}

	return state.accumulated, ctx.Err()
}

// process handles one thumbnail. Every failure here is logged and skipped.
func (c *Crawler) process(ctx context.Context, log logger.Logger, req Request, pass, index int, thumb browser.Element, state *crawlState, lookup result.Lookup) {
	fields := map[string]interface{}{"pass": pass, "index": index}

	if err := c.reveal(ctx, thumb); err != nil {
		c.stats.InteractionFailures++
		log.WithError(err).WarnWithFields("Thumbnail interaction failed, skipping", fields)
		c.emit(Event{Kind: EventInteractionFailed, Pass: pass, Index: index, Accepted: state.accumulated.Len(), Err: err})
		return
	}
	c.stats.Clicked++

	// The in-flight thumbnail is finished even if ctx ends during the pause.
	_ = c.pacer.Pause(ctx, pacing.PhaseReveal)
	extractCtx := context.WithoutCancel(ctx)

	candidate, ok := c.extract(extractCtx, log, fields)
	if !ok {
		c.stats.Empty++
		log.DebugWithFields("No usable image behind thumbnail", fields)
		return
	}

	verdict := c.accept.Check(extractCtx, candidate, lookup, req.Rules)
	c.stats.Verdicts[verdict.String()]++
	if verdict != validator.Accept {
		log.DebugWithFields("Candidate rejected", map[string]interface{}{
			"pass":   pass,
			"index":  index,
			"url":    candidate.URL(),
			"reason": verdict.String(),
		})
		c.emit(Event{Kind: EventRejected, Pass: pass, Index: index, Result: candidate, Verdict: verdict, Accepted: state.accumulated.Len()})
		return
	}

	state.accumulated.Add(candidate)
	log.DebugWithFields("Candidate accepted", map[string]interface{}{
		"pass":  pass,
		"index": index,
		"url":   candidate.URL(),
	})
	c.emit(Event{Kind: EventAccepted, Pass: pass, Index: index, Result: candidate, Accepted: state.accumulated.Len()})
}

func (c *Crawler) reveal(ctx context.Context, thumb browser.Element) error {
	if err := c.scrollTo(ctx, thumb); err != nil {
		return err
	}
	cctx, cancel := c.clickContext(ctx)
	defer cancel()
	return thumb.Click(cctx)
}

func (c *Crawler) scrollTo(ctx context.Context, el browser.Element) error {
	cctx, cancel := c.clickContext(ctx)
	defer cancel()
	return el.ScrollIntoView(cctx)
}

func (c *Crawler) clickContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeouts.Click > 0 {
		return context.WithTimeout(ctx, c.timeouts.Click)
	}
	return context.WithCancel(ctx)
}

// extract returns the first enlarged image with a usable source.
func (c *Crawler) extract(ctx context.Context, log logger.Logger, fields map[string]interface{}) (result.Result, bool) {
	for _, marker := range c.markers.Images {
		els, err := c.page.Find(ctx, marker, browser.FindOptions{All: true})
		if err != nil {
			log.WithError(err).DebugWithFields("Image marker lookup failed", fields)
			continue
		}
		for _, el := range els {
			src, ok, err := el.Attribute(ctx, c.markers.SourceAttribute)
			if err != nil || !ok || !c.usable(src) {
				continue
			}
			title, hasTitle, err := el.Attribute(ctx, c.markers.TitleAttribute)
			if err != nil {
				continue
			}
			if !hasTitle {
				return result.Untitled(src), true
			}
			return result.New(title, src), true
		}
	}
	return result.Result{}, false
}

func (c *Crawler) usable(src string) bool {
	if !strings.Contains(src, c.markers.SchemeMarker) {
		return false
	}
	return c.markers.ProxyMarker == "" || !strings.Contains(src, c.markers.ProxyMarker)
}

func (c *Crawler) emit(e Event) {
	if c.OnEvent != nil {
		c.OnEvent(e)
	}
}

// LastStats returns counters from the most recent Harvest.
func (c *Crawler) LastStats() Stats {
	return c.stats.clone()
}
