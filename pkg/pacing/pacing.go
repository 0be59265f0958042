// Package pacing spaces browser interactions out the way a person would.
// It only affects how a session looks to the site, never what it finds,
// so tests run with None.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"scrapix/pkg/config"
)

// Phase names a point in the session that takes a pause.
type Phase int

const (
	// PhaseSettle follows navigation, while asynchronous content populates.
	PhaseSettle Phase = iota
	// PhaseReveal follows a thumbnail click, while the preview panel loads.
	PhaseReveal
	// PhaseScroll follows a skip-ahead scroll that triggers lazy loading.
	PhaseScroll
	// PhaseGather precedes the first pass over the result grid.
	PhaseGather
)

func (p Phase) String() string {
	switch p {
	case PhaseSettle:
		return "settle"
	case PhaseReveal:
		return "reveal"
	case PhaseScroll:
		return "scroll"
	case PhaseGather:
		return "gather"
	default:
		return "unknown"
	}
}

// Policy decides pauses and the browser identity.
type Policy interface {
	// Pause blocks for the phase's delay or until ctx is done.
	Pause(ctx context.Context, phase Phase) error
	// UserAgent returns the user agent to present, or "" for the
	// browser's own.
	UserAgent() string
}

// Jittered draws each pause uniformly from its configured range and picks
// a user agent at random from a pool.
type Jittered struct {
	ranges map[Phase]config.Range
	agents []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJittered builds a policy from cfg. A nil rng seeds from the clock.
func NewJittered(cfg config.PacingConfig, agents []string, rng *rand.Rand) *Jittered {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Jittered{
		ranges: map[Phase]config.Range{
			PhaseSettle: cfg.Settle,
			PhaseReveal: cfg.Reveal,
			PhaseScroll: cfg.Scroll,
			PhaseGather: cfg.Gather,
		},
		agents: agents,
		rng:    rng,
	}
}

// Delay returns the pause Pause would take for phase.
func (j *Jittered) Delay(phase Phase) time.Duration {
	r := j.ranges[phase]
	if r.Max <= r.Min {
		return r.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return r.Min + time.Duration(j.rng.Int63n(int64(r.Max-r.Min)+1))
}

func (j *Jittered) Pause(ctx context.Context, phase Phase) error {
	return sleep(ctx, j.Delay(phase))
}

func (j *Jittered) UserAgent() string {
	if len(j.agents) == 0 {
		return ""
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.agents[j.rng.Intn(len(j.agents))]
}

type none struct{ agent string }

// None returns a policy that never pauses.
func None() Policy {
	return none{}
}

func (n none) Pause(ctx context.Context, _ Phase) error { return ctx.Err() }
func (n none) UserAgent() string                        { return n.agent }

// FromConfig returns Jittered when pacing is enabled and a pause-free policy
// otherwise. The user agent pool is honoured either way.
func FromConfig(cfg config.PacingConfig, agents []string) Policy {
	if cfg.Enabled {
		return NewJittered(cfg, agents, nil)
	}
	if len(agents) > 0 {
		return none{agent: agents[0]}
	}
	return None()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
