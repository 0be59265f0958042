package pacing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scrapix/pkg/config"
)

func TestJitteredDelayStaysInRange(t *testing.T) {
	cfg := config.DefaultConfig().Pacing
	j := NewJittered(cfg, nil, rand.New(rand.NewSource(1)))

	for i := 0; i < 200; i++ {
		d := j.Delay(PhaseReveal)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 2*time.Second)

		d = j.Delay(PhaseSettle)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestJitteredFixedRange(t *testing.T) {
	j := NewJittered(config.PacingConfig{Scroll: config.Range{Min: 5 * time.Millisecond, Max: 5 * time.Millisecond}}, nil, nil)
	assert.Equal(t, 5*time.Millisecond, j.Delay(PhaseScroll))
	assert.Zero(t, j.Delay(PhaseGather))
}

func TestPauseHonoursCancellation(t *testing.T) {
	j := NewJittered(config.PacingConfig{Settle: config.Range{Min: time.Hour, Max: time.Hour}}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := j.Pause(ctx, PhaseSettle)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUserAgentRotation(t *testing.T) {
	agents := []string{"agent-a", "agent-b", "agent-c"}
	j := NewJittered(config.PacingConfig{}, agents, rand.New(rand.NewSource(7)))

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ua := j.UserAgent()
		assert.Contains(t, agents, ua)
		seen[ua] = true
	}
	assert.Len(t, seen, 3)

	assert.Empty(t, NewJittered(config.PacingConfig{}, nil, nil).UserAgent())
}

func TestNoneNeverWaits(t *testing.T) {
	p := None()
	start := time.Now()
	for _, phase := range []Phase{PhaseSettle, PhaseReveal, PhaseScroll, PhaseGather} {
		assert.NoError(t, p.Pause(context.Background(), phase))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, p.UserAgent())
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Pacing
	_, ok := FromConfig(cfg, nil).(*Jittered)
	assert.True(t, ok)

	cfg.Enabled = false
	p := FromConfig(cfg, []string{"fixed"})
	assert.Equal(t, "fixed", p.UserAgent())
	assert.NoError(t, p.Pause(context.Background(), PhaseSettle))
}
