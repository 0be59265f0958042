package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapix/pkg/config"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInBand(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	distinct := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts: attempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     func(error) bool { return true },
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("persistent")
	}, cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried, "no wait after the final attempt")
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	notFound := errs.New(errs.ErrorTypeNotFound, "gone")
	attempts := 0
	cfg := fastConfig(5)
	cfg.RetryIf = DefaultRetryIf

	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return notFound
	}, cfg)

	assert.Same(t, notFound, err)
	assert.Equal(t, 1, attempts)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	cfg := fastConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: time.Minute}

	err := Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("boom")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"network", errs.New(errs.ErrorTypeNetwork, "reset"), true},
		{"rate limited", errs.New(errs.ErrorTypeRateLimit, "429"), true},
		{"server", errs.New(errs.ErrorTypeServerError, "503"), true},
		{"not found", errs.New(errs.ErrorTypeNotFound, "404"), false},
		{"input", errs.New(errs.ErrorTypeInput, "bad"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryIf(tt.err))
		})
	}
}

func TestFromConfig(t *testing.T) {
	log := logger.NewTestLogger()

	disabled := FromConfig(config.RetryConfig{Enabled: false, MaxAttempts: 5}, log)
	assert.Equal(t, 1, disabled.MaxAttempts)

	enabled := FromConfig(config.RetryConfig{
		Enabled:     true,
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  3,
	}, log)
	assert.Equal(t, 4, enabled.MaxAttempts)
	require.IsType(t, &ExponentialBackoff{}, enabled.Backoff)
	assert.Equal(t, 3*time.Second, enabled.Backoff.NextDelay(2))
}

func TestSingleAttemptReturnsUnwrappedError(t *testing.T) {
	cause := errors.New("once")
	err := Do(context.Background(), func(context.Context) error { return cause }, fastConfig(1))
	assert.Same(t, cause, err)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
