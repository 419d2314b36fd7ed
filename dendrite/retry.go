package dendrite

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// MaxAttempts counts the first attempt. Zero means 3.
	MaxAttempts int
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		MaxAttempts:  3,
	}
}

// NextBackoffDelay returns the wait before attempt (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Retry calls fn until it succeeds, fails with a non-transient code, or runs
// out of attempts. Transport errors count as transient. The last response
// and error are returned.
func Retry(ctx context.Context, cfg BackoffConfig, fn func(context.Context) (*Response, error)) (*Response, error) {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		resp *Response
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err = fn(ctx)
		if !Retryable(resp, err) {
			return resp, err
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(NextBackoffDelay(cfg, attempt, rng))
		select {
		case <-ctx.Done():
			t.Stop()
			return resp, err
		case <-t.C:
		}
	}
	return resp, err
}

// Retryable reports whether a call outcome is worth repeating.
func Retryable(resp *Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.Code.Retryable()
}
