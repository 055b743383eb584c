package retry

import (
	"fmt"
	"math"
	"time"
)

// MinDelay is the floor applied to jittered delays.
const MinDelay = 100 * time.Millisecond

// jitterFraction is the ± share of the computed delay that jitter may add or remove.
const jitterFraction = 0.2

// Config controls how often and how patiently operations are retried.
type Config struct {
	MaxRetries        int           // retries after the first attempt
	BaseDelay         time.Duration // first backoff for retryable failures
	BackoffFactor     float64       // multiplier per attempt
	MaxDelay          time.Duration // cap for retryable failures
	RateLimitDelay    time.Duration // first backoff after a rate limit
	RateLimitMaxDelay time.Duration // cap after a rate limit
	Jitter            bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		BackoffFactor:     2.0,
		MaxDelay:          60 * time.Second,
		RateLimitDelay:    10 * time.Second,
		RateLimitMaxDelay: 300 * time.Second,
		Jitter:            true,
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("retry: max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("retry: backoff factor must be >= 1, got %v", c.BackoffFactor)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 || c.RateLimitDelay < 0 || c.RateLimitMaxDelay < 0 {
		return fmt.Errorf("retry: delays must not be negative")
	}
	return nil
}

// ShouldRetry decides whether a failure of category cat on the given 0-based
// attempt deserves another try.
func (c Config) ShouldRetry(cat Category, attempt int) bool {
	if attempt >= c.MaxRetries {
		return false
	}
	switch cat {
	case Retryable, RateLimited:
		return true
	case BusinessLogic, Authentication:
		return false
	case Unknown:
		return attempt == 0
	}
	return false
}

// Delay computes the backoff before retrying after attempt. u is a uniform
// sample in [0,1) and is only used when jitter is enabled.
func (c Config) Delay(cat Category, attempt int, u float64) time.Duration {
	base, limit := c.BaseDelay, c.MaxDelay
	if cat == RateLimited {
		base, limit = c.RateLimitDelay, c.RateLimitMaxDelay
	}

	d := float64(base) * math.Pow(c.BackoffFactor, float64(attempt))
	if d > float64(limit) {
		d = float64(limit)
	}

	if c.Jitter {
		spread := d * jitterFraction
		d += (u*2 - 1) * spread
		if d < float64(MinDelay) {
			d = float64(MinDelay)
		}
	}
	return time.Duration(d)
}
