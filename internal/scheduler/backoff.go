package scheduler

import (
	"math"
	"time"
)

// RetryConfig bounds processor submission retries
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the retry bounds used when configuration
// does not override them
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  30 * time.Minute,
	}
}

// backoff returns base * 2^(attempt-1), capped at MaxBackoff
func backoff(attempt int, cfg RetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.BaseBackoff
	}
	delay := time.Duration(float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if delay > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return delay
}
