// Package retrypolicy classifies probe failures and computes the
// exponential backoff wait between attempts.
package retrypolicy

import (
	"math"
	"time"
)

// Config tunes backoff. Zero values fall back to the defaults below.
type Config struct {
	ExpBase      float64 // default 2
	Multiplier   float64 // default 2
	Min          time.Duration // default 4s
	MinMultiplier float64 // default 8, applied to 429s
	MaxAttempts  int // default 3
}

func (c Config) withDefaults() Config {
	if c.ExpBase <= 0 {
		c.ExpBase = 2
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.Min <= 0 {
		c.Min = 4 * time.Second
	}
	if c.MinMultiplier <= 0 {
		c.MinMultiplier = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// retryableStatuses is the closed set of HTTP statuses worth retrying,
// alongside transport timeouts (represented by status 0 at this layer).
var retryableStatuses = map[int]struct{}{
	408: {}, 409: {}, 429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// Classify reports whether an HTTP status code is worth retrying.
// Transport-level failures (no status available) are always
// retryable; callers pass status 0 for those.
func Classify(status int) bool {
	if status == 0 {
		return true
	}
	_, ok := retryableStatuses[status]
	return ok
}

// IsServerErrorClass reports whether status falls in the "unspecified
// server error" class used by the decision engine's pass-2 broken-link
// classification (status <= -100, i.e. exactly
// domain.StatusTransportFailure today, but expressed by range so future
// internal codes in that band classify the same way).
func IsServerErrorClass(status int) bool { return status <= -100 }

// Wait computes the backoff duration before attempt number `attempt`
// (1-indexed: the wait before the *next* try after a failure on attempt
// N uses attempt=N). When the failure was an HTTP 429, pass
// isRateLimited=true to apply MinMultiplier before the floor is taken.
func (c Config) Wait(attempt int, isRateLimited bool) time.Duration {
	c = c.withDefaults()

	exp := math.Pow(c.ExpBase, float64(attempt-1))
	resultSeconds := c.Multiplier * exp

	minimumSeconds := c.Min.Seconds()
	if isRateLimited {
		minimumSeconds *= c.MinMultiplier
	}

	waitSeconds := math.Max(minimumSeconds, resultSeconds)
	return time.Duration(waitSeconds * float64(time.Second))
}

// MaxAttemptCount returns the configured maximum attempt count (default 3).
func (c Config) MaxAttemptCount() int { return c.withDefaults().MaxAttempts }
