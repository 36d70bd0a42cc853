package core

import (
	"math"
	"time"
)

// ThrottleConfig defines how many control requests a sender may make
type ThrottleConfig struct {
	Capacity     float64 // Maximum tokens (burst size)
	RefillPerSec float64 // Tokens added per second
}

// BucketState is one sender's remaining budget
type BucketState struct {
	Tokens       float64   // Current tokens available
	LastRefillAt time.Time // Last time tokens were refilled
}

// CheckResult is the outcome of spending one token
type CheckResult struct {
	Allowed    bool          // Whether the request may proceed
	Remaining  float64       // Tokens left after this request
	RetryAfter time.Duration // Wait before the next token (when denied)
}

// TokenBucket implements the token bucket algorithm
type TokenBucket struct {
	config ThrottleConfig
}

// NewTokenBucket creates a new token bucket with the given configuration
func NewTokenBucket(config ThrottleConfig) *TokenBucket {
	return &TokenBucket{config: config}
}

// Check refills state up to now and tries to spend one token.
// A nil state starts full. It returns the updated state.
func (tb *TokenBucket) Check(state *BucketState, now time.Time) (*BucketState, CheckResult) {
	if state == nil {
		state = &BucketState{
			Tokens:       tb.config.Capacity,
			LastRefillAt: now,
		}
	}

	elapsed := now.Sub(state.LastRefillAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	next := &BucketState{
		Tokens:       math.Min(state.Tokens+elapsed*tb.config.RefillPerSec, tb.config.Capacity),
		LastRefillAt: now,
	}

	if next.Tokens >= 1.0 {
		next.Tokens -= 1.0
		return next, CheckResult{Allowed: true, Remaining: next.Tokens}
	}

	retry := time.Duration(math.MaxInt64)
	if tb.config.RefillPerSec > 0 {
		secs := (1.0 - next.Tokens) / tb.config.RefillPerSec
		retry = time.Duration(math.Ceil(secs*1000)) * time.Millisecond
	}
	return next, CheckResult{Allowed: false, RetryAfter: retry}
}
