// internal/services/retry.go
package services

import "time"

// RetryPolicy is the bounded exponential backoff applied to transient
// gateway failures: attempt n sleeps base * 2^(n-1), up to MaxAttempts.
// Declines are never retried.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
