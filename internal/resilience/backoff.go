// SPDX-License-Identifier: MIT

package resilience

import "time"

// BackoffCalculator yields the delay before the next retry attempt.
// Implementations must be pure: no state, no side effects.
type BackoffCalculator interface {
	DelayFor(attempt int) time.Duration
}

// BackoffFunc adapts a plain function to BackoffCalculator.
type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) DelayFor(attempt int) time.Duration { return f(attempt) }

// QuadraticBackoff returns the default backoff policy: attempt² × base.
// With the 500ms default base the delays run 500ms, 2s, 4.5s, ...
func QuadraticBackoff(base time.Duration) BackoffCalculator {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return BackoffFunc(func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt*attempt) * base
	})
}
