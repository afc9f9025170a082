// Package backoff is the retry schedule shared by the job engine and the
// webhook reconciliation loop.
//
// The schedule is a fixed table, not a formula: 1m, 5m, 15m, 1h. Jobs that
// exhaust max_attempts are dead-lettered and never retried. The table is
// deliberately discrete so that boundary behavior is exact and testable.
package backoff

import "time"

// DefaultMaxAttempts applies when a job row carries no max_attempts of its own.
const DefaultMaxAttempts = 5

// delays maps attempt count (1-based) to the wait before the next retry.
var delays = [...]time.Duration{
	1: 1 * time.Minute,
	2: 5 * time.Minute,
	3: 15 * time.Minute,
	4: 1 * time.Hour,
}

// Delay returns the wait inserted after the given failed attempt.
// Attempts of 5 or more return 0: no delay is computed because the job is
// being dead-lettered rather than rescheduled.
func Delay(attempts int) time.Duration {
	if attempts < 1 || attempts >= len(delays) {
		return 0
	}
	return delays[attempts]
}

// IsDead reports whether a job with the given attempt count has exhausted its
// retry budget. A maxAttempts of zero or less means the row did not specify
// one and DefaultMaxAttempts applies.
func IsDead(attempts, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return attempts >= maxAttempts
}

// NextRunAt returns the next eligibility time for a job that just failed its
// attempts-th attempt, or nil when the job is dead and must never be
// reclaimed.
func NextRunAt(now time.Time, attempts, maxAttempts int) *time.Time {
	if IsDead(attempts, maxAttempts) {
		return nil
	}
	t := now.Add(Delay(attempts))
	return &t
}
