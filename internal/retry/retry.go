// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs an operation under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based) before the next one.
type BackoffFunc func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how often and how patiently to retry.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Sleep       SleepFunc

	// Retryable decides whether a failed attempt is worth repeating.
	// Nil means every error is retryable.
	Retryable func(error) bool

	// OnRetry, when set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Fixed returns a backoff that always waits d.
func Fixed(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Exponential returns a backoff that doubles from base, capped at max.
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d <= 0 || (max > 0 && d > max) {
			return max
		}
		return d
	}
}

// ContextSleep is the default SleepFunc. It only blocks the calling goroutine.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrExhausted is wrapped by the error returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

type exhaustedError struct {
	last error
}

func (e *exhaustedError) Error() string { return ErrExhausted.Error() + ": " + e.last.Error() }

func (e *exhaustedError) Unwrap() []error { return []error{ErrExhausted, e.last} }

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx is cancelled. It returns fn's last value and
// the number of attempts made.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Fixed(0)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	var (
		val  T
		err  error
		zero T
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		val, err = fn(ctx, attempt)
		if err == nil {
			return val, attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return val, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, attempt, serr
		}
	}
	return val, maxAttempts, &exhaustedError{last: err}
}
