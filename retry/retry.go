// SPDX-License-Identifier: ice License 1.0

// Package retry re-invokes calls to unreliable external processes and network resources.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

// Do invokes fn at most tries times, sequentially and without delay, returning the first success.
// When every attempt fails the error of the last attempt is returned.
func Do[T any](ctx context.Context, tries int, fn func() (T, error)) (T, error) {
	return DoWithDelay(ctx, tries, 0, fn)
}

func DoWithDelay[T any](ctx context.Context, tries int, delay time.Duration, fn func() (T, error)) (T, error) {
	if tries < 1 {
		var zero T

		return zero, errors.Errorf("invalid number of tries %v", tries)
	}
	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if delay > 0 {
		policy = backoff.NewConstantBackOff(delay)
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(tries-1)), ctx)

	return backoff.RetryWithData(fn, policy)
}

// Wrap decorates fn so every call of the result is retried up to tries times.
func Wrap[T any](tries int, fn func() (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, tries, fn)
	}
}

// Permanent marks err as not worth retrying; Do returns it unwrapped immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
