// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"log"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how long a transaction is retried while the store is busy.
type RetryPolicy struct {
	// BaseDelay is the first backoff, doubled on each attempt.
	BaseDelay time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  25 * time.Millisecond,
		MaxRetries: 5,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy().BaseDelay
	}

	return retry.WithMaxRetries(p.MaxRetries, retry.WithJitterPercent(10, retry.NewExponential(base)))
}

// withBusyRetry runs fn, retrying it with exponential backoff while it fails
// with a busy error. fn must be safe to re-run from scratch.
func withBusyRetry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempt := 0

	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++

		err := fn(ctx)
		if err != nil && IsBusyError(err) {
			if attempt > 1 {
				log.Printf("⚠️  %s: store busy (attempt %d)", op, attempt)
			}

			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil && IsBusyError(err) {
		return &OpError{Op: op, Kind: KindBusy, Err: err}
	}

	return err
}
