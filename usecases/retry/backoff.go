//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff waits interval × n before the n-th retry: 10s, 20s, 30s, ...
type LinearBackOff struct {
	Interval time.Duration
	attempt  int
}

func NewLinearBackOff(interval time.Duration) *LinearBackOff {
	return &LinearBackOff{Interval: interval}
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.Interval
}

func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// AttemptsBackOff allows at most maxAttempts calls of the operation in total
// (so maxAttempts-1 retries), waiting interval × retry in between and
// stopping early when ctx is done.
func AttemptsBackOff(ctx context.Context, maxAttempts int, interval time.Duration) backoff.BackOff {
	retries := maxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(NewLinearBackOff(interval), uint64(retries)), ctx)
}
