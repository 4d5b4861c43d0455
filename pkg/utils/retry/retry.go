// Copyright 2024 The saturn.io Authors
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

package retry

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

var DefaultBackoff = wait.Backoff{
	Steps:    5,
	Duration: 2 * time.Second,
	Factor:   1.5,
	Jitter:   0.1,
}

func AlwaysError(err error) bool { return true }

func Always(ctx context.Context, fn func() error) error {
	return OnError(ctx, DefaultBackoff, AlwaysError, fn)
}

// OnError calls fn until it succeeds, isRetry returns false, or backoff is exhausted.
// The last error of fn is returned when retries run out.
func OnError(ctx context.Context, backoff wait.Backoff, isRetry func(error) bool, fn func() error) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		err := fn()
		switch {
		case err == nil:
			return true, nil
		case isRetry(err):
			lastErr = err
			return false, nil
		default:
			return false, err
		}
	})
	if wait.Interrupted(err) && lastErr != nil {
		return lastErr
	}
	return err
}

func NotContextCancelError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
