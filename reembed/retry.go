// Copyright 2025 Poiesic Systems
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

package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/recall/core"
)

// DefaultMaxDelay caps any single backoff pause.
const DefaultMaxDelay = 30 * time.Second

// Backoff retries an operation, doubling the pause after each failure.
type Backoff struct {
	Attempts int           // total attempts including the first; must be > 0
	Delay    time.Duration // pause after the first failure
	MaxDelay time.Duration // zero leaves pauses uncapped
	Logger   *slog.Logger
}

// Do runs op until it succeeds, fails permanently or runs out of attempts,
// and returns the last error. Dimension and validation failures are
// permanent: another call to the same model returns the same vectors.
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(ctx); err == nil {
			if attempt > 1 {
				logger.Info("embedding batch recovered", "attempt", attempt)
			}
			return nil
		}
		if permanent(err) || attempt == b.Attempts {
			return err
		}

		pause := b.pause(attempt)
		logger.Warn("embedding batch failed, retrying", "attempt", attempt, "max_attempts", b.Attempts, "pause", pause, "err", err)
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// pause returns the wait after the given failed attempt: Delay, 2*Delay, 4*Delay...
func (b Backoff) pause(attempt int) time.Duration {
	d := b.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

func permanent(err error) bool {
	return errors.Is(err, core.ErrDimensionMismatch) ||
		errors.Is(err, core.ErrEmptyVector) ||
		errors.Is(err, core.ErrValidation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
