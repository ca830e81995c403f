package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/core"
)

// failing returns an op failing the first n calls, and a pointer to the call count.
func failing(n int, err error) (func(context.Context) error, *int) {
	calls := 0
	return func(context.Context) error {
		calls++
		if calls <= n {
			return err
		}
		return nil
	}, &calls
}

func TestBackoff_Do(t *testing.T) {
	transient := errors.New("connection reset")
	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		wantErr   error
		wantCalls int
	}{
		{name: "first try", attempts: 3, failures: 0, wantCalls: 1},
		{name: "recovers", attempts: 5, failures: 2, err: transient, wantCalls: 3},
		{name: "exhausted", attempts: 3, failures: 10, err: transient, wantErr: transient, wantCalls: 3},
		{name: "single attempt", attempts: 1, failures: 1, err: transient, wantErr: transient, wantCalls: 1},
		{
			name: "dimension mismatch is permanent", attempts: 5, failures: 10,
			err:     fmt.Errorf("%w: got 3, want 4", core.ErrDimensionMismatch),
			wantErr: core.ErrDimensionMismatch, wantCalls: 1,
		},
		{
			name: "validation is permanent", attempts: 5, failures: 10,
			err: core.ErrValidation, wantErr: core.ErrValidation, wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, calls := failing(tt.failures, tt.err)
			err := Backoff{Attempts: tt.attempts, Delay: time.Millisecond}.Do(context.Background(), op)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestBackoff_InvalidAttempts(t *testing.T) {
	op, calls := failing(0, nil)
	err := Backoff{Delay: time.Millisecond}.Do(context.Background(), op)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	assert.Zero(t, *calls)
}

func TestBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("timeout")
	}

	err := Backoff{Attempts: 10, Delay: 10 * time.Millisecond}.Do(ctx, op)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestBackoff_Pause(t *testing.T) {
	b := Backoff{Delay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.pause(1))
	assert.Equal(t, 200*time.Millisecond, b.pause(2))
	assert.Equal(t, 800*time.Millisecond, b.pause(4))
	assert.Equal(t, time.Second, b.pause(5))
	assert.Equal(t, time.Second, b.pause(60))

	uncapped := Backoff{Delay: time.Millisecond}
	assert.Equal(t, 1024*time.Millisecond, uncapped.pause(11))
}

func TestBackoff_WaitsBetweenAttempts(t *testing.T) {
	var stamps []time.Time
	op := func(context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("unavailable")
	}

	_ = Backoff{Attempts: 3, Delay: 20 * time.Millisecond}.Do(context.Background(), op)
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}
