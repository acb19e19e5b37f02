package invoke

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastInvoker keeps retry waits negligible so tests run quickly.
func fastInvoker(maxElapsed time.Duration) *Invoker {
	return New(func(o *Options) {
		o.InitialInterval = time.Millisecond
		o.MaxInterval = 2 * time.Millisecond
		o.MaxElapsed = maxElapsed
	})
}

func TestInvokeSucceedsFirstTry(t *testing.T) {
	inv := fastInvoker(time.Second)

	out, err := inv.Invoke(context.Background(), "op", func(context.Context) (any, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	inv := fastInvoker(time.Second)

	attempts := 0
	out, err := inv.Invoke(context.Background(), "flaky", func(context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return attempts, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
	assert.Equal(t, 3, attempts)
}

func TestInvokeNonRetryableStopsImmediately(t *testing.T) {
	inv := fastInvoker(time.Second)

	attempts := 0
	boom := errors.New("missing endpoint configuration")
	_, err := inv.Invoke(context.Background(), "fatal", func(context.Context) (any, error) {
		attempts++
		return nil, NonRetryable(boom)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestInvokeExhaustsBoundedWait(t *testing.T) {
	inv := fastInvoker(20 * time.Millisecond)

	boom := errors.New("still down")
	_, err := inv.Invoke(context.Background(), "down", func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestInvokeRecoversPanics(t *testing.T) {
	inv := fastInvoker(time.Second)

	attempts := 0
	_, err := inv.Invoke(context.Background(), "panicky", func(context.Context) (any, error) {
		attempts++
		panic("unexpected fault")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected fault")
	assert.Equal(t, 1, attempts)
}

func TestInvokeHonorsContextCancellation(t *testing.T) {
	inv := fastInvoker(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.Invoke(ctx, "cancelled", func(context.Context) (any, error) {
		return nil, errors.New("transient")
	})
	assert.Error(t, err)
}

func TestIsNonRetryable(t *testing.T) {
	base := errors.New("base")
	assert.False(t, IsNonRetryable(base))
	assert.True(t, IsNonRetryable(NonRetryable(base)))
	assert.Nil(t, NonRetryable(nil))
}
