package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyError struct{ msg string }

func (e *flakyError) Error() string { return e.msg }

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	calls := 0

	got, err := Do(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustionPreservesErrorIdentity(t *testing.T) {
	calls := 0
	boom := &flakyError{msg: "boom"}

	_, err := Do(context.Background(), 3, time.Millisecond, func() (string, error) {
		calls++
		return "", boom
	})

	assert.Equal(t, 3, calls)
	require.Error(t, err)

	// The exact error value must surface, not a wrapped copy.
	assert.Same(t, boom, err.(*flakyError))
}

func TestDoSingleAttemptNoDelay(t *testing.T) {
	calls := 0

	start := time.Now()
	_, err := Do(context.Background(), 1, time.Second, func() (int, error) {
		calls++
		return 0, errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDoContextCancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, 3, time.Minute, func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWhenStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	fatal := errors.New("bad credentials")

	_, err := DoWhen(context.Background(), 5, time.Millisecond, func() (int, error) {
		calls++
		return 0, fatal
	}, func(err error) bool {
		return !errors.Is(err, fatal)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, fatal, err)
}

func TestDoVoid(t *testing.T) {
	calls := 0

	err := DoVoid(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return errors.New("once")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
