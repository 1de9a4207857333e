package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBusy = errors.New("database is locked")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func TestDoSucceedsFirstTime(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, WithRetryable(isBusy))

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	var retries []int
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	},
		WithRetryable(isBusy),
		WithBaseDelay(time.Millisecond),
		WithOnRetry(func(attempt int, _ error) { retries = append(retries, attempt) }),
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoFailsFastOnPermanentError(t *testing.T) {
	permanent := errors.New("copy unavailable")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, WithRetryable(isBusy))

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoWithoutClassifierNeverRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	}, WithRetryable(isBusy), WithMaxAttempts(3), WithBaseDelay(0))

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errBusy
	}, WithRetryable(isBusy), WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoRejectsInvalidOptions(t *testing.T) {
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, Do(context.Background(), noop, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, Do(context.Background(), noop, WithBaseDelay(-time.Second)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, Do(context.Background(), noop, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
	assert.ErrorIs(t, Do(context.Background(), noop, WithRetryable(nil)), ErrNilClassifier)
}
