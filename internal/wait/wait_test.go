package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilReturnsPromptlyAfterConditionHolds(t *testing.T) {
	var counter atomic.Int32
	go func() {
		time.Sleep(500 * time.Millisecond)
		counter.Store(3)
	}()

	w := Waiter{Timeout: 2 * time.Second, Interval: 100 * time.Millisecond}

	start := time.Now()
	ok, err := Until(context.Background(), w, func(ctx context.Context) (bool, error) {
		return counter.Load() >= 3, nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 700*time.Millisecond, "should return within one poll interval of the change")
}

func TestUntilReturnsFirstTruthyValue(t *testing.T) {
	calls := 0
	value, err := Until(context.Background(), Default(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", nil
		}
		return "Job details", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Job details", value)
	assert.Equal(t, 3, calls)
}

func TestUntilImmediateSuccessDoesNotSleep(t *testing.T) {
	w := Waiter{Timeout: time.Second, Interval: 500 * time.Millisecond}

	start := time.Now()
	n, err := Until(context.Background(), w, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUntilTimesOutWithinBounds(t *testing.T) {
	w := Waiter{Timeout: 300 * time.Millisecond, Interval: 100 * time.Millisecond}

	start := time.Now()
	_, err := Until(context.Background(), w, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond, "must not fail before the timeout")
	assert.Less(t, elapsed, 300*time.Millisecond+100*time.Millisecond+100*time.Millisecond,
		"must fail within one poll interval after the timeout")
}

func TestTimeoutErrorCarriesLastValue(t *testing.T) {
	w := Waiter{Timeout: 150 * time.Millisecond, Interval: 50 * time.Millisecond}.
		WithMessage("unclassified failure count > 0")

	_, err := Until(context.Background(), w, func(ctx context.Context) (int, error) {
		return 0, nil
	})

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 0, timeoutErr.Last)
	assert.GreaterOrEqual(t, timeoutErr.Attempts, 3)
	assert.Contains(t, err.Error(), "unclassified failure count > 0")
	assert.Contains(t, err.Error(), "last value: 0")
}

func TestTimeoutErrorKeepsLastConditionError(t *testing.T) {
	errMissing := errors.New("no such element: #info-panel-content")
	w := Waiter{Timeout: 100 * time.Millisecond, Interval: 20 * time.Millisecond}

	_, err := Until(context.Background(), w, func(ctx context.Context) (string, error) {
		return "", errMissing
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, errMissing))
	assert.Contains(t, err.Error(), "last error: no such element")
}

func TestUntilRecoversFromConditionErrors(t *testing.T) {
	calls := 0
	err := True(context.Background(), Waiter{Timeout: time.Second, Interval: 10 * time.Millisecond},
		func(ctx context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, errors.New("stale element")
			}
			return true, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Until(ctx, Waiter{Timeout: 5 * time.Second, Interval: 20 * time.Millisecond},
		func(ctx context.Context) (bool, error) {
			return false, nil
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoffIsCapped(t *testing.T) {
	w := Waiter{Interval: 100 * time.Millisecond, MaxInterval: 300 * time.Millisecond, Backoff: 2}

	assert.Equal(t, 200*time.Millisecond, w.next(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, w.next(200*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, w.next(300*time.Millisecond))

	fixed := Waiter{Interval: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, fixed.next(100*time.Millisecond))
}

func TestZeroWaiterUsesDefaults(t *testing.T) {
	var w Waiter
	assert.Equal(t, DefaultTimeout, w.timeout())
	assert.Equal(t, DefaultInterval, w.interval())
}
