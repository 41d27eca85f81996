package bridge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitWithDeadlineReturnsResult(t *testing.T) {
	b := New(0)
	defer b.Stop()

	value, err := b.SubmitWithDeadline(context.Background(), time.Second, func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestSubmitWithDeadlineTimesOutWithoutCancellingWork(t *testing.T) {
	b := New(0)
	defer b.Stop()

	var completed atomic.Bool
	start := time.Now()
	_, err := b.SubmitWithDeadline(context.Background(), 50*time.Millisecond, func(ctx context.Context) (any, error) {
		time.Sleep(200 * time.Millisecond)
		completed.Store(true)
		return nil, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Less(t, elapsed, 150*time.Millisecond)

	require.Eventually(t, func() bool { return completed.Load() }, time.Second, 10*time.Millisecond,
		"in-loop work must run to completion even after the caller times out")
}

func TestCallsFromSingleCallerSerializeInEnqueueOrder(t *testing.T) {
	b := New(0)
	defer b.Stop()

	var order []int
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		i := i
		ch, err := b.Submit(func(ctx context.Context) (any, error) {
			order = append(order, i)
			return i, nil
		})
		require.NoError(t, err)
		go func() {
			<-ch
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestStopRejectsFurtherSubmissions(t *testing.T) {
	b := New(0)
	b.Stop()

	_, err := b.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestTimeoutIsolationSubsequentCallSucceeds(t *testing.T) {
	b := New(0)
	defer b.Stop()

	_, err := b.SubmitWithDeadline(context.Background(), 30*time.Millisecond, func(ctx context.Context) (any, error) {
		time.Sleep(150 * time.Millisecond)
		return nil, nil
	})
	require.Error(t, err)

	value, err := b.SubmitWithDeadline(context.Background(), time.Second, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
}
