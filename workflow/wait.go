package workflow

import (
	"context"
	"time"
)

// Await runs op and bounds the wait for its result by timeout.
//
// On timeout the op's context is cancelled so the poll stops, and ErrTimeout
// is returned. Cancelling the wait does not cancel whatever the op was
// observing; a broadcast transaction may still confirm after Await has given
// up. The op's late result, if any, is discarded.
func Await[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
