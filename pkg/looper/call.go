package looper

import (
	"context"
)

type result[T any] struct {
	value T
	err   error
}

// Call runs fn on l and waits for its result.
//
// Every call gets its own reply channel with room for exactly one result, so
// concurrent calls never see each other's replies and the looper never
// blocks handing a result back. If ctx ends first Call returns ctx.Err(); fn
// still runs (or has run) on the looper and its result is dropped.
//
// Call must not be used from a task running on l: the task would wait for
// itself.
func Call[T any](ctx context.Context, l *Looper, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	reply := make(chan result[T], 1)
	err := l.Post(func() {
		v, err := fn()
		reply <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do is Call for closures that only report an error.
func Do(ctx context.Context, l *Looper, fn func() error) error {
	_, err := Call(ctx, l, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Sync returns once every task posted to l before it has run.
func Sync(ctx context.Context, l *Looper) error {
	return Do(ctx, l, func() error { return nil })
}
