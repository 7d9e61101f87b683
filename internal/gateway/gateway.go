// Package gateway bounds every chain call with a deadline.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
)

const DefaultTimeout = 7000 * time.Millisecond

type Gateway struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{Timeout: timeout}
}

type result[T any] struct {
	v   T
	err error
}

// Do runs op and races it against the gateway timeout. When the timer wins,
// Do returns a failure.Timeout carrying msg and the late result of op is
// dropped. op receives a context that expires with the timer, so well-behaved
// calls unwind on their own.
func Do[T any](ctx context.Context, g *Gateway, msg string, op func(ctx context.Context) (T, error)) (T, error) {
	timeout := DefaultTimeout
	if g != nil && g.Timeout > 0 {
		timeout = g.Timeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- result[T]{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return zero, failure.Wrap(failure.Timeout, r.err, msg)
		}
		return r.v, r.err
	case <-timer.C:
		return zero, failure.New(failure.Timeout, msg)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Exec is Do for operations without a result value.
func Exec(ctx context.Context, g *Gateway, msg string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, g, msg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
