// Package safetynet contains failures of session-store mutations so callers can turn them into an
// explicit decline instead of an unexplained error.
package safetynet

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/rs/zerolog"
)

// Result is the outcome of an operation run inside the net. When Caught is true Value is the
// zero value and Cause holds the contained failure.
type Result[T any] struct {
	Value  T
	Caught bool
	Cause  error
}

// Net logs and counts contained failures. It never retries and never rethrows.
type Net struct {
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

func New(logger zerolog.Logger, recorder *metrics.Recorder) *Net {
	return &Net{
		logger:  logger,
		metrics: recorder,
	}
}

// Call runs fn and reports whether a failure (an error or a panic) was caught.
func (n *Net) Call(ctx context.Context, operation, sessionID, traceActivityID string, fn func(ctx context.Context) error) (bool, error) {
	res := Run(ctx, n, operation, sessionID, traceActivityID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return res.Caught, res.Cause
}

// Run is Call for operations that produce a value.
func Run[T any](ctx context.Context, n *Net, operation, sessionID, traceActivityID string, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Caught: true, Cause: fmt.Errorf("panic: %v", r)}
			n.logger.Error().
				Str("operation", operation).
				Str("session_id", sessionID).
				Str("trace_activity_id", traceActivityID).
				Bytes("stack", debug.Stack()).
				Err(res.Cause).
				Msg("safety net recovered panic")
			n.metrics.SafetyNetCaught(operation)
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		n.logger.Error().
			Str("operation", operation).
			Str("session_id", sessionID).
			Str("trace_activity_id", traceActivityID).
			Err(err).
			Msg("safety net caught failure")
		n.metrics.SafetyNetCaught(operation)
		return Result[T]{Caught: true, Cause: err}
	}
	return Result[T]{Value: v}
}
