// Package guard provides scoped deadline regions for candidate execution.
//
// A Region arms a deadline (and optionally a heap-growth watchdog) around one
// step, forwards cancellation to the interpreter thread running that step,
// and disarms both on every exit path. Regions nest: a per-case region
// derived from a load-level context fires independently, and only the
// region wrapping the running step interrupts it.
//
// Cancellation is cooperative. The interpreter observes it between
// computation steps; a native builtin that never returns is bounded only
// when control comes back to the interpreter.
package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/metrics"
	"time"
)

// DefaultPollInterval is how often the memory watchdog samples the heap.
const DefaultPollInterval = 10 * time.Millisecond

// TimeoutError reports a region whose deadline fired.
type TimeoutError struct {
	Stage string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Stage, e.Limit)
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ResourceError reports a region cancelled for exceeding its memory limit.
type ResourceError struct {
	Stage    string
	Limit    uint64
	Observed uint64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s exceeded memory limit: heap grew %d bytes, limit %d bytes", e.Stage, e.Observed, e.Limit)
}

// IsResourceLimit reports whether err is a *ResourceError.
func IsResourceLimit(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}

// WithDeadline derives a context that expires after limit with a
// *TimeoutError as its cause. Callers must defer the returned cancel.
func WithDeadline(parent context.Context, stage string, limit time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(parent, limit, &TimeoutError{Stage: stage, Limit: limit})
}

// Canceler is the thread a region interrupts. *starlark.Thread satisfies it.
type Canceler interface {
	Cancel(reason string)
}

// Region describes one scoped deadline.
type Region struct {
	// Stage names the step for errors and logs ("load", "case", "sample").
	Stage string

	// Timeout bounds the step. Zero means the region only follows its parent.
	Timeout time.Duration

	// MemoryLimit cancels the step when the live heap grows by more than
	// this many bytes. Zero disables the watchdog.
	MemoryLimit uint64

	// PollInterval overrides DefaultPollInterval for the watchdog.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Run executes fn inside the region. fn is not called when ctx is already
// done. The target is cancelled when the deadline fires, the watchdog trips
// or ctx is done. When fn fails after the
// region was cancelled, Run returns the cancellation cause (*TimeoutError,
// *ResourceError or the parent's error) instead of fn's error.
func (r Region) Run(ctx context.Context, target Canceler, fn func() error) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if r.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = WithDeadline(ctx, r.Stage, r.Timeout)
		defer stop()
	}

	// A step never starts in an expired region.
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	release := context.AfterFunc(ctx, func() {
		cause := context.Cause(ctx)
		logger.Debug("region cancelled", "stage", r.Stage, "cause", cause)
		target.Cancel(cause.Error())
	})
	defer release()

	if r.MemoryLimit > 0 {
		done := make(chan struct{})
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			r.watchHeap(ctx, done, cancel)
		}()
		defer func() {
			close(done)
			<-stopped
		}()
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (r Region) watchHeap(ctx context.Context, done <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	baseline := HeapBytes()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := HeapBytes()
			if now > baseline && now-baseline > r.MemoryLimit {
				cancel(&ResourceError{Stage: r.Stage, Limit: r.MemoryLimit, Observed: now - baseline})
				return
			}
		}
	}
}

const heapMetric = "/memory/classes/heap/objects:bytes"

// HeapBytes returns the bytes currently occupied by live and
// not-yet-swept heap objects.
func HeapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
