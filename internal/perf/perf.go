// Package perf samples the cost of a module's zero-argument functions.
//
// Measurements cover the whole sampling window: wall time, process CPU
// percentage, resident memory delta and the live heap when the window
// closes. They are aggregate numbers for the run, not per-call profiles.
package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/docprobe/internal/guard"
	"github.com/roach88/docprobe/internal/loader"
)

const (
	DefaultIterations = 100
	MaxIterations     = 1000

	// DefaultInvocationTimeout bounds one sampled call.
	DefaultInvocationTimeout = 5 * time.Second
)

// Metrics is the result of one sampling window.
type Metrics struct {
	Iterations            int      `json:"iterations"`
	ExecutionSeconds      float64  `json:"execution_seconds"`
	CPUPercentDelta       float64  `json:"cpu_percent_delta"`
	MemoryDeltaBytes      int64    `json:"memory_delta_bytes"`
	MemoryStorageBytes    uint64   `json:"memory_storage_bytes"`
	OperationsPerSecond   float64  `json:"operations_per_second"`
	AvgOperationMs        float64  `json:"avg_operation_ms"`
	SuccessfulInvocations int      `json:"successful_invocations"`
	FailedInvocations     int      `json:"failed_invocations"`
	FunctionsSampled      []string `json:"functions_sampled"`
}

// ClampIterations maps a requested count into [1, MaxIterations]. Zero or
// negative requests use DefaultIterations.
func ClampIterations(n int) int {
	switch {
	case n <= 0:
		return DefaultIterations
	case n > MaxIterations:
		return MaxIterations
	default:
		return n
	}
}

// Sampler invokes functions repeatedly and measures the window.
type Sampler struct {
	logger            *slog.Logger
	probe             Probe
	invocationTimeout time.Duration
	now               func() time.Time
	heapBytes         func() uint64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger for probe failures and per-call errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// WithProbe replaces the platform resource probe.
func WithProbe(p Probe) Option {
	return func(s *Sampler) {
		s.probe = p
	}
}

// WithInvocationTimeout bounds each sampled call. Non-positive values keep
// the default.
func WithInvocationTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.invocationTimeout = d
		}
	}
}

// WithHeapReader replaces the live heap reading taken when the window
// closes.
func WithHeapReader(read func() uint64) Option {
	return func(s *Sampler) {
		s.heapBytes = read
	}
}

// WithClock replaces time.Now for measuring the window.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		probe:             DefaultProbe(),
		invocationTimeout: DefaultInvocationTimeout,
		now:               time.Now,
		heapBytes:         guard.HeapBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample samples with a default Sampler.
func Sample(ctx context.Context, m loader.Module, names []string, iterations int) Metrics {
	return New().Sample(ctx, m, names, iterations)
}

// Sample calls each zero-argument function in names up to iterations times.
// Functions that require arguments or are not callable are skipped. A
// failing call is logged and sampling continues; a call that times out
// abandons the rest of that function.
func (s *Sampler) Sample(ctx context.Context, m loader.Module, names []string, iterations int) Metrics {
	iterations = ClampIterations(iterations)
	metrics := Metrics{Iterations: iterations, FunctionsSampled: []string{}}

	before, err := s.probe.Usage()
	if err != nil {
		s.logger.Warn("resource probe failed", "error", err)
	}
	start := s.now()

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		fn, ok := m.Callable(name)
		if !ok || fn.Signature().RequiredCount() != 0 {
			continue
		}
		metrics.FunctionsSampled = append(metrics.FunctionsSampled, name)
		succeeded, failed := s.sampleFunction(ctx, fn, iterations)
		metrics.SuccessfulInvocations += succeeded
		metrics.FailedInvocations += failed
	}

	elapsed := s.now().Sub(start).Seconds()
	after, err := s.probe.Usage()
	if err != nil {
		s.logger.Warn("resource probe failed", "error", err)
	}

	metrics.ExecutionSeconds = round(elapsed, 4)
	metrics.MemoryDeltaBytes = after.RSSBytes - before.RSSBytes
	metrics.MemoryStorageBytes = s.heapBytes()
	if elapsed > 0 {
		metrics.CPUPercentDelta = round((after.CPUSeconds-before.CPUSeconds)/elapsed*100, 2)
		metrics.OperationsPerSecond = round(float64(metrics.SuccessfulInvocations)/elapsed, 2)
	}
	if metrics.SuccessfulInvocations > 0 {
		metrics.AvgOperationMs = round(elapsed*1000/float64(metrics.SuccessfulInvocations), 4)
	}

	s.logger.Info("performance sampled",
		"functions", len(metrics.FunctionsSampled),
		"iterations", iterations,
		"ok", metrics.SuccessfulInvocations,
		"failed", metrics.FailedInvocations,
		"seconds", metrics.ExecutionSeconds,
	)
	return metrics
}

func (s *Sampler) sampleFunction(ctx context.Context, fn loader.Callable, iterations int) (ok, failed int) {
	for i := 0; i < iterations; i++ {
		callCtx, cancel := guard.WithDeadline(ctx, "sample", s.invocationTimeout)
		_, err := fn.Call(callCtx, nil, nil)
		cancel()

		switch {
		case err == nil:
			ok++
		case guard.IsTimeout(err):
			failed++
			s.logger.Warn("sampled call timed out, abandoning function", "function", fn.Name(), "error", err)
			return ok, failed
		case errors.Is(err, context.Canceled):
			failed++
			return ok, failed
		default:
			failed++
			s.logger.Warn("sampled call failed", "function", fn.Name(), "iteration", i, "error", err)
		}
	}
	return ok, failed
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
