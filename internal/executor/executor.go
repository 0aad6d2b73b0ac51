// Package executor runs extracted doc examples against a loaded module.
//
// Each case moves through parse, bind and execute, stopping at the first
// terminal state. A case runs under its own deadline on its own interpreter
// thread; a runaway case degrades only itself.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/doctest"
	"github.com/roach88/docprobe/internal/guard"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/loader"
)

// DefaultCaseTimeout bounds a single case.
const DefaultCaseTimeout = 5 * time.Second

// Tolerance is the absolute difference under which numeric results match.
const Tolerance = 1e-9

// Executor runs test cases. It holds no per-run state.
type Executor struct {
	logger      *slog.Logger
	caseTimeout time.Duration
	observe     func(Status)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithCaseTimeout sets the per-case deadline. Non-positive values keep the
// default.
func WithCaseTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.caseTimeout = d
		}
	}
}

// WithObserver registers a callback invoked with every terminal status.
func WithObserver(fn func(Status)) Option {
	return func(e *Executor) {
		e.observe = fn
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		caseTimeout: DefaultCaseTimeout,
		observe:     func(Status) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CaseTimeout returns the per-case deadline.
func (e *Executor) CaseTimeout() time.Duration { return e.caseTimeout }

// Run runs cases with a default Executor.
func Run(ctx context.Context, m loader.Module, fn string, cases []doctest.TestCase) FunctionResult {
	return New().Run(ctx, m, fn, cases)
}

// Run executes every case against fn. Outcomes are keyed by call
// expression; when the same expression appears twice the later case wins
// in the maps while Cases keeps both.
func (e *Executor) Run(ctx context.Context, m loader.Module, fn string, cases []doctest.TestCase) FunctionResult {
	result := FunctionResult{
		Function: fn,
		Cases:    make([]Outcome, 0, len(cases)),
		Outcomes: make(map[string]Outcome, len(cases)),
		Bindings: make(map[string]bind.ParameterBinding, len(cases)),
	}

	callable, ok := m.Callable(fn)
	for _, tc := range cases {
		var out Outcome
		if !ok {
			out = Outcome{
				CallExpression: tc.CallExpression,
				Expected:       tc.ExpectedValue,
				Status:         StatusRuntimeError,
				Message:        fmt.Sprintf("function %q is not callable", fn),
			}
		} else {
			var binding *bind.ParameterBinding
			out, binding = e.runCase(ctx, callable, tc)
			if binding != nil {
				result.Bindings[tc.CallExpression] = *binding
			}
		}

		e.logger.Debug("case finished",
			"function", fn,
			"call", tc.CallExpression,
			"status", out.Status,
			"duration_ms", out.Duration.Milliseconds(),
		)
		e.observe(out.Status)
		result.Cases = append(result.Cases, out)
		result.Outcomes[tc.CallExpression] = out
	}
	return result
}

// runCase drives one case to a terminal state. The binding is nil when the
// call expression did not parse.
func (e *Executor) runCase(ctx context.Context, fn loader.Callable, tc doctest.TestCase) (Outcome, *bind.ParameterBinding) {
	out := Outcome{CallExpression: tc.CallExpression, Expected: tc.ExpectedValue}
	start := time.Now()

	call, err := doctest.ParseCall(tc.CallExpression)
	if err != nil {
		out.Status = StatusInvalidFormat
		out.Message = err.Error()
		out.Duration = time.Since(start)
		return out, nil
	}

	// The name in the expression is not checked against fn; the arguments
	// are applied to the function whose docstring held the example.
	binding := bind.Bind(fn.Name(), fn.Signature(), call.Args, nil)
	if !binding.Passed() {
		out.Status = StatusParameterValidationFailed
		out.Message = binding.Error
		out.Duration = time.Since(start)
		return out, &binding
	}

	caseCtx, cancel := guard.WithDeadline(ctx, "case", e.caseTimeout)
	defer cancel()

	actual, err := fn.Call(caseCtx, call.Args, nil)
	out.Duration = time.Since(start)
	var te *guard.TimeoutError
	switch {
	case errors.As(err, &te):
		out.Status = StatusTimedOut
		out.Message = err.Error()
		out.Limit = te.Limit
	case err != nil:
		out.Status = StatusRuntimeError
		out.Message = err.Error()
	default:
		out.Actual = actual
		out.Status = StatusFailed
		if matches(actual, tc.ExpectedValue) {
			out.Status = StatusPassed
		}
	}
	return out, &binding
}

// matches compares a result with the documented number. Non-numeric results
// only match when structurally equal to it, which a number never is.
func matches(actual ir.Value, expected float64) bool {
	if n, ok := ir.AsNumber(actual); ok {
		return math.Abs(n-expected) < Tolerance
	}
	return ir.Equal(actual, ir.Float(expected))
}
