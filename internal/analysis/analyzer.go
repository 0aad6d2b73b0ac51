// Package analysis sequences screening, loading, test execution and
// performance sampling into one Report.
//
// Analyze never returns an error. Every failure, including a panic in any
// stage, ends up in the report's status, error and traceback fields, and
// sections computed before the failure are kept.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/doctest"
	"github.com/roach88/docprobe/internal/executor"
	"github.com/roach88/docprobe/internal/guard"
	"github.com/roach88/docprobe/internal/loader"
	"github.com/roach88/docprobe/internal/perf"
	"github.com/roach88/docprobe/internal/policy"
	"github.com/roach88/docprobe/internal/screen"
)

const tracerName = "github.com/roach88/docprobe/internal/analysis"

// ErrCodeTimeout is the report error code for a load that overran its
// deadline.
const ErrCodeTimeout = "TIMEOUT"

// RunIDGenerator produces report run IDs.
// Implemented by UUIDv7Generator (production) and testutil.FixedRunIDs (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Analyzer runs the pipeline. It is safe to reuse across runs but runs
// should not overlap.
type Analyzer struct {
	logger      *slog.Logger
	now         func() time.Time
	runIDs      RunIDGenerator
	iterations  int
	caseTimeout time.Duration
	metrics     *Metrics
	tracer      trace.Tracer
	probe       perf.Probe
	registry    loader.Registry
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger shared by every pipeline stage.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithClock replaces time.Now for timestamps and sampling windows.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ID source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(a *Analyzer) {
		a.runIDs = g
	}
}

// WithIterations sets the requested performance iterations. The sampler
// clamps it.
func WithIterations(n int) Option {
	return func(a *Analyzer) {
		a.iterations = n
	}
}

// WithCaseTimeout sets the per-case deadline. It never exceeds the policy's
// execution limit.
func WithCaseTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		a.caseTimeout = d
	}
}

// WithMetrics records run, stage and case metrics.
func WithMetrics(m *Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Analyzer) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// WithProbe replaces the platform resource probe used for sampling.
func WithProbe(p perf.Probe) Option {
	return func(a *Analyzer) {
		a.probe = p
	}
}

// WithRegistry replaces the modules candidates may load().
func WithRegistry(r loader.Registry) Option {
	return func(a *Analyzer) {
		a.registry = r
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		runIDs:      UUIDv7Generator{},
		iterations:  perf.DefaultIterations,
		caseTimeout: executor.DefaultCaseTimeout,
		tracer:      otel.Tracer(tracerName),
		probe:       perf.DefaultProbe(),
		registry:    loader.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the whole pipeline over the file at path.
func (a *Analyzer) Analyze(ctx context.Context, path string, p *policy.Policy) (report *Report) {
	report = &Report{
		RunID:             a.runIDs.Generate(),
		FilePath:          path,
		AnalysisTimestamp: a.now().UTC().Format(time.RFC3339),
		Config:            p.Config(),
		Status:            StatusSuccess,
	}
	logger := a.logger.With("run_id", report.RunID, "path", path)

	ctx, span := a.tracer.Start(ctx, "docprobe.Analyze",
		trace.WithAttributes(
			attribute.String("docprobe.run_id", report.RunID),
			attribute.String("docprobe.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			report.Status = StatusError
			report.Error = fmt.Sprintf("panic: %v", r)
			report.Traceback = string(debug.Stack())
			logger.Error("analysis panicked", "panic", r)
		}
		if report.Status == StatusError {
			span.SetStatus(codes.Error, report.Error)
		}
		a.metrics.observeRun(report.Status, time.Since(start))
		logger.Info("analysis finished", "status", report.Status, "duration_ms", time.Since(start).Milliseconds())
	}()

	logger.Info("analysis started")

	m, err := a.load(ctx, path, p)
	if err != nil {
		report.Status = StatusError
		report.Error = err.Error()
		report.ErrorCode = errorCode(err)
		a.metrics.observeLoadFailure(report.ErrorCode)
		span.RecordError(err)
		logger.Warn("load failed", "code", report.ErrorCode, "error", err)
		return report
	}
	report.ModuleID = m.ID()
	report.FunctionsFound = m.Functions()

	summary := a.runCases(ctx, m, p, report)
	report.TestSummary = &summary

	metrics := a.sample(ctx, m, p)
	report.Performance = &metrics

	digest, err := report.digest()
	if err != nil {
		report.Status = StatusError
		report.Error = err.Error()
		return report
	}
	report.ResultDigest = digest
	return report
}

func (a *Analyzer) load(ctx context.Context, path string, p *policy.Policy) (loader.Module, error) {
	ctx, span := a.tracer.Start(ctx, "docprobe.Load")
	defer span.End()
	start := time.Now()
	defer func() { a.metrics.observeStage("load", time.Since(start)) }()

	l := loader.New(loader.WithLogger(a.logger), loader.WithRegistry(a.registry))
	m, err := l.Load(ctx, path, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("docprobe.module_id", m.ID()),
		attribute.Int("docprobe.functions", len(m.Functions())),
	)
	return m, nil
}

// runCases fills the tests and parameter_validations sections. Functions
// without cases do not appear in either.
func (a *Analyzer) runCases(ctx context.Context, m loader.Module, p *policy.Policy, report *Report) Summary {
	ctx, span := a.tracer.Start(ctx, "docprobe.RunCases")
	defer span.End()
	start := time.Now()
	defer func() { a.metrics.observeStage("cases", time.Since(start)) }()

	caseTimeout := min(a.caseTimeout, p.MaxExecution())
	ex := executor.New(
		executor.WithLogger(a.logger),
		executor.WithCaseTimeout(caseTimeout),
		executor.WithObserver(a.metrics.observeCase),
	)

	report.Tests = map[string]map[string]any{}
	report.ParameterValidations = map[string]map[string]bind.ParameterBinding{}

	var summary Summary
	for _, name := range report.FunctionsFound {
		fn, ok := m.Callable(name)
		if !ok {
			continue
		}
		cases := doctest.Extract(fn.Doc())
		if len(cases) == 0 {
			continue
		}

		result := ex.Run(ctx, m, name, cases)
		report.Tests[name] = result.Tests()
		report.ParameterValidations[name] = result.Bindings
		summary.add(result)
	}
	summary.finish()

	span.SetAttributes(
		attribute.Int("docprobe.tests.total", summary.TotalTests),
		attribute.Int("docprobe.tests.passed", summary.PassedTests),
	)
	return summary
}

func (a *Analyzer) sample(ctx context.Context, m loader.Module, p *policy.Policy) perf.Metrics {
	ctx, span := a.tracer.Start(ctx, "docprobe.Sample")
	defer span.End()
	start := time.Now()
	defer func() { a.metrics.observeStage("sample", time.Since(start)) }()

	sampler := perf.New(
		perf.WithLogger(a.logger),
		perf.WithProbe(a.probe),
		perf.WithClock(a.now),
		perf.WithInvocationTimeout(min(a.caseTimeout, p.MaxExecution())),
	)
	metrics := sampler.Sample(ctx, m, m.Functions(), a.iterations)
	a.metrics.observeSamples(metrics.SuccessfulInvocations, metrics.FailedInvocations)

	span.SetAttributes(attribute.Int("docprobe.perf.functions", len(metrics.FunctionsSampled)))
	return metrics
}

// errorCode maps a load failure to the code reported alongside it.
func errorCode(err error) string {
	var se *screen.SecurityError
	var le *loader.LoadError
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &le):
		return le.Code
	case guard.IsTimeout(err):
		return ErrCodeTimeout
	default:
		return ""
	}
}
