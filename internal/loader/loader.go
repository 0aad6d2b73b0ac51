// Package loader executes a screened candidate module on the Starlark
// interpreter and exposes its top-level functions as callables.
//
// Every load and every call runs on a fresh starlark.Thread inside a
// guard.Region, so a deadline or memory trip interrupts only the step it
// was armed for.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/roach88/docprobe/internal/guard"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/policy"
	"github.com/roach88/docprobe/internal/screen"
	"github.com/roach88/docprobe/internal/source"
)

// Error codes for LoadError.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeNotRegular        = "NOT_REGULAR"
	ErrCodeReadFailed        = "READ_FAILED"
	ErrCodeModuleUnavailable = "MODULE_UNAVAILABLE"
	ErrCodeExecFailed        = "EXEC_FAILED"
	ErrCodeResourceLimit     = "RESOURCE_LIMIT"
)

// LoadError reports a module that could not be loaded for a reason other
// than screening or the load deadline.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Loader loads candidate modules. The zero value is not usable; use New.
type Loader struct {
	logger       *slog.Logger
	registry     Registry
	pollInterval time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Candidate print() output is logged at debug
// level.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithRegistry replaces the modules load() statements resolve against.
func WithRegistry(r Registry) Option {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithPollInterval sets how often the memory watchdog samples the heap.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loader) {
		l.pollInterval = d
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads path with a default Loader.
func Load(ctx context.Context, path string, p *policy.Policy) (Module, error) {
	return New().Load(ctx, path, p)
}

// Load screens and executes the module at path.
//
// Screening failures are returned as the *screen.SecurityError produced by
// screen.Validate and nothing is executed. A load that overruns
// p.MaxExecution returns a *guard.TimeoutError with stage "load".
func (l *Loader) Load(ctx context.Context, path string, p *policy.Policy) (Module, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "file not found", Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Path: path, Message: err.Error(), Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{Code: ErrCodeNotRegular, Path: path, Message: "not a regular file"}
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Path: path, Message: err.Error(), Err: err}
	}

	outcome := screen.Validate(path, src, p)
	if err := outcome.Err(); err != nil {
		l.logger.Warn("candidate rejected", "path", path, "code", outcome.Code, "reason", outcome.Reason)
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := &starlarkModule{
		id:      name + "-" + ir.ModuleID(src)[:12],
		name:    name,
		path:    path,
		outline: outcome.Outline,
		policy:  p,
		loader:  l,
	}

	thread := l.newThread("load:"+m.id, p)
	var missing string
	thread.Load = func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		if !p.AllowsImport(module) {
			missing = module
			return nil, fmt.Errorf("module %q is not allowed", module)
		}
		members, ok := l.registry[module]
		if !ok {
			missing = module
			return nil, fmt.Errorf("module %q is not available", module)
		}
		return members, nil
	}

	region := guard.Region{
		Stage:        "load",
		Timeout:      p.MaxExecution(),
		MemoryLimit:  p.MaxMemoryBytes(),
		PollInterval: l.pollInterval,
		Logger:       l.logger,
	}
	start := time.Now()
	err = region.Run(ctx, thread, func() error {
		globals, err := starlark.ExecFileOptions(source.FileOptions(), thread, path, src, nil)
		if err != nil {
			return err
		}
		globals.Freeze()
		m.globals = globals
		return nil
	})
	if err != nil {
		return nil, l.loadFailure(path, missing, err)
	}

	l.logger.Info("module loaded",
		"path", path,
		"module_id", m.id,
		"functions", len(m.Functions()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return m, nil
}

func (l *Loader) loadFailure(path, missing string, err error) error {
	switch {
	case guard.IsTimeout(err):
		l.logger.Warn("module load timed out", "path", path, "error", err)
		return err
	case guard.IsResourceLimit(err):
		return &LoadError{Code: ErrCodeResourceLimit, Path: path, Message: err.Error(), Err: err}
	case isStepLimit(err):
		return &LoadError{Code: ErrCodeResourceLimit, Path: path, Message: "execution step limit exceeded", Err: err}
	case missing != "":
		return &LoadError{Code: ErrCodeModuleUnavailable, Path: path, Message: fmt.Sprintf("module %q is unavailable", missing), Err: err}
	case errors.Is(err, context.Canceled):
		return err
	}
	return &LoadError{Code: ErrCodeExecFailed, Path: path, Message: evalMessage(err), Err: err}
}

// newThread returns a thread wired to the loader's logger and step budget.
func (l *Loader) newThread(name string, p *policy.Policy) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			l.logger.Debug("candidate print", "thread", t.Name, "msg", msg)
		},
	}
	if steps := p.MaxExecutionSteps(); steps > 0 {
		thread.SetMaxExecutionSteps(steps)
	}
	return thread
}

func isStepLimit(err error) bool {
	return err != nil && strings.Contains(err.Error(), "too many steps")
}

// evalMessage returns the interpreter's message without its backtrace.
func evalMessage(err error) string {
	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		return ee.Msg
	}
	return err.Error()
}
