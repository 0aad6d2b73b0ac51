package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.starlark.net/starlark"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/guard"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/policy"
	"github.com/roach88/docprobe/internal/source"
)

// Module is a loaded candidate. It is read-only after Load returns.
type Module interface {
	// ID is stable for identical source and distinct across distinct files.
	ID() string
	Name() string
	Path() string

	// Functions lists top-level functions in declaration order.
	Functions() []string
	Callable(name string) (Callable, bool)

	// Outline is the parsed structure the module was screened with.
	Outline() *source.File
}

// Callable is one top-level function of a loaded module.
type Callable interface {
	Name() string
	Doc() string
	Signature() bind.Signature

	// Call invokes the function. It stops when ctx is done and returns the
	// context's cause. Errors raised by the function, panics in native code
	// and results outside ir.Value are returned as errors.
	Call(ctx context.Context, args []ir.Value, kwargs map[string]ir.Value) (ir.Value, error)
}

type starlarkModule struct {
	id      string
	name    string
	path    string
	outline *source.File
	globals starlark.StringDict
	policy  *policy.Policy
	loader  *Loader
}

func (m *starlarkModule) ID() string            { return m.id }
func (m *starlarkModule) Name() string          { return m.name }
func (m *starlarkModule) Path() string          { return m.path }
func (m *starlarkModule) Outline() *source.File { return m.outline }

// Functions skips defs whose name was rebound to something else.
func (m *starlarkModule) Functions() []string {
	names := []string{}
	for _, def := range m.outline.Functions {
		if _, ok := m.function(def.Name); ok {
			names = append(names, def.Name)
		}
	}
	return names
}

func (m *starlarkModule) function(name string) (*starlark.Function, bool) {
	fn, ok := m.globals[name].(*starlark.Function)
	if !ok || fn.Name() != name {
		return nil, false
	}
	return fn, true
}

func (m *starlarkModule) Callable(name string) (Callable, bool) {
	fn, ok := m.function(name)
	if !ok {
		return nil, false
	}
	def, _ := m.outline.Function(name)
	return &starlarkCallable{fn: fn, def: def, module: m}, true
}

type starlarkCallable struct {
	fn     *starlark.Function
	def    source.FunctionDef
	module *starlarkModule
}

func (c *starlarkCallable) Name() string { return c.fn.Name() }
func (c *starlarkCallable) Doc() string  { return source.CleanDoc(c.fn.Doc()) }

// Signature merges declared parameters from the outline with the default
// values the interpreter evaluated at load time.
func (c *starlarkCallable) Signature() bind.Signature {
	defaults := map[string]starlark.Value{}
	for i := 0; i < c.fn.NumParams(); i++ {
		name, _ := c.fn.Param(i)
		if d := c.fn.ParamDefault(i); d != nil {
			defaults[name] = d
		}
	}

	sig := bind.Signature{Params: make([]bind.Param, 0, len(c.def.Params))}
	for _, p := range c.def.Params {
		bp := bind.Param{Name: p.Name, Type: p.Type, Kind: p.Kind}
		if d, ok := defaults[p.Name]; ok {
			if v, err := toValue(d); err == nil {
				bp.Default = v
			} else {
				bp.Default = ir.Null{}
				bp.DefaultType = d.Type()
			}
		}
		sig.Params = append(sig.Params, bp)
	}
	return sig
}

func (c *starlarkCallable) Call(ctx context.Context, args []ir.Value, kwargs map[string]ir.Value) (result ir.Value, err error) {
	m := c.module
	thread := m.loader.newThread("call:"+m.id+"."+c.fn.Name(), m.policy)

	sargs := make(starlark.Tuple, len(args))
	for i, a := range args {
		sargs[i] = fromValue(a)
	}
	var skw []starlark.Tuple
	for _, k := range ir.SortedKeys(kwargs) {
		skw = append(skw, starlark.Tuple{starlark.String(k), fromValue(kwargs[k])})
	}

	region := guard.Region{
		Stage:        "call",
		MemoryLimit:  m.policy.MaxMemoryBytes(),
		PollInterval: m.loader.pollInterval,
		Logger:       m.loader.logger,
	}
	err = region.Run(ctx, thread, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.loader.logger.Error("panic in candidate call",
					"function", c.fn.Name(),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		out, err := starlark.Call(thread, c.fn, sargs, skw)
		if err != nil {
			return err
		}
		result, err = toValue(out)
		return err
	})
	if err != nil {
		return nil, callError(err)
	}
	return result, nil
}

// CallError is an error raised while running candidate code.
type CallError struct {
	Message string
	Err     error
}

func (e *CallError) Error() string { return e.Message }

func (e *CallError) Unwrap() error { return e.Err }

// callError strips the interpreter backtrace. Deadline, resource and
// context causes pass through unchanged.
func callError(err error) error {
	if guard.IsTimeout(err) || guard.IsResourceLimit(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isStepLimit(err) {
		return &CallError{Message: "execution step limit exceeded", Err: err}
	}
	return &CallError{Message: evalMessage(err), Err: err}
}
