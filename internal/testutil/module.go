package testutil

import (
	"context"
	"sync/atomic"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/loader"
	"github.com/roach88/docprobe/internal/source"
)

// FakeModule is an in-memory loader.Module backed by Go functions. Functions
// are listed in the order they were added.
type FakeModule struct {
	ModuleName string
	order      []string
	fns        map[string]*FakeFunc
}

// NewFakeModule creates an empty module.
func NewFakeModule(name string) *FakeModule {
	return &FakeModule{ModuleName: name, fns: map[string]*FakeFunc{}}
}

// Add registers fn and returns the module for chaining.
func (m *FakeModule) Add(fn *FakeFunc) *FakeModule {
	if _, ok := m.fns[fn.FuncName]; !ok {
		m.order = append(m.order, fn.FuncName)
	}
	m.fns[fn.FuncName] = fn
	return m
}

func (m *FakeModule) ID() string            { return m.ModuleName + "-000000000000" }
func (m *FakeModule) Name() string          { return m.ModuleName }
func (m *FakeModule) Path() string          { return m.ModuleName + ".star" }
func (m *FakeModule) Outline() *source.File { return &source.File{Path: m.Path()} }

func (m *FakeModule) Functions() []string {
	return append([]string(nil), m.order...)
}

func (m *FakeModule) Callable(name string) (loader.Callable, bool) {
	fn, ok := m.fns[name]
	if !ok {
		return nil, false
	}
	return fn, true
}

// FakeFunc is a loader.Callable backed by Body.
type FakeFunc struct {
	FuncName string
	DocText  string
	Sig      bind.Signature
	Body     func(ctx context.Context, args []ir.Value) (ir.Value, error)

	calls atomic.Int64
}

// Calls returns how many times Call ran.
func (f *FakeFunc) Calls() int { return int(f.calls.Load()) }

func (f *FakeFunc) Name() string              { return f.FuncName }
func (f *FakeFunc) Doc() string               { return f.DocText }
func (f *FakeFunc) Signature() bind.Signature { return f.Sig }

func (f *FakeFunc) Call(ctx context.Context, args []ir.Value, _ map[string]ir.Value) (ir.Value, error) {
	f.calls.Add(1)
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return f.Body(ctx, args)
}

// Const returns a zero-parameter function that always returns v.
func Const(name string, v ir.Value) *FakeFunc {
	return &FakeFunc{
		FuncName: name,
		Body:     func(context.Context, []ir.Value) (ir.Value, error) { return v, nil },
	}
}

// IntParams returns a signature of required positional parameters declared
// as int.
func IntParams(names ...string) bind.Signature {
	sig := bind.Signature{Params: []bind.Param{}}
	for _, n := range names {
		sig.Params = append(sig.Params, bind.Param{Name: n, Type: ir.TypeInt, Kind: source.KindPositional})
	}
	return sig
}

// Spin returns a zero-parameter function that blocks until its context is
// done.
func Spin(name string) *FakeFunc {
	return &FakeFunc{
		FuncName: name,
		Body: func(ctx context.Context, _ []ir.Value) (ir.Value, error) {
			<-ctx.Done()
			return nil, context.Cause(ctx)
		},
	}
}
