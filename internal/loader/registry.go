package loader

import (
	"slices"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Registry maps a load() target to the names it provides.
type Registry map[string]starlark.StringDict

// DefaultRegistry serves the interpreter's math, json and time libraries.
// Each entry provides the module value under its own name plus every member,
// so both load("math", "math") and load("math", "sqrt") resolve.
func DefaultRegistry() Registry {
	r := Registry{}
	for _, m := range []*starlarkstruct.Module{math.Module, json.Module, time.Module} {
		r.Add(m)
	}
	return r
}

// Add registers m under its name. The module is frozen.
func (r Registry) Add(m *starlarkstruct.Module) {
	m.Freeze()
	members := make(starlark.StringDict, len(m.Members)+1)
	for k, v := range m.Members {
		members[k] = v
	}
	members[m.Name] = m
	r[m.Name] = members
}

// Names returns the registered module names.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
