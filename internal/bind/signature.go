// Package bind binds literal call arguments to a declared parameter schema
// and checks each bound value against its documented type.
//
// Binding follows the host language's call rules for positional, keyword,
// defaulted and variadic parameters. Failures are recorded in the returned
// ParameterBinding; Bind never returns an error.
package bind

import (
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/source"
)

// Param is one declared parameter of a callable.
type Param struct {
	Name string `json:"name"`

	// Type is the declared type tag, empty when undeclared.
	Type string `json:"type,omitempty"`

	Kind source.ParamKind `json:"kind"`

	// Default is nil for parameters without a default. A default that is not
	// an ir.Value is carried as ir.Null with its real type in DefaultType.
	Default     ir.Value `json:"default,omitempty"`
	DefaultType string   `json:"default_type,omitempty"`
}

// Required reports whether a caller must supply the parameter.
func (p Param) Required() bool {
	return p.Default == nil && (p.Kind == source.KindPositional || p.Kind == source.KindKeywordOnly)
}

// Signature is an ordered parameter schema.
type Signature struct {
	Params []Param `json:"params"`
}

// RequiredCount returns how many parameters have no default.
func (s Signature) RequiredCount() int {
	n := 0
	for _, p := range s.Params {
		if p.Required() {
			n++
		}
	}
	return n
}
