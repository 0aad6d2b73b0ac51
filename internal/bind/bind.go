package bind

import (
	"fmt"
	"strings"

	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/source"
)

// Status is the overall result of binding one call.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Conformance is the type-check result for one bound parameter.
type Conformance string

const (
	ConformancePassed          Conformance = "passed"
	ConformanceFailed          Conformance = "failed"
	ConformanceValidationError Conformance = "validation_error"
)

// Runtime type names beyond the ir.Value union. Defaults and collected
// variadic arguments can carry them.
const (
	TypeTuple = "tuple"
	TypeDict  = "dict"
)

// BoundParam is one parameter after binding.
type BoundParam struct {
	Name         string      `json:"name"`
	Value        ir.Value    `json:"value"`
	DeclaredType string      `json:"declared_type,omitempty"`
	RuntimeType  string      `json:"runtime_type"`
	Conformance  Conformance `json:"conformance,omitempty"`
}

// ParameterBinding is the record of binding one call against a signature.
type ParameterBinding struct {
	FunctionName string       `json:"function_name"`
	Parameters   []BoundParam `json:"parameters"`
	Status       Status       `json:"validation_status"`
	Error        string       `json:"error,omitempty"`
}

// Passed reports whether the call may be executed.
func (b ParameterBinding) Passed() bool { return b.Status == StatusPassed }

// Bind binds positional and named arguments to sig.
//
// Status is failed when binding itself fails (arity or name mismatch, with
// the message in Error) or when any declared type does not conform. A type
// tag that cannot be checked marks only its own parameter validation_error.
func Bind(fnName string, sig Signature, positional []ir.Value, named map[string]ir.Value) ParameterBinding {
	out := ParameterBinding{
		FunctionName: fnName,
		Parameters:   []BoundParam{},
		Status:       StatusPassed,
	}

	bound, err := bindArguments(sig, positional, named)
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}

	for _, bp := range bound {
		if bp.DeclaredType != "" {
			bp.Conformance = conform(bp.DeclaredType, bp)
			if bp.Conformance == ConformanceFailed {
				out.Status = StatusFailed
			}
		}
		out.Parameters = append(out.Parameters, bp)
	}
	return out
}

func bindArguments(sig Signature, positional []ir.Value, named map[string]ir.Value) ([]BoundParam, error) {
	kwargs := make(map[string]ir.Value, len(named))
	for k, v := range named {
		kwargs[k] = v
	}

	bound := make([]BoundParam, 0, len(sig.Params))
	args := positional
	i := 0

	// Positional arguments fill positional parameters in order.
	for ; len(args) > 0; i++ {
		if i >= len(sig.Params) {
			return nil, fmt.Errorf("too many positional arguments")
		}
		p := sig.Params[i]
		switch p.Kind {
		case source.KindVarargs:
			bound = append(bound, varargs(p, args))
			args = nil
		case source.KindPositional:
			if _, dup := kwargs[p.Name]; dup {
				return nil, fmt.Errorf("multiple values for argument '%s'", p.Name)
			}
			bound = append(bound, param(p, args[0], args[0].TypeName()))
			args = args[1:]
		default:
			return nil, fmt.Errorf("too many positional arguments")
		}
	}

	// Remaining parameters bind by name or take defaults.
	var kwargsParam *Param
	for ; i < len(sig.Params); i++ {
		p := sig.Params[i]
		switch p.Kind {
		case source.KindVarargs:
			bound = append(bound, varargs(p, nil))
			continue
		case source.KindKwargs:
			kwargsParam = &sig.Params[i]
			continue
		}

		if v, ok := kwargs[p.Name]; ok {
			delete(kwargs, p.Name)
			bound = append(bound, param(p, v, v.TypeName()))
			continue
		}
		if p.Default == nil {
			if p.Kind == source.KindKeywordOnly {
				return nil, fmt.Errorf("missing a required keyword-only argument: '%s'", p.Name)
			}
			return nil, fmt.Errorf("missing a required argument: '%s'", p.Name)
		}
		typ := p.DefaultType
		if typ == "" {
			typ = p.Default.TypeName()
		}
		bound = append(bound, param(p, p.Default, typ))
	}

	extra := ir.SortedKeys(kwargs)
	if kwargsParam == nil {
		if len(extra) > 0 {
			return nil, fmt.Errorf("got an unexpected keyword argument '%s'", extra[0])
		}
		return bound, nil
	}

	// Collected keyword arguments are carried as [name, value] pairs. The
	// **kwargs parameter is always last, so appending keeps signature order.
	pairs := make(ir.List, len(extra))
	for j, k := range extra {
		pairs[j] = ir.List{ir.String(k), kwargs[k]}
	}
	return append(bound, param(*kwargsParam, pairs, TypeDict)), nil
}

func param(p Param, v ir.Value, runtimeType string) BoundParam {
	return BoundParam{Name: p.Name, Value: v, DeclaredType: p.Type, RuntimeType: runtimeType}
}

func varargs(p Param, rest []ir.Value) BoundParam {
	collected := make(ir.List, len(rest))
	copy(collected, rest)
	return param(p, collected, TypeTuple)
}

// conform checks bp against a declared tag. Tags may be unions written as
// "int | float" or "int or float".
func conform(declared string, bp BoundParam) Conformance {
	alternatives := splitUnion(declared)
	matched := false
	for _, alt := range alternatives {
		want, ok := normalizeTag(alt)
		if !ok {
			return ConformanceValidationError
		}
		if matches(want, bp) {
			matched = true
		}
	}
	if matched {
		return ConformancePassed
	}
	return ConformanceFailed
}

func splitUnion(tag string) []string {
	tag = strings.ReplaceAll(tag, " or ", "|")
	parts := strings.Split(tag, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

const typeAny = "any"

// normalizeTag maps a documented type tag onto a runtime type name.
func normalizeTag(tag string) (string, bool) {
	switch tag {
	case "int":
		return ir.TypeInt, true
	case "float":
		return ir.TypeFloat, true
	case "str", "string":
		return ir.TypeString, true
	case "bool":
		return ir.TypeBool, true
	case "None", "NoneType":
		return ir.TypeNone, true
	case "list":
		return ir.TypeList, true
	case "tuple":
		return TypeTuple, true
	case "dict":
		return TypeDict, true
	case "any", "object":
		return typeAny, true
	default:
		return "", false
	}
}

// matches compares by runtime type name. A collected *args value conforms
// when every element does.
func matches(want string, bp BoundParam) bool {
	if want == typeAny {
		return true
	}
	if bp.RuntimeType == TypeTuple && want != TypeTuple {
		list, _ := bp.Value.(ir.List)
		for _, elem := range list {
			if elem.TypeName() != want {
				return false
			}
		}
		return true
	}
	return bp.RuntimeType == want
}
