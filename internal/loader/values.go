package loader

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/roach88/docprobe/internal/ir"
)

func fromValue(v ir.Value) starlark.Value {
	switch v := v.(type) {
	case ir.Int:
		return starlark.MakeInt64(int64(v))
	case ir.Float:
		return starlark.Float(v)
	case ir.String:
		return starlark.String(v)
	case ir.Bool:
		return starlark.Bool(v)
	case ir.List:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = fromValue(e)
		}
		return starlark.NewList(elems)
	default:
		return starlark.None
	}
}

// maxResultDepth bounds list nesting in a converted result.
const maxResultDepth = 1000

// toValue converts a Starlark result. Integers beyond int64 become floats;
// lists and tuples become ir.List. Other types, self-containing lists and
// nesting deeper than maxResultDepth are rejected.
func toValue(v starlark.Value) (ir.Value, error) {
	return convert(v, map[*starlark.List]bool{}, 0)
}

func convert(v starlark.Value, active map[*starlark.List]bool, depth int) (ir.Value, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return ir.Null{}, nil
	case starlark.Bool:
		return ir.Bool(v), nil
	case starlark.Int:
		if n, ok := v.Int64(); ok {
			return ir.Int(n), nil
		}
		return ir.Float(v.Float()), nil
	case starlark.Float:
		return ir.Float(v), nil
	case starlark.String:
		return ir.String(v), nil
	case *starlark.List:
		// Tuples are immutable, so every cycle passes through a list.
		if active[v] {
			return nil, fmt.Errorf("unsupported cyclic value")
		}
		active[v] = true
		defer delete(active, v)
		return toList(v, active, depth)
	case starlark.Tuple:
		return toList(v, active, depth)
	default:
		return nil, fmt.Errorf("unsupported return type %s", v.Type())
	}
}

func toList(seq starlark.Indexable, active map[*starlark.List]bool, depth int) (ir.Value, error) {
	if depth >= maxResultDepth {
		return nil, fmt.Errorf("unsupported value nested deeper than %d", maxResultDepth)
	}
	out := make(ir.List, seq.Len())
	for i := range out {
		e, err := convert(seq.Index(i), active, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
