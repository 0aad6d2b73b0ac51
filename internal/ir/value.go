package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the literal values docprobe moves
// between doc examples, the binder and the candidate module.
// Only Null, Int, Float, String, Bool and List implement it.
//
// A candidate result that does not fit this union (dicts, structs,
// functions) is rejected where it crosses into Go and surfaces as a call
// error.
type Value interface {
	irValue() // Sealed - only these types implement it

	// TypeName is the candidate-language name of the value's type.
	TypeName() string
}

// Type names reported as runtime_type and accepted as declared types.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "string"
	TypeBool   = "bool"
	TypeNone   = "NoneType"
	TypeList   = "list"
)

// Null is the candidate language's None.
type Null struct{}

func (Null) irValue() {}

// TypeName implements Value.
func (Null) TypeName() string { return TypeNone }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Int is an integer literal. Values outside int64 are carried as Float.
type Int int64

func (Int) irValue() {}

// TypeName implements Value.
func (Int) TypeName() string { return TypeInt }

// Float is a decimal literal.
type Float float64

func (Float) irValue() {}

// TypeName implements Value.
func (Float) TypeName() string { return TypeFloat }

// MarshalJSON encodes non-finite floats as strings; encoding/json rejects them.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"nan"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(v)
}

// String is a quoted string literal.
type String string

func (String) irValue() {}

// TypeName implements Value.
func (String) TypeName() string { return TypeString }

// Bool is a boolean literal.
type Bool bool

func (Bool) irValue() {}

// TypeName implements Value.
func (Bool) TypeName() string { return TypeBool }

// List is a bracketed list of literals.
type List []Value

func (List) irValue() {}

// TypeName implements Value.
func (List) TypeName() string { return TypeList }

// MarshalJSON keeps an empty list as [] rather than null.
func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(l))
}

// AsNumber returns the numeric value of v if v is an Int or a Float.
// Bool is not numeric.
func AsNumber(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// Equal reports whether a and b are structurally equal.
// Int and Float compare by numeric value; everything else requires the same
// type. Lists compare element-wise.
func Equal(a, b Value) bool {
	if x, ok := AsNumber(a); ok {
		y, ok := AsNumber(b)
		return ok && x == y
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Repr renders v the way the candidate language would print it.
func Repr(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "None"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		f := float64(val)
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	case String:
		return strconv.Quote(string(val))
	case Bool:
		if val {
			return "True"
		}
		return "False"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Repr(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
