package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/syntax"
)

const sample = `load("math", "math")

def add(a, b):
    """Add two numbers.

    Args:
        a (int): first operand
        b (float, optional): second operand

    Returns:
        The sum.

    add(2, 3) == 5
    """
    return a + b

def greet(name="world", *rest, **opts):
    return "hi " + name

def nodoc():
    x = 1
    return x
`

func TestParseOutline(t *testing.T) {
	f, err := Parse("sample.star", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"add", "greet", "nodoc"}, f.FunctionNames())
	assert.Equal(t, []Import{{Name: "math", Line: 1}}, f.Imports)

	add, ok := f.Function("add")
	require.True(t, ok)
	assert.Equal(t, 3, add.Line)
	assert.Equal(t, []Param{
		{Name: "a", Type: "int", Kind: KindPositional},
		{Name: "b", Type: "float", Kind: KindPositional},
	}, add.Params)
	assert.Equal(t, 2, add.RequiredCount())
	assert.Contains(t, add.Doc, "add(2, 3) == 5")
	assert.True(t, len(add.Doc) > 0 && add.Doc[0] == 'A', "docstring is cleaned")

	greet, ok := f.Function("greet")
	require.True(t, ok)
	assert.Equal(t, []Param{
		{Name: "name", HasDefault: true, Kind: KindPositional},
		{Name: "rest", Kind: KindVarargs},
		{Name: "opts", Kind: KindKwargs},
	}, greet.Params)
	assert.Equal(t, 0, greet.RequiredCount())
	assert.Empty(t, greet.Doc)

	nodoc, ok := f.Function("nodoc")
	require.True(t, ok)
	assert.Empty(t, nodoc.Doc)
	assert.Empty(t, nodoc.Params)

	_, ok = f.Function("missing")
	assert.False(t, ok)
}

func TestParseKeywordOnly(t *testing.T) {
	f, err := Parse("k.star", []byte("def f(a, *, b, c=1):\n    return a\n"))
	require.NoError(t, err)

	fn, _ := f.Function("f")
	assert.Equal(t, []Param{
		{Name: "a", Kind: KindPositional},
		{Name: "b", Kind: KindKeywordOnly},
		{Name: "c", Kind: KindKeywordOnly, HasDefault: true},
	}, fn.Params)
	assert.Equal(t, 2, fn.RequiredCount())
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("bad.star", []byte("def broken(:\n    pass\n"))
	require.Error(t, err)

	var serr syntax.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, int32(1), serr.Pos.Line)
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse("empty.star", nil)
	require.NoError(t, err)
	assert.Empty(t, f.Functions)
	assert.Empty(t, f.Imports)
	assert.NotNil(t, f.Functions)
}

func TestParseNestedDefsAreNotTopLevel(t *testing.T) {
	src := "def outer():\n    def inner():\n        return 1\n    return inner()\n"
	f, err := Parse("n.star", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer"}, f.FunctionNames())
}

func TestCleanDoc(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single line", "  Square x.  ", "Square x."},
		{"indented body", "Summary.\n\n    square(4) == 16\n    done\n    ", "Summary.\n\nsquare(4) == 16\ndone"},
		{"leading blank", "\n    Body line.\n      nested\n", "Body line.\n  nested"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDoc(tt.in))
		})
	}
}

func TestArgTypes(t *testing.T) {
	doc := `Summary.

Args:
    x (int): the value
    *items (list): extra
    flag (bool, optional): toggle
    plain: no type here

Returns:
    y (str): not an argument
`
	assert.Equal(t, map[string]string{"x": "int", "items": "list", "flag": "bool"}, argTypes(doc))
}

func TestArgTypesNoSection(t *testing.T) {
	assert.Empty(t, argTypes("x (int): outside any section"))
}
