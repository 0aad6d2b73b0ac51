package doctest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docprobe/internal/ir"
)

func TestExtractEqualsForm(t *testing.T) {
	cases := Extract("Sums its arguments.\n\nf(2,3) == 5\n")

	require.Len(t, cases, 1)
	assert.Equal(t, "f(2,3)", cases[0].CallExpression)
	assert.Equal(t, 5.0, cases[0].ExpectedValue)
	assert.Equal(t, FormEquals, cases[0].Form)
}

func TestExtractAllForms(t *testing.T) {
	doc := `Examples:
    square(4) == 16
    square(-2) -> 4
    >>> square(1.5)
    2.25
`
	cases := Extract(doc)

	require.Len(t, cases, 3)
	assert.Equal(t, []string{"square(4)", "square(-2)", "square(1.5)"}, exprs(cases))
	assert.Equal(t, []float64{16, 4, 2.25}, expected(cases))
	assert.Equal(t, []Form{FormEquals, FormArrow, FormTranscript}, []Form{cases[0].Form, cases[1].Form, cases[2].Form})
}

func TestExtractSignedAndDecimal(t *testing.T) {
	cases := Extract("neg(3) == -3\npos(1) == +7\nhalf(1) == 0.5\n")
	assert.Equal(t, []float64{-3, 7, 0.5}, expected(cases))
}

func TestExtractDropsNonNumeric(t *testing.T) {
	doc := `name(1) == "one"
flag(0) -> True
>>> greet()
'hi'
count(2) == 2
`
	cases := Extract(doc)
	assert.Equal(t, []string{"count(2)"}, exprs(cases))
}

func TestExtractNoDedup(t *testing.T) {
	// The same expression in two forms is kept twice.
	doc := "add(1, 2) == 3\nadd(1, 2) -> 3\n"
	cases := Extract(doc)
	assert.Equal(t, []string{"add(1, 2)", "add(1, 2)"}, exprs(cases))
	assert.Equal(t, []Form{FormEquals, FormArrow}, []Form{cases[0].Form, cases[1].Form})
}

func TestExtractOrderedByPosition(t *testing.T) {
	doc := "b(1) -> 1\na(1) == 2\n>>> c(1)\n3\nd(1) -> 4\n"
	assert.Equal(t, []string{"b(1)", "a(1)", "c(1)", "d(1)"}, exprs(Extract(doc)))
}

func TestExtractTranscriptNeedsNumberOnNextLine(t *testing.T) {
	assert.Empty(t, Extract(">>> f(1)\n\n3\n"))
	assert.Empty(t, Extract(">>> f(1)\n3 apples\n"))
	assert.Len(t, Extract(">>> f(1)\n3"), 1)
}

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.NotNil(t, Extract("no examples here"))
}

func TestParseCallRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want []ir.Value
	}{
		{"f(1,2)", []ir.Value{ir.Int(1), ir.Int(2)}},
		{`f("a","b")`, []ir.Value{ir.String("a"), ir.String("b")}},
		{"f(true,false)", []ir.Value{ir.Bool(true), ir.Bool(false)}},
		{"f([1,2,3])", []ir.Value{ir.List{ir.Int(1), ir.Int(2), ir.Int(3)}}},
		{"f()", []ir.Value{}},
		{"f(  )", []ir.Value{}},
		{"f(-4, +2, 3.25)", []ir.Value{ir.Int(-4), ir.Int(2), ir.Float(3.25)}},
		{"f(TRUE, False, None, NONE)", []ir.Value{ir.Bool(true), ir.Bool(false), ir.Null{}, ir.Null{}}},
		{`f('it\'s', "a,b", "tab\there")`, []ir.Value{ir.String("it's"), ir.String("a,b"), ir.String("tab\there")}},
		{"f([], [[1], ['x', none]])", []ir.Value{ir.List{}, ir.List{ir.List{ir.Int(1)}, ir.List{ir.String("x"), ir.Null{}}}}},
		{" f ( 1 ) ", []ir.Value{ir.Int(1)}},
		{"f(.5, 2., 1e3)", []ir.Value{ir.Float(0.5), ir.Float(2), ir.Float(1000)}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			call, err := ParseCall(tt.in)
			require.NoError(t, err)
			assert.Equal(t, "f", call.Name)
			assert.Equal(t, tt.want, call.Args)
		})
	}
}

func TestParseCallUnparseable(t *testing.T) {
	tests := []string{
		"f(g(1))",
		"f(x=1)",
		"f(1+2)",
		"f(1 + 2)",
		"f(1,)",
		"f((1, 2))",
		"f([1,])",
		"f(1,,2)",
		"f(abc)",
		"f('open)",
		"f(1",
		"f(1) + 2",
		"(1)",
		"f",
		"",
		"f(1.2.3)",
		"f(99999999999999999999999999999999999999e999)",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCall(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestParseCallBigInteger(t *testing.T) {
	call, err := ParseCall("f(123456789012345678901234567890)")
	require.NoError(t, err)
	require.Len(t, call.Args, 1)
	assert.IsType(t, ir.Float(0), call.Args[0])
}

func TestParseCallUnknownEscapeKept(t *testing.T) {
	call, err := ParseCall(`f("a\qb")`)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String(`a\qb`)}, call.Args)
}

func exprs(cases []TestCase) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.CallExpression
	}
	return out
}

func expected(cases []TestCase) []float64 {
	out := make([]float64, len(cases))
	for i, c := range cases {
		out[i] = c.ExpectedValue
	}
	return out
}
