// Package doctest mines expected behaviour from docstrings and turns call
// expressions into literal arguments.
//
// Extraction is regex based and only recognises numeric expectations. The
// call parser is a small recursive-descent grammar over literals; it never
// evaluates anything and rejects whatever it does not understand.
package doctest

import (
	"regexp"
	"sort"
	"strconv"
)

// Form names the surface syntax a case was written in.
type Form string

const (
	FormEquals     Form = "equals"     // f(args) == N
	FormArrow      Form = "arrow"      // f(args) -> N
	FormTranscript Form = "transcript" // >>> f(args) then N on the next line
)

// TestCase is one (call expression, expected number) pair.
type TestCase struct {
	CallExpression string  `json:"call_expression"`
	ExpectedValue  float64 `json:"expected_value"`
	Form           Form    `json:"form"`
	Offset         int     `json:"offset"`
}

const (
	callPattern   = `(\w+\([^)]*\))`
	numberPattern = `([-+]?\d+(?:\.\d+)?)`
)

var families = []struct {
	form Form
	re   *regexp.Regexp
}{
	{FormEquals, regexp.MustCompile(callPattern + `\s*==\s*` + numberPattern)},
	{FormArrow, regexp.MustCompile(callPattern + `\s*->\s*` + numberPattern)},
	{FormTranscript, regexp.MustCompile(`>>>[ \t]*` + callPattern + `[ \t]*\r?\n[ \t]*` + numberPattern + `[ \t]*(?:\r?\n|$)`)},
}

// Extract returns every test case in doc, ordered by where its call
// expression starts. Matches from different forms are not deduplicated: a
// call written in two forms yields two cases.
func Extract(doc string) []TestCase {
	cases := []TestCase{}
	for _, fam := range families {
		for _, m := range fam.re.FindAllStringSubmatchIndex(doc, -1) {
			expected, err := strconv.ParseFloat(doc[m[4]:m[5]], 64)
			if err != nil {
				continue
			}
			cases = append(cases, TestCase{
				CallExpression: doc[m[2]:m[3]],
				ExpectedValue:  expected,
				Form:           fam.form,
				Offset:         m[2],
			})
		}
	}
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Offset < cases[j].Offset })
	return cases
}
