// Package source turns candidate Starlark text into the structural facts the
// pipeline needs: top-level function definitions, their parameter schemas
// and docstrings, and the module's load() targets.
//
// Nothing in this package executes candidate code.
package source

import (
	"regexp"
	"strings"

	"go.starlark.net/syntax"
)

// ParamKind distinguishes ordinary parameters from variadic ones.
type ParamKind string

const (
	KindPositional  ParamKind = "positional"
	KindKeywordOnly ParamKind = "keyword_only"
	KindVarargs     ParamKind = "varargs"
	KindKwargs      ParamKind = "kwargs"
)

// Param is one declared parameter of a function definition.
type Param struct {
	Name       string    `json:"name"`
	Type       string    `json:"type,omitempty"` // from the docstring Args section
	HasDefault bool      `json:"has_default"`
	Kind       ParamKind `json:"kind"`
}

// FunctionDef is a top-level def statement.
type FunctionDef struct {
	Name   string  `json:"name"`
	Line   int     `json:"line"`
	Doc    string  `json:"doc,omitempty"`
	Params []Param `json:"params"`
}

// RequiredCount returns the number of parameters a caller must supply.
func (f FunctionDef) RequiredCount() int {
	n := 0
	for _, p := range f.Params {
		if (p.Kind == KindPositional || p.Kind == KindKeywordOnly) && !p.HasDefault {
			n++
		}
	}
	return n
}

// Import is one load() statement.
type Import struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// File is the parsed outline of a candidate module.
type File struct {
	Path      string        `json:"path"`
	Functions []FunctionDef `json:"functions"`
	Imports   []Import      `json:"imports"`
}

// Function returns the definition named name.
func (f *File) Function(name string) (FunctionDef, bool) {
	for _, fn := range f.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionDef{}, false
}

// FunctionNames returns top-level def names in source order.
func (f *File) FunctionNames() []string {
	names := make([]string, len(f.Functions))
	for i, fn := range f.Functions {
		names[i] = fn.Name
	}
	return names
}

// FileOptions is the Starlark dialect candidate modules are written in.
// Parsing and loading must agree on it. Recursion stays disabled: a
// recursive call fails with an ordinary evaluation error instead of growing
// the Go stack.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
}

// Parse parses src and returns its outline. A syntax failure is returned as
// the parser's syntax.Error.
func Parse(path string, src []byte) (*File, error) {
	f, err := FileOptions().Parse(path, src, 0)
	if err != nil {
		return nil, err
	}

	out := &File{Path: path, Functions: []FunctionDef{}, Imports: []Import{}}
	for _, stmt := range f.Stmts {
		switch s := stmt.(type) {
		case *syntax.DefStmt:
			out.Functions = append(out.Functions, outlineDef(s))
		case *syntax.LoadStmt:
			out.Imports = append(out.Imports, Import{
				Name: s.ModuleName(),
				Line: int(s.Load.Line),
			})
		}
	}
	return out, nil
}

func outlineDef(d *syntax.DefStmt) FunctionDef {
	doc := docstring(d.Body)
	types := argTypes(doc)

	params := make([]Param, 0, len(d.Params))
	named := KindPositional // becomes KindKeywordOnly after * or *args
	for _, p := range d.Params {
		var param Param
		switch e := p.(type) {
		case *syntax.Ident:
			param = Param{Name: e.Name, Kind: named}
		case *syntax.BinaryExpr: // name=default
			id, ok := e.X.(*syntax.Ident)
			if !ok {
				continue
			}
			param = Param{Name: id.Name, Kind: named, HasDefault: true}
		case *syntax.UnaryExpr:
			if e.Op == syntax.STAR {
				named = KindKeywordOnly
			}
			if e.X == nil {
				continue
			}
			id, ok := e.X.(*syntax.Ident)
			if !ok {
				continue
			}
			kind := KindVarargs
			if e.Op == syntax.STARSTAR {
				kind = KindKwargs
			}
			param = Param{Name: id.Name, Kind: kind}
		default:
			continue
		}
		param.Type = types[param.Name]
		params = append(params, param)
	}

	return FunctionDef{
		Name:   d.Name.Name,
		Line:   int(d.Def.Line),
		Doc:    doc,
		Params: params,
	}
}

// docstring returns the cleaned first statement of body when it is a string
// literal.
func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	expr, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := expr.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return CleanDoc(s)
}

// CleanDoc strips leading blank lines, trailing blank lines and the common
// indentation of every line after the first.
func CleanDoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "        "), "\n")

	indent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" {
			continue
		}
		if n := len(line) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}

	lines[0] = strings.TrimSpace(lines[0])
	if indent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= indent {
				lines[i] = lines[i][indent:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

var (
	argsHeader = regexp.MustCompile(`^(\s*)(Args|Arguments|Parameters):\s*$`)
	argEntry   = regexp.MustCompile(`^\s*\*{0,2}(\w+)\s*\(([^)]*)\)\s*:`)
)

// argTypes reads `name (type): description` entries from the Args section of
// a Google-style docstring. A type written as "int, optional" yields "int".
func argTypes(doc string) map[string]string {
	types := map[string]string{}
	headerIndent := -1
	for _, line := range strings.Split(doc, "\n") {
		if m := argsHeader.FindStringSubmatch(line); m != nil {
			headerIndent = len(m[1])
			continue
		}
		if headerIndent < 0 {
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" {
			continue
		}
		if len(line)-len(trimmed) <= headerIndent {
			headerIndent = -1 // section ended
			continue
		}
		if m := argEntry.FindStringSubmatch(line); m != nil {
			typ, _, _ := strings.Cut(m[2], ",")
			types[m[1]] = strings.TrimSpace(typ)
		}
	}
	return types
}
