package doctest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/docprobe/internal/ir"
)

// ErrUnparseable is returned (wrapped) for any call expression outside the
// literal grammar.
var ErrUnparseable = errors.New("unparseable call expression")

// Call is a parsed call expression.
type Call struct {
	Name string     `json:"name"`
	Args []ir.Value `json:"args"`
}

var (
	integerLit = regexp.MustCompile(`^[-+]?\d+$`)
	decimalLit = regexp.MustCompile(`^[-+]?(?:\d+\.\d*|\.\d+)(?:[eE][-+]?\d+)?$|^[-+]?\d+[eE][-+]?\d+$`)
)

// ParseCall parses `name(arg, ...)` where every argument is a literal:
// integer, decimal, quoted string, true/false, none (case-insensitive) or a
// bracketed list of those. Nested calls, named arguments, arithmetic,
// tuples and trailing commas make the whole call unparseable.
func ParseCall(text string) (Call, error) {
	p := &parser{src: strings.TrimSpace(text)}

	name := p.identifier()
	if name == "" {
		return Call{}, p.errorf("expected function name")
	}
	p.skipSpace()
	if !p.consume('(') {
		return Call{}, p.errorf("expected '('")
	}
	args, err := p.sequence(')')
	if err != nil {
		return Call{}, err
	}
	p.skipSpace()
	if !p.done() {
		return Call{}, p.errorf("unexpected trailing text")
	}
	return Call{Name: name, Args: args}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrUnparseable, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c && !p.done() {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (p *parser) identifier() string {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return ""
	}
	for !p.done() && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// sequence parses comma-separated values up to and including close.
func (p *parser) sequence(close byte) ([]ir.Value, error) {
	vals := []ir.Value{}
	p.skipSpace()
	if p.consume(close) {
		return vals, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)

		p.skipSpace()
		if p.consume(close) {
			return vals, nil
		}
		if !p.consume(',') {
			return nil, p.errorf("expected ',' or %q", close)
		}
		p.skipSpace()
		if p.peek() == close {
			return nil, p.errorf("trailing comma")
		}
	}
}

func (p *parser) value() (ir.Value, error) {
	p.skipSpace()
	switch c := p.peek(); c {
	case '"', '\'':
		return p.quoted(c)
	case '[':
		p.pos++
		elems, err := p.sequence(']')
		if err != nil {
			return nil, err
		}
		return ir.List(elems), nil
	}

	start := p.pos
	for !p.done() && isTokenChar(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, p.errorf("expected literal")
	}

	switch {
	case integerLit.MatchString(tok):
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return ir.Int(n), nil
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, p.errorf("integer out of range")
		}
		return ir.Float(f), nil
	case decimalLit.MatchString(tok):
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, p.errorf("invalid decimal %q", tok)
		}
		return ir.Float(f), nil
	case strings.EqualFold(tok, "true"):
		return ir.Bool(true), nil
	case strings.EqualFold(tok, "false"):
		return ir.Bool(false), nil
	case strings.EqualFold(tok, "none"):
		return ir.Null{}, nil
	default:
		return nil, p.errorf("unsupported argument %q", tok)
	}
}

func isTokenChar(c byte) bool {
	return isIdentChar(c) || c == '.' || c == '+' || c == '-'
}

// quoted parses a single- or double-quoted string with backslash escapes.
func (p *parser) quoted(quote byte) (ir.Value, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return ir.String(b.String()), nil
		case '\\':
			if p.done() {
				return nil, p.errorf("unterminated escape")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return nil, p.errorf("unterminated string")
}
