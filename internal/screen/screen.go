// Package screen performs static pre-load screening of candidate source.
//
// Screening never executes the candidate. Checks run in a fixed order and
// stop at the first failure: size, forbidden patterns, syntax, imports.
package screen

import (
	"errors"
	"fmt"

	"go.starlark.net/syntax"

	"github.com/roach88/docprobe/internal/policy"
	"github.com/roach88/docprobe/internal/source"
)

// Failure codes, one per screening step.
const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeForbiddenPattern = "FORBIDDEN_PATTERN"
	CodeSyntaxError      = "SYNTAX_ERROR"
	CodeDisallowedImport = "DISALLOWED_IMPORT"
)

// SecurityError is a screening failure. It is fatal for the run.
type SecurityError struct {
	Code   string
	Path   string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security validation failed for %s: %s: %s", e.Path, e.Code, e.Reason)
}

// IsSecurityError reports whether err is a *SecurityError.
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

// Outcome is the result of screening one file.
type Outcome struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path"`

	// Outline is set when the source parsed, even if a later check failed.
	Outline *source.File `json:"-"`
}

// Err returns nil for a passing outcome and a *SecurityError otherwise.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	return &SecurityError{Code: o.Code, Path: o.Path, Reason: o.Reason}
}

func fail(path, code, reason string) Outcome {
	return Outcome{Path: path, Code: code, Reason: reason}
}

// Validate screens src against p.
func Validate(path string, src []byte, p *policy.Policy) Outcome {
	if limit := p.MaxFileSizeBytes(); int64(len(src)) > limit {
		return fail(path, CodeFileTooLarge,
			fmt.Sprintf("file too large: %d bytes exceeds limit of %d MB", len(src), p.MaxFileSizeMB()))
	}

	for _, re := range p.ForbiddenPatterns() {
		if loc := re.FindIndex(src); loc != nil {
			return fail(path, CodeForbiddenPattern,
				fmt.Sprintf("forbidden pattern %q matched %q", re.String(), src[loc[0]:loc[1]]))
		}
	}

	outline, err := source.Parse(path, src)
	if err != nil {
		var serr syntax.Error
		if errors.As(err, &serr) {
			return fail(path, CodeSyntaxError,
				fmt.Sprintf("syntax error at line %d, column %d: %s", serr.Pos.Line, serr.Pos.Col, serr.Msg))
		}
		return fail(path, CodeSyntaxError, fmt.Sprintf("syntax error: %v", err))
	}

	for _, imp := range outline.Imports {
		if !p.AllowsImport(imp.Name) {
			out := fail(path, CodeDisallowedImport,
				fmt.Sprintf("disallowed import %q at line %d", imp.Name, imp.Line))
			out.Outline = outline
			return out
		}
	}

	return Outcome{OK: true, Path: path, Outline: outline}
}
