// Package policy defines the immutable limits and allow/deny rules that
// govern screening, loading and executing one candidate module.
package policy

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"time"
)

// Default limits applied when a policy field is not set.
const (
	DefaultMaxExecution  = 10 * time.Second
	DefaultMaxMemoryMB   = 100
	DefaultMaxFileSizeMB = 1
)

// DefaultAllowedImports are the load() targets a default policy accepts.
var DefaultAllowedImports = []string{"math", "json", "time"}

// DefaultForbiddenPatterns are matched against raw source text, including
// comments and string literals. A match rejects the file before anything is
// executed, so false positives are accepted.
var DefaultForbiddenPatterns = []string{
	`\beval\s*\(`,
	`\bexec\s*\(`,
	`__import__`,
	`\bopen\s*\(`,
	`os\.system`,
	`subprocess`,
	`\bcompile\s*\(`,
	`\bglobals\s*\(`,
	`\blocals\s*\(`,
	`\binput\s*\(`,
}

// Policy holds the limits and allow/deny rules for one analysis run.
// A Policy is immutable after construction and safe to share between
// goroutines. Accessors return copies.
type Policy struct {
	maxExecution   time.Duration
	maxMemoryMB    int
	maxFileSizeMB  int
	maxSteps       uint64
	allowedImports map[string]struct{}
	forbidden      []*regexp.Regexp
}

// Option configures a Policy under construction.
type Option func(*Policy) error

// WithMaxExecution sets the whole-file load deadline.
func WithMaxExecution(d time.Duration) Option {
	return func(p *Policy) error {
		if d <= 0 {
			return fmt.Errorf("max execution must be positive, got %s", d)
		}
		p.maxExecution = d
		return nil
	}
}

// WithMaxMemoryMB sets the heap growth limit enforced during a load.
func WithMaxMemoryMB(mb int) Option {
	return func(p *Policy) error {
		if mb <= 0 {
			return fmt.Errorf("max memory must be positive, got %d", mb)
		}
		p.maxMemoryMB = mb
		return nil
	}
}

// WithMaxFileSizeMB sets the largest candidate source accepted.
func WithMaxFileSizeMB(mb int) Option {
	return func(p *Policy) error {
		if mb <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", mb)
		}
		p.maxFileSizeMB = mb
		return nil
	}
}

// WithMaxExecutionSteps bounds the Starlark computation steps of a single
// load or call. Zero means unlimited.
func WithMaxExecutionSteps(n uint64) Option {
	return func(p *Policy) error {
		p.maxSteps = n
		return nil
	}
}

// WithAllowedImports replaces the set of accepted load() targets.
func WithAllowedImports(names ...string) Option {
	return func(p *Policy) error {
		p.allowedImports = make(map[string]struct{}, len(names))
		for _, n := range names {
			if n == "" {
				return fmt.Errorf("allowed import name must not be empty")
			}
			p.allowedImports[n] = struct{}{}
		}
		return nil
	}
}

// WithForbiddenPatterns replaces the ordered list of forbidden source
// patterns. Each pattern is a Go regular expression.
func WithForbiddenPatterns(patterns ...string) Option {
	return func(p *Policy) error {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, pat := range patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return fmt.Errorf("forbidden pattern %q: %w", pat, err)
			}
			compiled = append(compiled, re)
		}
		p.forbidden = compiled
		return nil
	}
}

// New builds a Policy from the defaults with opts applied in order.
func New(opts ...Option) (*Policy, error) {
	p := &Policy{
		maxExecution:  DefaultMaxExecution,
		maxMemoryMB:   DefaultMaxMemoryMB,
		maxFileSizeMB: DefaultMaxFileSizeMB,
	}
	defaults := []Option{
		WithAllowedImports(DefaultAllowedImports...),
		WithForbiddenPatterns(DefaultForbiddenPatterns...),
	}
	for _, opt := range append(defaults, opts...) {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Default returns the default policy.
func Default() *Policy {
	p, err := New()
	if err != nil {
		panic(fmt.Sprintf("policy: invalid defaults: %v", err))
	}
	return p
}

// MaxExecution returns the whole-file load deadline.
func (p *Policy) MaxExecution() time.Duration { return p.maxExecution }

// MaxMemoryMB returns the heap growth limit in MiB.
func (p *Policy) MaxMemoryMB() int { return p.maxMemoryMB }

// MaxFileSizeMB returns the source size limit in MiB.
func (p *Policy) MaxFileSizeMB() int { return p.maxFileSizeMB }

// MaxFileSizeBytes returns the source size limit in bytes.
func (p *Policy) MaxFileSizeBytes() int64 { return int64(p.maxFileSizeMB) << 20 }

// MaxMemoryBytes returns the heap growth limit in bytes.
func (p *Policy) MaxMemoryBytes() uint64 { return uint64(p.maxMemoryMB) << 20 }

// MaxExecutionSteps returns the per-thread step budget, 0 for unlimited.
func (p *Policy) MaxExecutionSteps() uint64 { return p.maxSteps }

// AllowsImport reports whether name is an accepted load() target.
func (p *Policy) AllowsImport(name string) bool {
	_, ok := p.allowedImports[name]
	return ok
}

// AllowedImports returns the accepted load() targets, sorted.
func (p *Policy) AllowedImports() []string {
	names := make([]string, 0, len(p.allowedImports))
	for n := range p.allowedImports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForbiddenPatterns returns the forbidden patterns in evaluation order.
func (p *Policy) ForbiddenPatterns() []*regexp.Regexp {
	return slices.Clone(p.forbidden)
}

// Config is the report-facing summary of the limits.
type Config struct {
	MaxExecutionTime float64 `json:"max_execution_time"`
	MaxMemoryMB      int     `json:"max_memory_mb"`
	MaxFileSizeMB    int     `json:"max_file_size_mb"`
}

// Config returns the limits as they appear in an analysis report.
func (p *Policy) Config() Config {
	return Config{
		MaxExecutionTime: p.maxExecution.Seconds(),
		MaxMemoryMB:      p.maxMemoryMB,
		MaxFileSizeMB:    p.maxFileSizeMB,
	}
}
