package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Error codes for policy file failures.
const (
	ErrCodeRead        = "POLICY_READ"
	ErrCodeDecode      = "POLICY_DECODE"
	ErrCodeInvalid     = "POLICY_INVALID"
	ErrCodeUnsupported = "POLICY_UNSUPPORTED"
)

// FileError reports a policy file that could not be turned into a Policy.
type FileError struct {
	Code    string
	Path    string
	Message string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// IsFileError reports whether err is a *FileError.
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}

// File is the on-disk shape of a policy. Omitted fields keep their defaults.
type File struct {
	MaxExecutionSeconds float64  `json:"max_execution_seconds" yaml:"max_execution_seconds" validate:"gt=0,lte=3600"`
	MaxMemoryMB         int      `json:"max_memory_mb" yaml:"max_memory_mb" validate:"gt=0"`
	MaxFileSizeMB       int      `json:"max_file_size_mb" yaml:"max_file_size_mb" validate:"gt=0"`
	MaxExecutionSteps   uint64   `json:"max_execution_steps" yaml:"max_execution_steps"`
	AllowedImports      []string `json:"allowed_imports" yaml:"allowed_imports" validate:"dive,required"`
	ForbiddenPatterns   []string `json:"forbidden_patterns" yaml:"forbidden_patterns" validate:"dive,required"`
}

// schema closes the CUE form of File; unknown fields are rejected.
const schema = `
#Policy: {
	max_execution_seconds?: number & >0
	max_memory_mb?:         int & >0
	max_file_size_mb?:      int & >0
	max_execution_steps?:   int & >=0
	allowed_imports?: [...string]
	forbidden_patterns?: [...string]
}
`

var fileValidate = validator.New()

// DefaultFile returns the File form of the default policy.
func DefaultFile() File {
	return File{
		MaxExecutionSeconds: DefaultMaxExecution.Seconds(),
		MaxMemoryMB:         DefaultMaxMemoryMB,
		MaxFileSizeMB:       DefaultMaxFileSizeMB,
		AllowedImports:      append([]string(nil), DefaultAllowedImports...),
		ForbiddenPatterns:   append([]string(nil), DefaultForbiddenPatterns...),
	}
}

// ToFile returns the File form of p.
func (p *Policy) ToFile() File {
	patterns := make([]string, len(p.forbidden))
	for i, re := range p.forbidden {
		patterns[i] = re.String()
	}
	return File{
		MaxExecutionSeconds: p.maxExecution.Seconds(),
		MaxMemoryMB:         p.maxMemoryMB,
		MaxFileSizeMB:       p.maxFileSizeMB,
		MaxExecutionSteps:   p.maxSteps,
		AllowedImports:      p.AllowedImports(),
		ForbiddenPatterns:   patterns,
	}
}

// Policy validates f and builds the corresponding Policy.
func (f File) Policy() (*Policy, error) {
	if err := fileValidate.Struct(f); err != nil {
		return nil, err
	}
	return New(
		WithMaxExecution(time.Duration(f.MaxExecutionSeconds*float64(time.Second))),
		WithMaxMemoryMB(f.MaxMemoryMB),
		WithMaxFileSizeMB(f.MaxFileSizeMB),
		WithMaxExecutionSteps(f.MaxExecutionSteps),
		WithAllowedImports(f.AllowedImports...),
		WithForbiddenPatterns(f.ForbiddenPatterns...),
	)
}

// Load reads a policy file. The format is chosen by extension: .cue, or
// .yaml/.yml.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Code: ErrCodeRead, Path: path, Message: err.Error()}
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		f, err = DecodeCUE(path, data)
	case ".yaml", ".yml":
		f, err = DecodeYAML(data)
	default:
		return nil, &FileError{Code: ErrCodeUnsupported, Path: path, Message: fmt.Sprintf("unsupported policy format %q", ext)}
	}
	if err != nil {
		return nil, &FileError{Code: ErrCodeDecode, Path: path, Message: err.Error()}
	}

	p, err := f.Policy()
	if err != nil {
		return nil, &FileError{Code: ErrCodeInvalid, Path: path, Message: err.Error()}
	}
	return p, nil
}

// DecodeCUE unifies data with the policy schema and decodes it over the
// defaults.
func DecodeCUE(filename string, data []byte) (File, error) {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Policy"))
	if err := def.Err(); err != nil {
		return File{}, fmt.Errorf("compiling schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return File{}, fmt.Errorf("compiling %s: %w", filename, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return File{}, fmt.Errorf("validating %s: %w", filename, err)
	}

	f := DefaultFile()
	if err := unified.Decode(&f); err != nil {
		return File{}, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return f, nil
}

// DecodeYAML decodes data over the defaults. Unknown fields are rejected.
func DecodeYAML(data []byte) (File, error) {
	f := DefaultFile()
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, err
	}
	return f, nil
}

// MarshalYAML renders p as a policy file.
func (p *Policy) MarshalYAML() (any, error) {
	return p.ToFile(), nil
}
