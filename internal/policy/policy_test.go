package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	p := Default()

	assert.Equal(t, 10*time.Second, p.MaxExecution())
	assert.Equal(t, 100, p.MaxMemoryMB())
	assert.Equal(t, 1, p.MaxFileSizeMB())
	assert.Equal(t, int64(1<<20), p.MaxFileSizeBytes())
	assert.Equal(t, uint64(0), p.MaxExecutionSteps())
	assert.Equal(t, []string{"json", "math", "time"}, p.AllowedImports())
	assert.True(t, p.AllowsImport("math"))
	assert.False(t, p.AllowsImport("os"))
	assert.Len(t, p.ForbiddenPatterns(), len(DefaultForbiddenPatterns))
}

func TestDefaultForbiddenPatternsMatch(t *testing.T) {
	p := Default()
	matches := func(src string) bool {
		for _, re := range p.ForbiddenPatterns() {
			if re.MatchString(src) {
				return true
			}
		}
		return false
	}

	assert.True(t, matches(`x = eval("1")`))
	assert.True(t, matches("# os.system is mentioned in a comment"))
	assert.True(t, matches(`s = "__import__"`))
	assert.False(t, matches("def evaluate(x):\n    return x\n"))
	assert.False(t, matches("def square(x):\n    return x * x\n"))
}

func TestNewWithOptions(t *testing.T) {
	p, err := New(
		WithMaxExecution(2*time.Second),
		WithMaxMemoryMB(64),
		WithMaxFileSizeMB(3),
		WithMaxExecutionSteps(5000),
		WithAllowedImports("math"),
		WithForbiddenPatterns(`danger`),
	)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, p.MaxExecution())
	assert.Equal(t, 64, p.MaxMemoryMB())
	assert.Equal(t, uint64(64<<20), p.MaxMemoryBytes())
	assert.Equal(t, 3, p.MaxFileSizeMB())
	assert.Equal(t, uint64(5000), p.MaxExecutionSteps())
	assert.Equal(t, []string{"math"}, p.AllowedImports())
	require.Len(t, p.ForbiddenPatterns(), 1)
	assert.Equal(t, "danger", p.ForbiddenPatterns()[0].String())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		msg  string
	}{
		{"zero execution", WithMaxExecution(0), "max execution"},
		{"negative memory", WithMaxMemoryMB(-1), "max memory"},
		{"zero file size", WithMaxFileSizeMB(0), "max file size"},
		{"empty import", WithAllowedImports(""), "allowed import"},
		{"bad regexp", WithForbiddenPatterns(`(`), "forbidden pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	p := Default()

	imports := p.AllowedImports()
	imports[0] = "os"
	assert.False(t, p.AllowsImport("os"))

	patterns := p.ForbiddenPatterns()
	patterns[0] = nil
	assert.NotNil(t, p.ForbiddenPatterns()[0])
}

func TestConfig(t *testing.T) {
	p, err := New(WithMaxExecution(1500 * time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, Config{MaxExecutionTime: 1.5, MaxMemoryMB: 100, MaxFileSizeMB: 1}, p.Config())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "policy.yaml", `
max_execution_seconds: 2.5
max_memory_mb: 50
allowed_imports: [math]
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, p.MaxExecution())
	assert.Equal(t, 50, p.MaxMemoryMB())
	assert.Equal(t, 1, p.MaxFileSizeMB(), "omitted fields keep defaults")
	assert.Equal(t, []string{"math"}, p.AllowedImports())
	assert.Len(t, p.ForbiddenPatterns(), len(DefaultForbiddenPatterns))
}

func TestLoadYAMLEmptyFileIsDefault(t *testing.T) {
	p, err := Load(writeFile(t, "policy.yml", "\n"))
	require.NoError(t, err)
	assert.Equal(t, Default().ToFile(), p.ToFile())
}

func TestLoadYAMLUnknownField(t *testing.T) {
	_, err := Load(writeFile(t, "policy.yaml", "max_cpu: 3\n"))
	require.Error(t, err)
	assert.True(t, IsFileError(err))

	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeDecode, fe.Code)
}

func TestLoadYAMLValidationFailure(t *testing.T) {
	_, err := Load(writeFile(t, "policy.yaml", "max_memory_mb: 0\n"))
	require.Error(t, err)

	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeInvalid, fe.Code)
	assert.Contains(t, fe.Message, "MaxMemoryMB")
}

func TestLoadCUE(t *testing.T) {
	path := writeFile(t, "policy.cue", `
max_execution_seconds: 4
max_file_size_mb:      2
max_execution_steps:   100000
forbidden_patterns: ["os\\.system"]
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, p.MaxExecution())
	assert.Equal(t, 2, p.MaxFileSizeMB())
	assert.Equal(t, uint64(100000), p.MaxExecutionSteps())
	assert.Equal(t, 100, p.MaxMemoryMB())
	require.Len(t, p.ForbiddenPatterns(), 1)
	assert.Equal(t, `os\.system`, p.ForbiddenPatterns()[0].String())
}

func TestLoadCUESchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative limit", "max_memory_mb: -5\n"},
		{"unknown field", "max_cpu: 3\n"},
		{"wrong type", `max_file_size_mb: "big"` + "\n"},
		{"syntax", "max_memory_mb: {\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "policy.cue", tt.content))
			require.Error(t, err)

			var fe *FileError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, ErrCodeDecode, fe.Code)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeRead, fe.Code)

	_, err = Load(writeFile(t, "policy.toml", "x = 1\n"))
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeUnsupported, fe.Code)
}

func TestLoadInvalidPatternInFile(t *testing.T) {
	_, err := Load(writeFile(t, "policy.yaml", "forbidden_patterns: ['(']\n"))
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeInvalid, fe.Code)
	assert.Contains(t, fe.Message, "forbidden pattern")
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	p, err := New(WithMaxExecutionSteps(42), WithAllowedImports("json"))
	require.NoError(t, err)

	data, err := yaml.Marshal(p)
	require.NoError(t, err)

	f, err := DecodeYAML(data)
	require.NoError(t, err)
	back, err := f.Policy()
	require.NoError(t, err)
	assert.Equal(t, p.ToFile(), back.ToFile())
}
