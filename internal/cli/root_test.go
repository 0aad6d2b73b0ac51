package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModule = `def double(x):
    """Doubles x.

    Args:
        x (int): value

    Examples:
        double(2) == 4
        double(3) == 7
        double(y) == 1
    """
    return x * 2

def ping():
    """ping() == 1"""
    return 1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "docprobe", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"analyze", "validate", "cases", "policy"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestAnalyzeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	analyze, _, err := cmd.Find([]string{"analyze"})
	require.NoError(t, err)

	for _, name := range []string{"policy", "iterations", "case-timeout", "metrics-textfile"} {
		assert.NotNil(t, analyze.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "100", analyze.Flags().Lookup("iterations").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "policy")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAnalyzeJSONReport(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule)

	out, err := execute(t, "--format", "json", "analyze", "--iterations", "2", path)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "success", report["status"])
	assert.Equal(t, path, report["file_path"])

	tests := report["tests"].(map[string]any)
	double := tests["double"].(map[string]any)
	assert.Equal(t, true, double["double(2)"])
	assert.Equal(t, false, double["double(3)"])
	assert.Equal(t, "Error: Invalid test case format", double["double(y)"])

	summary := report["test_summary"].(map[string]any)
	assert.Equal(t, 4.0, summary["total_tests"])
	assert.Equal(t, 50.0, summary["pass_rate"])

	perf := report["performance"].(map[string]any)
	assert.Equal(t, []any{"ping"}, perf["functions_sampled"])
}

func TestAnalyzeTextReport(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule)

	out, err := execute(t, "analyze", "--iterations", "1", path)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ sample.star")
	assert.Contains(t, out, "double(2)")
	assert.Contains(t, out, "tests: 4 total, 2 passed, 1 failed, 1 errors (50.00%)")
}

func TestAnalyzeErrorStatusExitsOne(t *testing.T) {
	path := writeFile(t, "bad.star", "x = eval('1')\n")

	out, err := execute(t, "--format", "json", "analyze", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "error", report["status"])
	assert.Equal(t, "FORBIDDEN_PATTERN", report["error_code"])
	assert.NotContains(t, report, "tests")
}

func TestAnalyzeBadPolicyExitsTwo(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule)
	bad := writeFile(t, "policy.yaml", "max_memory_mb: -1\n")

	_, err := execute(t, "analyze", "--policy", bad, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodePolicy)
}

func TestAnalyzeWritesMetricsTextfile(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule)
	metrics := filepath.Join(t.TempDir(), "docprobe.prom")

	_, err := execute(t, "analyze", "--iterations", "1", "--metrics-textfile", metrics, path)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docprobe_analysis_runs_total{status="success"} 1`)
	assert.Contains(t, string(data), `docprobe_executor_cases_total{status="passed"} 2`)
}

func TestValidateCommand(t *testing.T) {
	good := writeFile(t, "good.star", sampleModule)
	bad := writeFile(t, "bad.star", "load(\"os\", \"getenv\")\n")

	t.Run("passes", func(t *testing.T) {
		out, err := execute(t, "validate", good)
		require.NoError(t, err)
		assert.Contains(t, out, "passed screening (2 function(s))")
	})

	t.Run("passes json", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "validate", good)
		require.NoError(t, err)

		var resp struct {
			Status string           `json:"status"`
			Data   ValidationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.Data.OK)
		assert.Equal(t, []string{"double", "ping"}, resp.Data.Functions)
	})

	t.Run("rejected", func(t *testing.T) {
		out, err := execute(t, "validate", bad)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "DISALLOWED_IMPORT")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.star"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeNotFound)
	})
}

func TestCasesCommand(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule+"\nundefined_at_load_time()\n")

	out, err := execute(t, "--format", "json", "cases", path)
	require.NoError(t, err, "cases never executes the module")

	var resp struct {
		Data []FunctionCases `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)

	double := resp.Data[0]
	assert.Equal(t, "double", double.Function)
	require.Len(t, double.Cases, 3)
	assert.Equal(t, "double(2)", double.Cases[0].CallExpression)
	assert.Equal(t, 4.0, double.Cases[0].ExpectedValue)
	assert.True(t, double.Cases[0].Parseable)
	assert.False(t, double.Cases[2].Parseable)
	assert.NotEmpty(t, double.Cases[2].Error)
}

func TestCasesCommandText(t *testing.T) {
	path := writeFile(t, "sample.star", sampleModule)

	out, err := execute(t, "cases", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "double (line 1)", lines[0])
	assert.Contains(t, out, "✗ double(y)")
}

func TestCasesCommandSyntaxError(t *testing.T) {
	path := writeFile(t, "broken.star", "def f(:\n")

	_, err := execute(t, "cases", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeParse)
}

func TestPolicyCommand(t *testing.T) {
	t.Run("default yaml", func(t *testing.T) {
		out, err := execute(t, "policy")
		require.NoError(t, err)
		assert.Contains(t, out, "max_execution_seconds: 10")
		assert.Contains(t, out, "allowed_imports:")
		assert.Contains(t, out, "# loadable modules: [json math time]")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "policy")
		require.NoError(t, err)

		var resp struct {
			Data PolicyResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, 10.0, resp.Data.Config.MaxExecutionTime)
		assert.Equal(t, 100, resp.Data.Config.MaxMemoryMB)
		assert.Equal(t, []string{"json", "math", "time"}, resp.Data.AvailableModules)
	})

	t.Run("from file", func(t *testing.T) {
		path := writeFile(t, "policy.yaml", "max_execution_seconds: 2\nallowed_imports: [math]\n")
		out, err := execute(t, "policy", "--policy", path)
		require.NoError(t, err)
		assert.Contains(t, out, "max_execution_seconds: 2")
		assert.NotContains(t, out, "- json")
	})
}
