package analysis

import (
	"encoding/json"
	"math"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/executor"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/perf"
	"github.com/roach88/docprobe/internal/policy"
)

// Status is the overall report status.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Summary counts keyed outcomes across all functions. Errors are cases that
// ended without a comparison.
type Summary struct {
	TotalTests  int     `json:"total_tests"`
	PassedTests int     `json:"passed_tests"`
	FailedTests int     `json:"failed_tests"`
	ErrorTests  int     `json:"error_tests"`
	PassRate    float64 `json:"pass_rate"`
}

func (s *Summary) add(r executor.FunctionResult) {
	for _, o := range r.Outcomes {
		s.TotalTests++
		switch o.Status {
		case executor.StatusPassed:
			s.PassedTests++
		case executor.StatusFailed:
			s.FailedTests++
		default:
			s.ErrorTests++
		}
	}
}

func (s *Summary) finish() {
	if s.TotalTests > 0 {
		s.PassRate = math.Round(float64(s.PassedTests)/float64(s.TotalTests)*100*100) / 100
	}
}

// Report is the result of one analysis run.
//
// Tests and ParameterValidations are nil when the module failed to load and
// are then left out of the JSON form entirely; an empty map is kept.
type Report struct {
	RunID             string        `json:"run_id"`
	FilePath          string        `json:"file_path"`
	AnalysisTimestamp string        `json:"analysis_timestamp"`
	ModuleID          string        `json:"module_id,omitempty"`
	Config            policy.Config `json:"config"`
	Status            Status        `json:"status"`

	Tests                map[string]map[string]any                   `json:"-"`
	ParameterValidations map[string]map[string]bind.ParameterBinding `json:"-"`

	Performance    *perf.Metrics `json:"performance,omitempty"`
	TestSummary    *Summary      `json:"test_summary,omitempty"`
	FunctionsFound []string      `json:"functions_found,omitempty"`
	ResultDigest   string        `json:"result_digest,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// MarshalJSON emits tests and parameter_validations only when they were
// computed.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := struct {
		plain
		Tests                any `json:"tests,omitempty"`
		ParameterValidations any `json:"parameter_validations,omitempty"`
	}{plain: plain(r)}
	if r.Tests != nil {
		out.Tests = r.Tests
	}
	if r.ParameterValidations != nil {
		out.ParameterValidations = r.ParameterValidations
	}
	return json.Marshal(out)
}

// Succeeded reports whether the run finished with status success.
func (r *Report) Succeeded() bool { return r.Status == StatusSuccess }

// Snapshot returns the parts of the report that must not change between
// runs over identical source and policy, in canonically marshalable form.
func (r *Report) Snapshot() map[string]any {
	tests := make(map[string]any, len(r.Tests))
	for fn, cases := range r.Tests {
		tests[fn] = cases
	}
	snapshot := map[string]any{
		"module_id":       r.ModuleID,
		"functions_found": r.FunctionsFound,
		"tests":           tests,
	}
	if s := r.TestSummary; s != nil {
		snapshot["test_summary"] = map[string]any{
			"total_tests":  s.TotalTests,
			"passed_tests": s.PassedTests,
			"failed_tests": s.FailedTests,
			"error_tests":  s.ErrorTests,
			"pass_rate":    s.PassRate,
		}
	}
	return snapshot
}

func (r *Report) digest() (string, error) {
	return ir.ResultDigest(r.Snapshot())
}
