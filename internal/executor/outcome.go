package executor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/docprobe/internal/bind"
	"github.com/roach88/docprobe/internal/ir"
)

// Status is the terminal state of one case.
type Status string

const (
	StatusPassed                    Status = "passed"
	StatusFailed                    Status = "failed"
	StatusInvalidFormat             Status = "invalid_format"
	StatusParameterValidationFailed Status = "parameter_validation_failed"
	StatusTimedOut                  Status = "timed_out"
	StatusRuntimeError              Status = "runtime_error"
)

// Statuses lists every terminal state.
var Statuses = []Status{
	StatusPassed,
	StatusFailed,
	StatusInvalidFormat,
	StatusParameterValidationFailed,
	StatusTimedOut,
	StatusRuntimeError,
}

// Report strings for outcomes that did not produce a comparison.
const (
	MsgInvalidFormat   = "Error: Invalid test case format"
	MsgParamValidation = "Failed parameter validation"
)

// Outcome is the terminal result of one case.
type Outcome struct {
	CallExpression string        `json:"call_expression"`
	Status         Status        `json:"status"`
	Expected       float64       `json:"expected"`
	Actual         ir.Value      `json:"actual,omitempty"`
	Message        string        `json:"message,omitempty"`
	Limit          time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
}

// ReportValue renders the outcome for the report's tests section: true or
// false for a comparison, otherwise a descriptive string.
func (o Outcome) ReportValue() any {
	switch o.Status {
	case StatusPassed:
		return true
	case StatusFailed:
		return false
	case StatusInvalidFormat:
		return MsgInvalidFormat
	case StatusParameterValidationFailed:
		return MsgParamValidation
	case StatusTimedOut:
		return "Error: execution timed out after " + seconds(o.Limit)
	default:
		return "Error: " + o.Message
	}
}

// Errored reports whether the case ended without a comparison.
func (o Outcome) Errored() bool {
	return o.Status != StatusPassed && o.Status != StatusFailed
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

// FunctionResult collects the outcomes for one function.
type FunctionResult struct {
	Function string `json:"function"`

	// Cases holds one outcome per extracted case, duplicates included.
	Cases []Outcome `json:"cases"`

	Outcomes map[string]Outcome                `json:"-"`
	Bindings map[string]bind.ParameterBinding `json:"-"`
}

// Tests renders Outcomes in report form.
func (r FunctionResult) Tests() map[string]any {
	out := make(map[string]any, len(r.Outcomes))
	for expr, o := range r.Outcomes {
		out[expr] = o.ReportValue()
	}
	return out
}

// Counts tallies keyed outcomes by status.
func (r FunctionResult) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

func (o Outcome) String() string {
	if o.Actual != nil {
		return fmt.Sprintf("%s: %s (got %s, want %s)", o.CallExpression, o.Status, ir.Repr(o.Actual), ir.Repr(ir.Float(o.Expected)))
	}
	return fmt.Sprintf("%s: %s", o.CallExpression, o.Status)
}
