package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/docprobe/internal/analysis"
	"github.com/roach88/docprobe/internal/ir"
	"github.com/roach88/docprobe/internal/perf"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	PolicyPath      string
	Iterations      int
	CaseTimeout     time.Duration
	MetricsTextfile string
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Screen, load and test a candidate module",
		Long: `Run the full pipeline over one candidate module and print its report.

The module is screened before anything executes. Documented examples run one
at a time under a per-case deadline, and every zero-argument function is
sampled for performance. With --format json the report is printed as is.

Exit code 1 means the report status is "error".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "policy file (.cue, .yaml or .yml)")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", perf.DefaultIterations,
		fmt.Sprintf("performance iterations per function (max %d)", perf.MaxIterations))
	cmd.Flags().DurationVar(&opts.CaseTimeout, "case-timeout", 0, "per-case deadline (default 5s, capped by the policy)")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics for the run to this file")

	return cmd
}

func runAnalyze(ctx context.Context, rootOpts *RootOptions, opts *AnalyzeOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	p, err := loadPolicy(opts.PolicyPath)
	if err != nil {
		return commandError(formatter, ErrCodePolicy, "loading policy", err)
	}

	reg := prometheus.NewRegistry()
	analyzerOpts := []analysis.Option{
		analysis.WithLogger(rootOpts.logger(cmd.ErrOrStderr())),
		analysis.WithIterations(opts.Iterations),
		analysis.WithMetrics(analysis.NewMetrics(reg)),
	}
	if opts.CaseTimeout > 0 {
		analyzerOpts = append(analyzerOpts, analysis.WithCaseTimeout(opts.CaseTimeout))
	}

	formatter.VerboseLog("Analyzing %s", path)
	report := analysis.New(analyzerOpts...).Analyze(ctx, path, p)

	if opts.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsTextfile, reg); err != nil {
			return commandError(formatter, ErrCodeMetrics, "writing metrics textfile", err)
		}
		formatter.VerboseLog("Wrote metrics to %s", opts.MetricsTextfile)
	}

	if formatter.JSON() {
		if err := formatter.Raw(report); err != nil {
			return err
		}
	} else {
		writeReportText(formatter.Writer, report)
	}

	if !report.Succeeded() {
		return NewExitError(ExitFailure, fmt.Sprintf("analysis of %s failed: %s", path, report.Error))
	}
	return nil
}

func writeReportText(w io.Writer, r *analysis.Report) {
	name := filepath.Base(r.FilePath)
	if !r.Succeeded() {
		fmt.Fprintf(w, "✗ %s: %s\n", name, r.Error)
		if r.ErrorCode != "" {
			fmt.Fprintf(w, "  code: %s\n", r.ErrorCode)
		}
		if r.Traceback != "" {
			fmt.Fprintf(w, "\n%s\n", r.Traceback)
		}
		if r.TestSummary == nil {
			return
		}
	} else {
		fmt.Fprintf(w, "✓ %s (%s)\n", name, r.ModuleID)
	}

	fmt.Fprintf(w, "  run: %s at %s\n", r.RunID, r.AnalysisTimestamp)
	if len(r.FunctionsFound) > 0 {
		fmt.Fprintf(w, "  functions: %d found\n", len(r.FunctionsFound))
	}

	for _, fn := range ir.SortedKeys(r.Tests) {
		fmt.Fprintf(w, "\n  %s\n", fn)
		cases := r.Tests[fn]
		for _, expr := range ir.SortedKeys(cases) {
			fmt.Fprintf(w, "    %-40s %v\n", expr, cases[expr])
		}
	}

	if s := r.TestSummary; s != nil {
		fmt.Fprintf(w, "\n  tests: %d total, %d passed, %d failed, %d errors (%.2f%%)\n",
			s.TotalTests, s.PassedTests, s.FailedTests, s.ErrorTests, s.PassRate)
	}
	if m := r.Performance; m != nil {
		fmt.Fprintf(w, "  performance: %d function(s) x %d iterations, %.2f ops/s, %.4f ms/op\n",
			len(m.FunctionsSampled), m.Iterations, m.OperationsPerSecond, m.AvgOperationMs)
	}
}
