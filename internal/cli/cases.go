package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docprobe/internal/doctest"
	"github.com/roach88/docprobe/internal/source"
)

// ListedCase is one extracted case and whether its call expression parses.
type ListedCase struct {
	doctest.TestCase
	Parseable bool   `json:"parseable"`
	Error     string `json:"error,omitempty"`
}

// FunctionCases groups the cases documented on one function.
type FunctionCases struct {
	Function string       `json:"function"`
	Line     int          `json:"line"`
	Cases    []ListedCase `json:"cases"`
}

// NewCasesCommand creates the cases command.
func NewCasesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases <file>",
		Short: "List documented test cases without executing anything",
		Long: `Parse a candidate module and list the test cases each function's
docstring declares, marking call expressions the argument parser rejects.
The module is parsed, never executed, and no policy is applied.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCases(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCases(rootOpts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	src, err := os.ReadFile(path)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, "reading "+path, err)
	}
	outline, err := source.Parse(path, src)
	if err != nil {
		return commandError(formatter, ErrCodeParse, "parsing "+path, err)
	}

	listing := listCases(outline)
	formatter.VerboseLog("Found %d documented function(s) in %s", len(listing), path)

	if formatter.JSON() {
		return formatter.Success(listing)
	}

	if len(listing) == 0 {
		fmt.Fprintln(formatter.Writer, "No documented cases")
		return nil
	}
	for _, fc := range listing {
		fmt.Fprintf(formatter.Writer, "%s (line %d)\n", fc.Function, fc.Line)
		for _, c := range fc.Cases {
			mark := "✓"
			if !c.Parseable {
				mark = "✗"
			}
			fmt.Fprintf(formatter.Writer, "  %s %-40s expect %v\n", mark, c.CallExpression, c.ExpectedValue)
		}
	}
	return nil
}

// listCases keeps only functions that document at least one case.
func listCases(f *source.File) []FunctionCases {
	listing := []FunctionCases{}
	for _, fn := range f.Functions {
		extracted := doctest.Extract(fn.Doc)
		if len(extracted) == 0 {
			continue
		}
		fc := FunctionCases{Function: fn.Name, Line: fn.Line}
		for _, tc := range extracted {
			lc := ListedCase{TestCase: tc, Parseable: true}
			if _, err := doctest.ParseCall(tc.CallExpression); err != nil {
				lc.Parseable = false
				lc.Error = err.Error()
			}
			fc.Cases = append(fc.Cases, lc)
		}
		listing = append(listing, fc)
	}
	return listing
}
