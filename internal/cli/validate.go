package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docprobe/internal/screen"
)

// ValidationResult is the validate command's payload.
type ValidationResult struct {
	screen.Outcome
	Functions []string `json:"functions,omitempty"`
	Imports   []string `json:"imports,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	PolicyPath string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Screen a candidate module without executing it",
		Long: `Run the static screening checks over a candidate module: size limit,
forbidden patterns, syntax and load() targets. Nothing in the file runs.

Exit code 1 means the file was rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "policy file (.cue, .yaml or .yml)")

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	p, err := loadPolicy(opts.PolicyPath)
	if err != nil {
		return commandError(formatter, ErrCodePolicy, "loading policy", err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, "reading "+path, err)
	}

	outcome := screen.Validate(path, src, p)
	result := ValidationResult{Outcome: outcome}
	if f := outcome.Outline; f != nil {
		for _, fn := range f.Functions {
			result.Functions = append(result.Functions, fn.Name)
		}
		for _, imp := range f.Imports {
			result.Imports = append(result.Imports, imp.Name)
		}
	}
	formatter.VerboseLog("Screened %s (%d bytes)", path, len(src))

	if formatter.JSON() {
		if outcome.OK {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else {
			if err := formatter.Raw(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: outcome.Code, Message: outcome.Reason},
			}); err != nil {
				return err
			}
		}
	} else if outcome.OK {
		fmt.Fprintf(formatter.Writer, "✓ %s passed screening (%d function(s))\n", path, len(result.Functions))
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Screening failed")
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", outcome.Code, outcome.Reason)
	}

	if !outcome.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", outcome.Code, outcome.Reason))
	}
	return nil
}
