package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docprobe/internal/loader"
	"github.com/roach88/docprobe/internal/policy"
)

// PolicyResult is the policy command's payload.
type PolicyResult struct {
	Policy           policy.File   `json:"policy"`
	Config           policy.Config `json:"config"`
	AvailableModules []string      `json:"available_modules"`
}

// PolicyOptions holds flags for the policy command.
type PolicyOptions struct {
	PolicyPath string
}

// NewPolicyCommand creates the policy command.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{}

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy",
		Long: `Print the policy an analysis would run under, as YAML in text mode.
Without --policy this is the built-in default; the output is itself a valid
policy file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicy(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "policy file to load and normalise")

	return cmd
}

func runPolicy(rootOpts *RootOptions, opts *PolicyOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	p, err := loadPolicy(opts.PolicyPath)
	if err != nil {
		return commandError(formatter, ErrCodePolicy, "loading policy", err)
	}
	modules := loader.DefaultRegistry().Names()

	if formatter.JSON() {
		return formatter.Success(PolicyResult{
			Policy:           p.ToFile(),
			Config:           p.Config(),
			AvailableModules: modules,
		})
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "encoding policy", err)
	}
	fmt.Fprint(formatter.Writer, string(out))
	fmt.Fprintf(formatter.Writer, "# loadable modules: %v\n", modules)
	return nil
}
