package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds flags every subcommand inherits.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

// ValidFormats is the set of --format values NewRootCommand accepts.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the fabric CLI's root command with every
// subcommand its CLI surface names attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fabric",
		Short: "CATHEDRAL.FABRIC — a deterministic execution substrate for agent workflow DAGs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid --format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose diagnostic output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewBundleCommand(opts))
	cmd.AddCommand(NewVerifyBundleCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewCertifyCommand(opts))
	cmd.AddCommand(NewVerifyCertCommand(opts))
	cmd.AddCommand(NewSimCommand(opts))

	return cmd
}

func isValidFormat(f string) bool {
	for _, v := range ValidFormats {
		if v == f {
			return true
		}
	}
	return false
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
