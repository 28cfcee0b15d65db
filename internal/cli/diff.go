package cli

import (
	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/replay"
)

// DiffOptions holds the diff command's flags.
type DiffOptions struct {
	*RootOptions
	Left       string
	Right      string
	JSON       bool
	CausalOnly bool
	Semantic   bool
}

// NewDiffCommand compares two bundles' event sequences and reports their
// first point of divergence, per section 4.9.
func NewDiffCommand(root *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "diff",
		Short:         "compare two bundles' event sequences",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return diffBundles(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Left, "left", "", "left bundle directory (required)")
	cmd.Flags().StringVar(&opts.Right, "right", "", "right bundle directory (required)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "force JSON output regardless of --format")
	cmd.Flags().BoolVar(&opts.CausalOnly, "causal-only", false, "report only the causal ancestor chain of the first divergence")
	cmd.Flags().BoolVar(&opts.Semantic, "semantic", false, "also compute a field-level semantic diff of the first divergent payload")
	_ = cmd.MarkFlagRequired("left")
	_ = cmd.MarkFlagRequired("right")

	return cmd
}

func diffBundles(opts *DiffOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	if opts.JSON {
		out.Format = "json"
	}

	left, err := bundle.Open(opts.Left)
	if err != nil {
		return WrapExitError(ExitUserError, "open left bundle", err)
	}
	defer left.Close()
	right, err := bundle.Open(opts.Right)
	if err != nil {
		return WrapExitError(ExitUserError, "open right bundle", err)
	}
	defer right.Close()

	leftEvents, err := left.Log.All()
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "read left event log", err)
	}
	rightEvents, err := right.Log.All()
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "read right event log", err)
	}

	result := replay.Diff(leftEvents, rightEvents)

	report := map[string]any{
		"first_divergence": result.FirstDivergence,
		"identical":        result.FirstDivergence == -1,
	}
	if opts.CausalOnly {
		report["causal_ancestors"] = result.CausalAncestors
	} else {
		report["entries"] = result.Entries
	}

	if opts.Semantic && result.FirstDivergence >= 0 {
		entry := result.Entries[result.FirstDivergence]
		if entry.Left != nil && entry.Right != nil {
			changes, semErr := replay.SemanticDiff(entry.Left.Payload, entry.Right.Payload)
			if semErr == nil {
				report["semantic_changes"] = changes
			}
		}
	}

	if result.FirstDivergence != -1 {
		out.Success(report)
		return NewExitError(ExitVerificationFailed, "bundles diverge")
	}
	return out.Success(report)
}
