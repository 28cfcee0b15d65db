package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
)

// BundleOptions holds the bundle command's flags.
type BundleOptions struct {
	*RootOptions
	DAGPath  string
	OutDir   string
	Compress bool
}

// NewBundleCommand assembles a fresh `.cath-bundle/` directory from a
// dag.json definition: workflow.cath/dag.json written, an empty event
// log and blob store created, and the bundle finalized at once with
// "shell" status metadata and a MANIFEST.json. This command exists for
// building a bundle shell independently of a run, e.g. to inspect the
// canonical DAG encoding a definition produces.
func NewBundleCommand(root *RootOptions) *cobra.Command {
	opts := &BundleOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "bundle",
		Short:         "assemble an empty bundle shell from a dag.json definition",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bundleShell(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DAGPath, "dag", "", "path to a dag.json workflow definition (required)")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "bundle output directory (required)")
	cmd.Flags().BoolVar(&opts.Compress, "compress-blobs", true, "zstd-compress blob store entries")
	_ = cmd.MarkFlagRequired("dag")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func bundleShell(opts *BundleOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	dagJSON, err := os.ReadFile(opts.DAGPath)
	if err != nil {
		return WrapExitError(ExitUserError, "read dag file", err)
	}
	dag, err := bundle.DAGFromJSON(dagJSON)
	if err != nil {
		return WrapExitError(ExitUserError, "parse dag file", err)
	}

	w, err := bundle.Create(opts.OutDir, dag, opts.Compress)
	if err != nil {
		return WrapExitError(ExitUserError, "create bundle", err)
	}
	w.SetMetadata(&bundle.Metadata{Status: "shell", NodeCount: len(dag.Nodes)})
	if err := w.Finalize(); err != nil {
		w.Close()
		return WrapExitError(ExitUserError, "finalize bundle", err)
	}
	if err := w.Close(); err != nil {
		return WrapExitError(ExitUserError, "close bundle", err)
	}

	return out.Success(map[string]any{"bundle_dir": opts.OutDir, "node_count": len(dag.Nodes)})
}
