package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/engine"
	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/internal/retrypolicy"
	"github.com/cathedral-fabric/fabric/internal/scheduler"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// RunOptions holds the run command's flags.
type RunOptions struct {
	*RootOptions
	DAGPath    string
	ToolsPath  string
	CapsPath   string
	PolicyPath string
	BundleDir  string
	Compress   bool
}

// NewRunCommand drives a DAG to completion, writing its event log and
// blob store into a fresh `.cath-bundle/` directory.
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "run",
		Short:         "run a DAG to completion and write a bundle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDAG(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DAGPath, "dag", "", "path to a dag.json workflow definition (required)")
	cmd.Flags().StringVar(&opts.ToolsPath, "tools", "", "path to a tool bindings file (required)")
	cmd.Flags().StringVar(&opts.CapsPath, "caps", "", "path to a capability grant file (required)")
	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "path to a policy definition file (required)")
	cmd.Flags().StringVar(&opts.BundleDir, "bundle", "", "bundle output directory (required)")
	cmd.Flags().BoolVar(&opts.Compress, "compress-blobs", true, "zstd-compress blob store entries")
	for _, name := range []string{"dag", "tools", "caps", "policy", "bundle"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runDAG(opts *RunOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	dagJSON, err := os.ReadFile(opts.DAGPath)
	if err != nil {
		return WrapExitError(ExitUserError, "read dag file", err)
	}
	dag, err := bundle.DAGFromJSON(dagJSON)
	if err != nil {
		return WrapExitError(ExitUserError, "parse dag file", err)
	}

	tools, err := loadToolRegistry(opts.ToolsPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load tool bindings", err)
	}

	caps, err := loadCapabilitySet(opts.CapsPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load capability grants", err)
	}

	def, err := loadPolicyDefinition(opts.PolicyPath)
	if err != nil {
		return WrapExitError(ExitUserError, "load policy definition", err)
	}
	compiled, err := policy.Compile(def)
	if err != nil {
		return WrapExitError(ExitUserError, "compile policy", err)
	}

	w, err := bundle.Create(opts.BundleDir, dag, opts.Compress)
	if err != nil {
		return WrapExitError(ExitUserError, "create bundle", err)
	}

	runID := core.NewRunID()
	cfg := engine.Config{
		Scheduler: scheduler.Config{Strategy: scheduler.RoundRobin},
		Retry:     retrypolicy.NewExponential(3, 1),
	}
	run, err := engine.New(runID, &dag, tools, caps, compiled, w.Log(), cfg)
	if err != nil {
		w.Close()
		return WrapExitError(ExitUserError, "start run", err)
	}

	for _, n := range dag.Nodes {
		run.AddWorker(scheduler.NewWorkerState(core.WorkerIDFromBytes(n.ID.Bytes()), n.Resources, n.RequiredCapabilities))
	}

	driveErr := run.Drive(cmd.Context())

	status := "completed"
	if driveErr != nil {
		status = "failed"
	}
	completion := run.Clock.Current()
	w.SetMetadata(&bundle.Metadata{
		RunID:                 runID.UUID.String(),
		StartLogicalTime:       0,
		CompletionLogicalTime:  &completion,
		Status:                 status,
		NodeCount:              len(dag.Nodes),
		EventCount:             w.Log().Len(),
		Platform:               runtime.GOOS + "/" + runtime.GOARCH,
		EngineVersion:          "0.1.0",
	})
	if finalizeErr := w.Finalize(); finalizeErr != nil {
		w.Close()
		return WrapExitError(ExitUserError, "finalize bundle", finalizeErr)
	}
	if closeErr := w.Close(); closeErr != nil {
		return WrapExitError(ExitUserError, "close bundle", closeErr)
	}

	if driveErr != nil {
		return WrapExitError(ExitVerificationFailed, "run failed", driveErr)
	}

	return out.Success(map[string]any{
		"run_id":     runID.UUID.String(),
		"state_hash": run.StateHash().String(),
		"bundle_dir": opts.BundleDir,
	})
}
