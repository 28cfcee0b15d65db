package cli

import (
	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/replay"
)

// ReplayOptions holds the replay command's flags.
type ReplayOptions struct {
	*RootOptions
	BundleDir    string
	FromSnapshot string
}

// NewReplayCommand reconstructs a run's final state by walking a
// bundle's event log, optionally resuming from its attached snapshot.
func NewReplayCommand(root *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "replay",
		Short:         "reconstruct a run's state from its bundle's event log",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayBundle(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BundleDir, "bundle", "", "bundle directory to replay (required)")
	cmd.Flags().StringVar(&opts.FromSnapshot, "from-snapshot", "", "resume from the bundle's attached snapshot id")
	_ = cmd.MarkFlagRequired("bundle")

	return cmd
}

func replayBundle(opts *ReplayOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	b, err := bundle.Open(opts.BundleDir)
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "open bundle", err)
	}
	defer b.Close()

	events, err := b.Log.All()
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "read event log", err)
	}

	cfg := replay.DefaultConfig()
	if opts.FromSnapshot != "" {
		if b.Snapshot == nil {
			return NewExitError(ExitUserError, "bundle carries no snapshot")
		}
		if b.Snapshot.Metadata.SnapshotID.UUID.String() != opts.FromSnapshot {
			return NewExitError(ExitUserError, "bundle's snapshot id does not match --from-snapshot")
		}
		dagState, err := b.Blobs.Get(cmd.Context(), b.Snapshot.DAGState)
		if err != nil {
			return WrapExitError(ExitVerificationFailed, "load snapshot dag state", err)
		}
		cfg.Start = b.Snapshot
		cfg.StartDAGState = dagState
	}

	result, replayErr := replay.Replay(cmd.Context(), events, cfg)
	if replayErr != nil {
		out.Error("ReplayFailed", replayErr.Error(), nil)
		return WrapExitError(ExitVerificationFailed, "replay", replayErr)
	}
	if len(result.Divergences) > 0 {
		out.Error("ReplayDiverged", "state hash mismatch during replay", result.Divergences)
		return NewExitError(ExitVerificationFailed, "replay diverged")
	}

	return out.Success(map[string]any{
		"events_processed": result.EventsProcessed,
		"total_nodes":      result.FinalState.TotalNodes(),
		"completed_count":  result.FinalState.CompletedCount(),
		"has_errors":       result.FinalState.HasErrors(),
		"state_hash":       result.FinalState.Hash().String(),
	})
}
