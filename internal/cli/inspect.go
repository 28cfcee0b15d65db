package cli

import (
	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// InspectOptions holds the inspect command's flags.
type InspectOptions struct {
	*RootOptions
	BundleDir string
	Events    bool
	Blob      string
	Snapshot  bool
}

// NewInspectCommand prints a bundle's events, a named blob's address and
// size, or its attached snapshot's metadata, depending on which of
// --events/--blob/--snapshot is given.
func NewInspectCommand(root *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "inspect a bundle's events, a blob, or its snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectBundle(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BundleDir, "bundle", "", "bundle directory to inspect (required)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "list every event in the bundle's log")
	cmd.Flags().StringVar(&opts.Blob, "blob", "", "content address of a blob whose size to print")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print the bundle's attached snapshot metadata")
	_ = cmd.MarkFlagRequired("bundle")

	return cmd
}

func inspectBundle(opts *InspectOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	b, err := bundle.Open(opts.BundleDir)
	if err != nil {
		return WrapExitError(ExitUserError, "open bundle", err)
	}
	defer b.Close()

	switch {
	case opts.Events:
		events, err := b.Log.All()
		if err != nil {
			return WrapExitError(ExitVerificationFailed, "read event log", err)
		}
		summaries := make([]map[string]any, 0, len(events))
		for _, e := range events {
			summaries = append(summaries, map[string]any{
				"event_id":     e.EventID.UUID.String(),
				"node_id":      e.NodeID.UUID.String(),
				"logical_time": e.LogicalTime,
				"kind":         e.Kind.String(),
			})
		}
		return out.Success(summaries)

	case opts.Blob != "":
		addr, err := core.ParseContentAddress(opts.Blob)
		if err != nil {
			return WrapExitError(ExitUserError, "parse blob address", err)
		}
		data, err := b.Blobs.Get(cmd.Context(), addr)
		if err != nil {
			return WrapExitError(ExitUserError, "read blob", err)
		}
		return out.Success(map[string]any{"hash": opts.Blob, "size": len(data)})

	case opts.Snapshot:
		if b.Snapshot == nil {
			return NewExitError(ExitUserError, "bundle carries no snapshot")
		}
		return out.Success(map[string]any{
			"snapshot_id":  b.Snapshot.Metadata.SnapshotID.UUID.String(),
			"run_id":       b.Snapshot.Metadata.RunID.UUID.String(),
			"logical_time": b.Snapshot.Metadata.LogicalTime,
			"content_hash": b.Snapshot.Metadata.ContentHash.String(),
		})

	default:
		return out.Success(map[string]any{
			"bundle_dir":  opts.BundleDir,
			"run_id":      b.Metadata.RunID,
			"status":      b.Metadata.Status,
			"node_count":  b.Metadata.NodeCount,
			"event_count": b.Log.Len(),
			"has_snapshot": b.Snapshot != nil,
		})
	}
}
