package replay

import (
	"context"

	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/snapshot"
	"github.com/cathedral-fabric/fabric/internal/telemetry"
	"github.com/cathedral-fabric/fabric/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes how Replay walks a log.
type Config struct {
	// StopOnError halts replay at the first event that records a
	// failure, rather than continuing to the end of the log.
	StopOnError bool
	// ValidateHashChain requires every event's prior/post state hashes
	// to chain correctly and its re-derived state hash to match
	// post_state_hash. Set false only to inspect a log already known
	// to be damaged.
	ValidateHashChain bool
	// MaxEvents caps how many events are processed, 0 for unbounded.
	MaxEvents int
	// Start, if non-nil, is the snapshot replay resumes from: the
	// chain validator expects the next event's prior_state_hash to
	// equal Start's content hash, and DAGState seeds the initial node
	// statuses.
	Start *snapshot.Snapshot
	// StartDAGState is the decoded bytes of Start.DAGState, loaded by
	// the caller from the content store. Ignored if Start is nil.
	StartDAGState []byte
}

// DefaultConfig validates the chain and stops at the first error, the
// conservative default for verifying an untrusted bundle from the
// beginning of its log.
func DefaultConfig() Config {
	return Config{StopOnError: true, ValidateHashChain: true}
}

// Divergence records a single event whose re-derived state hash did not
// match its recorded post_state_hash.
type Divergence struct {
	EventID  core.EventID
	NodeID   core.NodeID
	Time     core.LogicalTime
	Expected core.Hash
	Got      core.Hash
}

// Result is what a completed replay produced.
type Result struct {
	FinalState      *State
	EventsProcessed int
	Divergences     []Divergence
}

// Replay walks events in logical-time order, applying each to a freshly
// reconstructed state (seeded from cfg.Start's DAG state, if set) and,
// when cfg.ValidateHashChain is set, checking the hash chain link and
// re-deriving the state hash reached after each event against its
// recorded post_state_hash. Non-deterministic tool calls are never
// re-executed: a ToolCompleted event's stored tool_response_hash is
// replayed as the oracle for what the tool returned, per section
// 4.9 — Replay itself never invokes a sandboxed tool.
//
// Replay returns the partial Result alongside an error so a caller can
// still inspect FinalState and Divergences after a CodeStateHashMismatch
// or chain-validation failure.
func Replay(ctx context.Context, events []*eventlog.Event, cfg Config) (*Result, error) {
	_, span := telemetry.Tracer().Start(ctx, "replay.Replay", trace.WithAttributes(
		attribute.Int("fabric.event_count", len(events)),
	))
	defer span.End()

	result, err := replay(events, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if result != nil {
		span.SetAttributes(attribute.Int("fabric.events_processed", result.EventsProcessed))
	}
	return result, err
}

func replay(events []*eventlog.Event, cfg Config) (*Result, error) {
	if len(events) == 0 {
		return nil, core.NewError(core.CodeBundleValidationFailed, "replay: event log is empty")
	}

	state := NewState()
	if cfg.Start != nil && len(cfg.StartDAGState) > 0 {
		statuses, err := snapshot.DecodeDAGState(cfg.StartDAGState)
		if err != nil {
			return nil, err
		}
		state.Seed(statuses)
	}

	var validator *eventlog.ChainValidator
	if cfg.ValidateHashChain {
		if cfg.Start != nil {
			validator = eventlog.NewChainValidatorFrom(cfg.Start.Metadata.ContentHash, cfg.Start.Metadata.LogicalTime)
		} else {
			validator = eventlog.NewChainValidator()
		}
	}

	result := &Result{FinalState: state}
	for _, e := range events {
		if cfg.MaxEvents > 0 && result.EventsProcessed >= cfg.MaxEvents {
			break
		}

		if cfg.ValidateHashChain {
			if err := validator.Validate(e); err != nil {
				return result, err
			}
		}

		state.Apply(e)
		result.EventsProcessed++

		if cfg.ValidateHashChain && e.PostStateHash != nil {
			if derived := state.Hash(); derived != *e.PostStateHash {
				result.Divergences = append(result.Divergences, Divergence{
					EventID: e.EventID, NodeID: e.NodeID, Time: e.LogicalTime,
					Expected: *e.PostStateHash, Got: derived,
				})
			}
		}

		if cfg.StopOnError && state.HasErrors() {
			break
		}
	}

	if len(result.Divergences) > 0 {
		return result, core.NewError(core.CodeStateHashMismatch, "replay: re-derived state hash does not match recorded post_state_hash")
	}
	return result, nil
}
