package eventlog

import "github.com/cathedral-fabric/fabric/pkg/core"

// ChainValidator is a hash-chain validator that tracks only the expected
// prior_state_hash and the last logical_time for the next event, mirroring
// cathedral_log::chain::ChainValidator so the same walk can run forward
// over a live log or over a loaded bundle during replay.
type ChainValidator struct {
	expectedPrior *core.Hash
	lastLogical   *core.LogicalTime
}

// NewChainValidator returns a validator for a log's first event.
func NewChainValidator() *ChainValidator { return &ChainValidator{} }

// NewChainValidatorFrom returns a validator that expects the given
// prior_state_hash and logical_time next, used when validating a
// contiguous window of a log starting mid-stream (e.g. after a snapshot).
func NewChainValidatorFrom(priorStateHash core.Hash, lastLogical core.LogicalTime) *ChainValidator {
	return &ChainValidator{expectedPrior: &priorStateHash, lastLogical: &lastLogical}
}

// Validate checks e against the chain's expected state and advances the
// expected prior hash to e.PostStateHash. It enforces, in order: the
// event carries a post_state_hash, its payload_hash matches its payload,
// its prior_state_hash is present and matches the running expectation
// (not checked for the first event a fresh validator sees), and its
// logical_time is strictly greater than the previous event's.
func (v *ChainValidator) Validate(e *Event) error {
	if e.PostStateHash == nil {
		return core.NewError(core.CodeMissingHash, "event missing post_state_hash").WithEvent(e.EventID)
	}
	if !e.PayloadHash.Verify(e.Payload) {
		return core.NewError(core.CodeInvalidHash, "payload_hash does not match payload").WithEvent(e.EventID)
	}

	if v.expectedPrior != nil {
		if e.PriorStateHash == nil {
			return core.NewError(core.CodeMissingHash, "event missing prior_state_hash").WithEvent(e.EventID)
		}
		if *e.PriorStateHash != *v.expectedPrior {
			return core.NewError(core.CodeBrokenLink, "prior_state_hash does not match previous post_state_hash").WithEvent(e.EventID)
		}
	}

	if v.lastLogical != nil && e.LogicalTime <= *v.lastLogical {
		return core.NewError(core.CodeReorderedEvent, "logical_time did not strictly increase").WithEvent(e.EventID)
	}

	post := *e.PostStateHash
	v.expectedPrior = &post
	lt := e.LogicalTime
	v.lastLogical = &lt
	return nil
}

// Expected returns the hash the next event's prior_state_hash must equal,
// or nil if no event has been validated yet.
func (v *ChainValidator) Expected() *core.Hash { return v.expectedPrior }

// ValidateSequence runs Validate over events in order, stopping at the
// first failure.
func ValidateSequence(events []*Event) error {
	v := NewChainValidator()
	for _, e := range events {
		if err := v.Validate(e); err != nil {
			return err
		}
	}
	return nil
}
