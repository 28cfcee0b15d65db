package eventlog

import (
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func chainedEvents(t *testing.T, n int) []*Event {
	t.Helper()
	runID := core.NewRunID()
	nodeID := core.NewNodeID()
	events := make([]*Event, 0, n)
	prior := core.EmptyHash
	for i := 0; i < n; i++ {
		e := NewEvent(runID, nodeID, core.LogicalTime(i+1), core.EventHeartbeat, []byte{byte(i)})
		post := core.ComputeHash([]byte{byte(i), byte(i)})
		e.WithStateHashes(prior, post)
		events = append(events, e)
		prior = post
	}
	return events
}

func TestValidateSequenceAcceptsWellFormedChain(t *testing.T) {
	events := chainedEvents(t, 5)
	if err := ValidateSequence(events); err != nil {
		t.Fatalf("ValidateSequence() error = %v", err)
	}
}

func TestValidateDetectsBrokenLink(t *testing.T) {
	events := chainedEvents(t, 3)
	wrongPrior := core.ComputeHash([]byte("not the real prior"))
	events[1].PriorStateHash = &wrongPrior

	err := ValidateSequence(events)
	if err == nil {
		t.Fatal("ValidateSequence() should reject a broken link")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || fabricErr.Code != core.CodeBrokenLink {
		t.Fatalf("error = %v, want CodeBrokenLink", err)
	}
}

func TestValidateDetectsReorderedLogicalTime(t *testing.T) {
	events := chainedEvents(t, 3)
	events[2].LogicalTime = events[1].LogicalTime

	err := ValidateSequence(events)
	if err == nil {
		t.Fatal("ValidateSequence() should reject non-increasing logical time")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || fabricErr.Code != core.CodeReorderedEvent {
		t.Fatalf("error = %v, want CodeReorderedEvent", err)
	}
}

func TestValidateDetectsMissingPostStateHash(t *testing.T) {
	events := chainedEvents(t, 1)
	events[0].PostStateHash = nil

	err := ValidateSequence(events)
	if err == nil {
		t.Fatal("ValidateSequence() should reject a missing post_state_hash")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || fabricErr.Code != core.CodeMissingHash {
		t.Fatalf("error = %v, want CodeMissingHash", err)
	}
}

func TestValidateDetectsTamperedPayload(t *testing.T) {
	events := chainedEvents(t, 1)
	events[0].Payload = []byte("tampered")

	err := ValidateSequence(events)
	if err == nil {
		t.Fatal("ValidateSequence() should reject a payload/hash mismatch")
	}
	fabricErr, ok := err.(*core.Error)
	if !ok || fabricErr.Code != core.CodeInvalidHash {
		t.Fatalf("error = %v, want CodeInvalidHash", err)
	}
}

func TestChainValidatorFromResumesMidStream(t *testing.T) {
	events := chainedEvents(t, 4)
	tip := *events[1].PostStateHash

	v := NewChainValidatorFrom(tip, events[1].LogicalTime)
	for _, e := range events[2:] {
		if err := v.Validate(e); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	}
}
