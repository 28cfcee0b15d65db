// Package eventlog implements the canonical event record and the
// append-only, hash-chained log described in section 4.3 and the
// bit-exact record layout of section 6.
package eventlog

import (
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// CapabilityCheckRecord is the optional capability_check field of an
// Event: the outcome of a single capability gate decision plus the
// policy decision that produced it.
type CapabilityCheckRecord struct {
	Allowed    bool
	DecisionID core.DecisionID
}

// ErrorRecord is the optional error field of an Event.
type ErrorRecord struct {
	Code    core.Code
	Message string
}

// Event is the canonical, hash-chained unit of the event log. Field order
// here matches the wire layout of section 6 exactly; Encode/Decode
// must not reorder fields without bumping the log's on-disk version.
type Event struct {
	EventID       core.EventID
	RunID         core.RunID
	NodeID        core.NodeID
	ParentEventID *core.EventID
	LogicalTime   core.LogicalTime
	Kind          core.EventKind
	Payload       []byte
	PayloadHash   core.Hash
	PriorStateHash *core.Hash
	PostStateHash  *core.Hash
	CapabilityCheck *CapabilityCheckRecord
	ToolRequestHash  *core.Hash
	ToolResponseHash *core.Hash
	Err *ErrorRecord
}

// NewEvent builds an Event with PayloadHash derived from payload, leaving
// every optional field unset. Callers attach state hashes, parent links,
// and outcome fields before appending it to a Log.
func NewEvent(runID core.RunID, nodeID core.NodeID, logicalTime core.LogicalTime, kind core.EventKind, payload []byte) *Event {
	return &Event{
		EventID:     core.NewEventID(),
		RunID:       runID,
		NodeID:      nodeID,
		LogicalTime: logicalTime,
		Kind:        kind,
		Payload:     payload,
		PayloadHash: core.ComputeHash(payload),
	}
}

// WithParent sets the event's causal parent, used by the diff engine to
// walk ancestors back to the point of divergence.
func (e *Event) WithParent(parent core.EventID) *Event {
	e.ParentEventID = &parent
	return e
}

// WithStateHashes attaches the prior/post state hashes that link this
// event into the log's hash chain.
func (e *Event) WithStateHashes(prior, post core.Hash) *Event {
	e.PriorStateHash = &prior
	e.PostStateHash = &post
	return e
}

// WithCapabilityCheck attaches the capability_check outcome.
func (e *Event) WithCapabilityCheck(allowed bool, decisionID core.DecisionID) *Event {
	e.CapabilityCheck = &CapabilityCheckRecord{Allowed: allowed, DecisionID: decisionID}
	return e
}

// WithToolHashes attaches the tool_request_hash/tool_response_hash pair
// recorded on ToolInvoked/ToolCompleted events.
func (e *Event) WithToolHashes(request, response core.Hash) *Event {
	e.ToolRequestHash = &request
	e.ToolResponseHash = &response
	return e
}

// WithError attaches the closed-taxonomy error outcome recorded on a
// failure event.
func (e *Event) WithError(code core.Code, message string) *Event {
	e.Err = &ErrorRecord{Code: code, Message: message}
	return e
}

// Encode renders e in the canonical binary form of section 6.
func (e *Event) Encode() []byte {
	w := codec.NewWriter()
	w.ID16(e.EventID.Bytes())
	w.ID16(e.RunID.Bytes())
	w.ID16(e.NodeID.Bytes())
	if e.ParentEventID != nil {
		b := e.ParentEventID.Bytes()
		w.OptionalID(&b)
	} else {
		w.OptionalID(nil)
	}
	w.U64(uint64(e.LogicalTime))
	w.U32(uint32(e.Kind))
	w.Bytes(e.Payload)
	w.Hash(e.PayloadHash)
	w.OptionalHash(e.PriorStateHash)
	w.OptionalHash(e.PostStateHash)
	encodeCapabilityCheck(w, e.CapabilityCheck)
	w.OptionalHash(e.ToolRequestHash)
	w.OptionalHash(e.ToolResponseHash)
	encodeErrorRecord(w, e.Err)
	return w.Finish()
}

func encodeCapabilityCheck(w *codec.Writer, c *CapabilityCheckRecord) {
	if c == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.Bool(c.Allowed)
	w.ID16(c.DecisionID.Bytes())
}

func encodeErrorRecord(w *codec.Writer, e *ErrorRecord) {
	if e == nil {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.U32(e.Code.Numeric())
	w.String(e.Message)
}

// DecodeEvent parses the canonical binary form produced by Encode.
func DecodeEvent(b []byte) (*Event, error) {
	r := codec.NewReader(b)
	e := &Event{}

	eventID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	e.EventID = core.EventIDFromBytes(eventID)

	runID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	e.RunID = core.RunIDFromBytes(runID)

	nodeID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	e.NodeID = core.NodeIDFromBytes(nodeID)

	parent, err := r.OptionalID()
	if err != nil {
		return nil, err
	}
	if parent != nil {
		id := core.EventIDFromBytes(*parent)
		e.ParentEventID = &id
	}

	logicalTime, err := r.U64()
	if err != nil {
		return nil, err
	}
	e.LogicalTime = core.LogicalTime(logicalTime)

	kind, err := r.U32()
	if err != nil {
		return nil, err
	}
	e.Kind = core.EventKind(kind)

	payload, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	e.Payload = payload

	payloadHash, err := r.Hash()
	if err != nil {
		return nil, err
	}
	e.PayloadHash = payloadHash

	e.PriorStateHash, err = r.OptionalHash()
	if err != nil {
		return nil, err
	}
	e.PostStateHash, err = r.OptionalHash()
	if err != nil {
		return nil, err
	}

	e.CapabilityCheck, err = decodeCapabilityCheck(r)
	if err != nil {
		return nil, err
	}

	e.ToolRequestHash, err = r.OptionalHash()
	if err != nil {
		return nil, err
	}
	e.ToolResponseHash, err = r.OptionalHash()
	if err != nil {
		return nil, err
	}

	e.Err, err = decodeErrorRecord(r)
	if err != nil {
		return nil, err
	}

	return e, nil
}

func decodeCapabilityCheck(r *codec.Reader) (*CapabilityCheckRecord, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	allowed, err := r.Bool()
	if err != nil {
		return nil, err
	}
	decisionID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	return &CapabilityCheckRecord{Allowed: allowed, DecisionID: core.DecisionIDFromBytes(decisionID)}, nil
}

func decodeErrorRecord(r *codec.Reader) (*ErrorRecord, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	numeric, err := r.U32()
	if err != nil {
		return nil, err
	}
	code, ok := core.CodeFromNumeric(numeric)
	if !ok {
		return nil, core.NewError(core.CodeInvalidEncoding, "unknown error code discriminant")
	}
	message, err := r.String()
	if err != nil {
		return nil, err
	}
	return &ErrorRecord{Code: code, Message: message}, nil
}
