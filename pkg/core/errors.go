package core

import "fmt"

// Code is a member of the closed error taxonomy of section 7. Codes
// are grouped by the subsystem that raises them; recovery behavior is
// documented alongside each constant.
type Code string

const (
	// Encoding errors: fail fast, never retry.
	CodeInvalidEncoding  Code = "InvalidEncoding"
	CodeEncodingOverflow Code = "EncodingOverflow"

	// Chain/log errors: log entry rejected; recover from snapshot if any.
	CodeBrokenLink     Code = "BrokenLink"
	CodeReorderedEvent Code = "ReorderedEvent"
	CodeMissingHash    Code = "MissingHash"
	CodeInvalidHash    Code = "InvalidHash"

	// Storage errors.
	CodeNotFound          Code = "NotFound"
	CodeStillReferenced   Code = "StillReferenced"
	CodeBlobCorrupted     Code = "BlobCorrupted"
	CodeSnapshotCorrupted Code = "SnapshotCorrupted"
	CodeStorageError      Code = "StorageError"

	// Policy errors.
	CodePolicyParseError Code = "PolicyParseError"
	CodePolicyConflict   Code = "PolicyConflict"
	CodePolicyDenied     Code = "PolicyDenied"

	// Capability errors.
	CodeCapabilityDenied Code = "CapabilityDenied"

	// Sandbox errors.
	CodeOutOfFuel         Code = "OutOfFuel"
	CodeOutOfMemory       Code = "OutOfMemory"
	CodeTimeout           Code = "Timeout"
	CodeInvalidInput      Code = "InvalidInput"
	CodeHostFunctionError Code = "HostFunctionError"

	// Cluster errors.
	CodeNotLeader       Code = "NotLeader"
	CodeNoReadyTasks    Code = "NoReadyTasks"
	CodeQuorumLost      Code = "QuorumLost"
	CodeMembershipError Code = "MembershipError"

	// Replay errors.
	CodeStateHashMismatch     Code = "StateHashMismatch"
	CodeReplayDiverged        Code = "ReplayDiverged"
	CodeBundleCorrupted       Code = "BundleCorrupted"
	CodeBundleValidationFailed Code = "BundleValidationFailed"
)

// codeOrder assigns each Code a stable numeric discriminant for the wire
// encoding ("error: opt {code:u32 BE, message:...}" in section 6).
// Order is append-only: a code's position must never change once shipped.
var codeOrder = []Code{
	CodeInvalidEncoding, CodeEncodingOverflow,
	CodeBrokenLink, CodeReorderedEvent, CodeMissingHash, CodeInvalidHash,
	CodeNotFound, CodeStillReferenced, CodeBlobCorrupted, CodeSnapshotCorrupted, CodeStorageError,
	CodePolicyParseError, CodePolicyConflict, CodePolicyDenied,
	CodeCapabilityDenied,
	CodeOutOfFuel, CodeOutOfMemory, CodeTimeout, CodeInvalidInput, CodeHostFunctionError,
	CodeNotLeader, CodeNoReadyTasks, CodeQuorumLost, CodeMembershipError,
	CodeStateHashMismatch, CodeReplayDiverged, CodeBundleCorrupted, CodeBundleValidationFailed,
}

var codeToNumeric = func() map[Code]uint32 {
	m := make(map[Code]uint32, len(codeOrder))
	for i, c := range codeOrder {
		m[c] = uint32(i)
	}
	return m
}()

var numericToCode = func() map[uint32]Code {
	m := make(map[uint32]Code, len(codeOrder))
	for i, c := range codeOrder {
		m[uint32(i)] = c
	}
	return m
}()

// Numeric returns the stable wire discriminant for c.
func (c Code) Numeric() uint32 { return codeToNumeric[c] }

// CodeFromNumeric reverses Numeric, used when decoding an Event's error
// field off disk.
func CodeFromNumeric(n uint32) (Code, bool) {
	c, ok := numericToCode[n]
	return c, ok
}

// Error is the user-visible failure type threaded through every
// subsystem. It always carries a stable Code so callers can branch with
// errors.Is/errors.As, plus enough context to locate the failure in the
// event log or policy trail.
type Error struct {
	Code       Code
	Message    string
	EventID    *EventID
	DecisionID *DecisionID
}

// NewError builds an Error with no event/decision context attached.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithEvent attaches the originating event id to the error.
func (e *Error) WithEvent(id EventID) *Error {
	e.EventID = &id
	return e
}

// WithDecision attaches the originating policy decision id to the error.
func (e *Error) WithDecision(id DecisionID) *Error {
	e.DecisionID = &id
	return e
}

func (e *Error) Error() string {
	if e.EventID != nil {
		return fmt.Sprintf("%s: %s (event %s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is supports errors.Is by comparing codes.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Retryable reports whether the error's kind is in the fixed
// retry-eligible allowlist described in section 7.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeOutOfFuel, CodeOutOfMemory, CodeTimeout, CodeHostFunctionError,
		CodeStorageError, CodeNotLeader, CodeNoReadyTasks:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error aborts the whole run rather than just
// the current task.
func (e *Error) Fatal() bool {
	switch e.Code {
	case CodeBrokenLink, CodeStateHashMismatch, CodeQuorumLost:
		return true
	default:
		return false
	}
}
