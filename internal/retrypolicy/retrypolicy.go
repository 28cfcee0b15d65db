// Package retrypolicy implements attempt bookkeeping and backoff
// scheduling for a propagation policy: fixed/exponential/linear
// backoff, bounded attempts, and an explicit allowlist of
// retry-eligible error codes. Each retried attempt is logged as a new
// event.
//
// Every delay here is expressed in logical-time ticks, never wall
// clock: replay must re-derive the same backoff schedule
// deterministically, so DelayFor is a pure function of (policy, attempt)
// with no dependency on real time.
package retrypolicy

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Kind selects the backoff curve, mirroring
// internal/workflow/engine.go's "Simple exponential backoff: 1s, 2s,
// 4s, ..." comment generalized to three named curves instead of one
// hardcoded one.
type Kind uint32

const (
	Fixed Kind = iota
	Exponential
	Linear
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "Fixed"
	case Exponential:
		return "Exponential"
	case Linear:
		return "Linear"
	default:
		return "Unknown"
	}
}

// Policy bounds the attempts a failed task may make and the delay
// between them, plus the closed allowlist of error codes eligible for a
// retry at all (section 7: most codes, e.g. CapabilityDenied, are
// explicitly non-retryable within the same task).
type Policy struct {
	Kind         Kind
	MaxAttempts  int
	BaseDelay    core.LogicalTime // ticks
	MaxDelay     core.LogicalTime // ticks; 0 means unbounded
	RetryableSet map[core.Code]bool
}

// DefaultRetryableCodes is the allowlist section 7 names as
// retry-eligible: sandbox resource exhaustion, timeouts, host errors,
// storage errors, and the two cluster-transient codes.
func DefaultRetryableCodes() map[core.Code]bool {
	return map[core.Code]bool{
		core.CodeOutOfFuel:         true,
		core.CodeOutOfMemory:       true,
		core.CodeTimeout:           true,
		core.CodeHostFunctionError: true,
		core.CodeStorageError:      true,
		core.CodeNotLeader:        true,
		core.CodeNoReadyTasks:      true,
	}
}

// NewExponential returns a policy using exponential backoff bounded by
// maxAttempts, computing its curve from backoff.ExponentialBackOff with
// randomization disabled — the library supplies the doubling math, this
// package supplies the deterministic logical-time substitute for its
// wall-clock NextBackOff().
func NewExponential(maxAttempts int, base core.LogicalTime) Policy {
	return Policy{Kind: Exponential, MaxAttempts: maxAttempts, BaseDelay: base, RetryableSet: DefaultRetryableCodes()}
}

// NewFixed returns a policy that waits the same delay before every
// retry.
func NewFixed(maxAttempts int, delay core.LogicalTime) Policy {
	return Policy{Kind: Fixed, MaxAttempts: maxAttempts, BaseDelay: delay, RetryableSet: DefaultRetryableCodes()}
}

// NewLinear returns a policy whose delay grows by BaseDelay per attempt.
func NewLinear(maxAttempts int, base core.LogicalTime) Policy {
	return Policy{Kind: Linear, MaxAttempts: maxAttempts, BaseDelay: base, RetryableSet: DefaultRetryableCodes()}
}

// Eligible reports whether code is in the policy's retry allowlist.
func (p Policy) Eligible(code core.Code) bool {
	if p.RetryableSet == nil {
		return DefaultRetryableCodes()[code]
	}
	return p.RetryableSet[code]
}

// Exhausted reports whether attempt (1-based, the attempt that just
// failed) has used up the policy's budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// DelayFor returns the number of logical ticks to wait before making
// attempt+1, given that `attempt` (1-based) has just failed.
func (p Policy) DelayFor(attempt int) core.LogicalTime {
	var delay core.LogicalTime
	switch p.Kind {
	case Fixed:
		delay = p.BaseDelay
	case Linear:
		delay = p.BaseDelay * core.LogicalTime(attempt)
	case Exponential:
		delay = exponentialTicks(p.BaseDelay, attempt)
	default:
		delay = p.BaseDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// exponentialTicks derives the deterministic exponential delay for the
// given attempt by driving backoff.ExponentialBackOff's pure doubling
// curve (randomization disabled) attempt times, then truncating its
// wall-clock Duration output to whole logical ticks. base ticks map 1:1
// to the curve's InitialInterval in seconds, so base=1 produces the
// classic 1,2,4,8,... doubling sequence.
func exponentialTicks(base core.LogicalTime, attempt int) core.LogicalTime {
	if base == 0 {
		base = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(base) * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(1<<63 - 1)
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	ticks := core.LogicalTime(d / time.Second)
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// Attempts tracks per-task retry bookkeeping: how many attempts a task
// has made and the logical time its next attempt becomes eligible.
type Attempts struct {
	Count       int
	NextEligible core.LogicalTime
}

// RecordFailure advances bookkeeping after a failed attempt at
// failedAt, returning the Attempts a caller should schedule the next
// try at, and whether the policy permits one.
func (p Policy) RecordFailure(a Attempts, code core.Code, failedAt core.LogicalTime) (Attempts, bool) {
	a.Count++
	if !p.Eligible(code) || p.Exhausted(a.Count) {
		return a, false
	}
	a.NextEligible = failedAt + p.DelayFor(a.Count)
	return a, true
}
