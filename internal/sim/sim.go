// Package sim implements the deterministic simulation harness of section 6's `sim [--seed N] [--count M]` CLI surface: run the same
// workflow repeatedly under a seeded, reproducible failure model and
// verify every run ends with the same event count and the same final
// state hash (P5), the
// property a conforming scheduler/engine must hold before it can be
// certified (internal/certify).
//
// Grounded on original_source/crates/cathedral_sim's
// seed.rs/failure.rs/record.rs shapes, re-expressed without the Rust
// crate's tokio/rand_chacha stack: Go's math/rand with an explicit seed
// is already a pure, platform-independent PRNG (no hardware intrinsics,
// no wall-clock mixing), so it serves the same "seeded, reproducible
// randomness" role rand_chacha serves in the reference implementation
// without pulling in a third-party RNG crate equivalent that nothing in
// the pack's go.mods ships.
package sim

import (
	"math/rand"

	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/scheduler"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// FailureKind names one fault a FailureModel may inject, mirroring
// cathedral_sim::failure::FailureKind collapsed to the subset this
// kernel's WorkerStatus can express.
type FailureKind uint32

const (
	FailureCrash FailureKind = iota
	FailurePartition
	FailureOmission
)

// FailureModel is a seeded, deterministic source of worker faults: given
// the same Seed, the same sequence of ShouldFail/NextKind calls always yields the same
// decisions, so a simulation run under a FailureModel is exactly as
// reproducible as a fault-free one.
type FailureModel struct {
	Seed        uint64
	Probability float64
	Kinds       []FailureKind
	MaxFailures int

	rng     *rand.Rand
	injected int
}

// NewFailureModel returns a model seeded deterministically from Seed.
func NewFailureModel(seed uint64, probability float64, kinds []FailureKind) *FailureModel {
	if len(kinds) == 0 {
		kinds = []FailureKind{FailureCrash, FailurePartition, FailureOmission}
	}
	return &FailureModel{
		Seed:        seed,
		Probability: probability,
		Kinds:       kinds,
		MaxFailures: -1,
		rng:         rand.New(rand.NewSource(int64(seed))),
	}
}

// ShouldFail draws the model's next deterministic coin flip.
func (m *FailureModel) ShouldFail() bool {
	if m.MaxFailures >= 0 && m.injected >= m.MaxFailures {
		return false
	}
	fail := m.rng.Float64() < m.Probability
	if fail {
		m.injected++
	}
	return fail
}

// NextKind draws the model's next deterministic failure kind.
func (m *FailureModel) NextKind() FailureKind {
	return m.Kinds[m.rng.Intn(len(m.Kinds))]
}

// Apply maps kind to the WorkerStatus a scheduler should observe, so a
// caller driving a simulated run can mutate its scheduler's worker pool
// in a reproducible way.
func (k FailureKind) Apply() scheduler.WorkerStatus {
	switch k {
	case FailureCrash:
		return scheduler.WorkerUnreachable
	case FailurePartition:
		return scheduler.WorkerUnreachable
	case FailureOmission:
		return scheduler.WorkerDraining
	default:
		return scheduler.WorkerUnreachable
	}
}

// RunFunc produces one run's event log for a given seed, fully
// encapsulating whatever engine.Run/dispatch loop the caller wants to
// exercise. The harness treats it as an opaque deterministic function of
// seed.
type RunFunc func(seed uint64) (*eventlog.Log, error)

// Record is the harness's summary of one simulated run: enough to
// compare two runs for P5/P7 byte-identity without holding the full log
// in memory.
type Record struct {
	Seed       uint64
	EventCount int
	FinalHash  core.Hash
}

// Summarize extracts a Record from log, using its chain tip as the
// run's final state hash.
func Summarize(seed uint64, log *eventlog.Log) Record {
	r := Record{Seed: seed, EventCount: log.Len()}
	if tip := log.Tip(); tip != nil {
		r.FinalHash = *tip
	}
	return r
}

// Harness repeatedly invokes a RunFunc and checks that every invocation
// under the same seed produces identical Records — the sim harness's
// core determinism check (P5, "two independent scheduler instances fed
// the same completion sequence produce identical decision sequences").
type Harness struct {
	Run RunFunc
}

// NewHarness returns a Harness driving run.
func NewHarness(run RunFunc) *Harness { return &Harness{Run: run} }

// Comparison reports whether repeated runs under the same seed agreed,
// and the first seed (by iteration order) where they didn't.
type Comparison struct {
	Identical   bool
	Records     []Record
	DivergentAt int // index into Records, -1 if Identical
}

// RepeatSeed runs the harness's RunFunc `count` times with the exact
// same seed and compares the resulting Records, surfacing the first
// divergence. Two runs under different seeds are expected to differ;
// this only asserts determinism of the *same* seed run repeatedly.
func (h *Harness) RepeatSeed(seed uint64, count int) (Comparison, error) {
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		log, err := h.Run(seed)
		if err != nil {
			return Comparison{}, err
		}
		records = append(records, Summarize(seed, log))
	}
	for i := 1; i < len(records); i++ {
		if records[i] != records[0] {
			return Comparison{Identical: false, Records: records, DivergentAt: i}, nil
		}
	}
	return Comparison{Identical: true, Records: records, DivergentAt: -1}, nil
}

// Sweep runs the harness once per seed in seeds, returning one Record
// per seed — the basis for certify's multi-seed determinism claim and
// for a `sim --count M` CLI invocation that wants M distinct
// reproducible scenarios rather than M repeats of one scenario.
func (h *Harness) Sweep(seeds []uint64) ([]Record, error) {
	records := make([]Record, 0, len(seeds))
	for _, seed := range seeds {
		log, err := h.Run(seed)
		if err != nil {
			return nil, err
		}
		records = append(records, Summarize(seed, log))
	}
	return records, nil
}

// SeedsFrom derives count deterministic seeds from a base seed, used
// when a CLI caller asks for `--seed N --count M` and wants M distinct
// but reproducible scenarios rather than M repeats of the same one.
func SeedsFrom(base uint64, count int) []uint64 {
	out := make([]uint64, count)
	r := rand.New(rand.NewSource(int64(base)))
	for i := range out {
		out[i] = r.Uint64()
	}
	return out
}
