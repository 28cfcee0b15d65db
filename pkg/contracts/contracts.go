// Package contracts defines the cross-package service interfaces the
// CLI surface (internal/cli, cmd/fabric) depends on, so it can be wired
// against whatever concrete internal/* implementations a given build
// chooses without importing them directly: callers depend on behavior
// rather than a specific struct, re-expressed here over the kernel's
// own execution/replay/bundle/simulation/certificate subsystems.
package contracts

import (
	"context"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/certify"
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/replay"
	"github.com/cathedral-fabric/fabric/internal/sim"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// ExecutionEngine runs a workflow DAG to completion and exposes the
// run's final chain state. Satisfied by *engine.Run.
type ExecutionEngine interface {
	Drive(ctx context.Context) error
	StateHash() core.Hash
}

// ReplayEngine reconstructs run state from an event sequence and
// compares two sequences for divergence. Satisfied by a thin adapter
// over internal/replay's Replay/Diff functions, since that package
// exposes free functions rather than a method set.
type ReplayEngine interface {
	Replay(ctx context.Context, events []*eventlog.Event) (*replay.Result, error)
	Diff(left, right []*eventlog.Event) *replay.DiffResult
}

// BundleStore opens and writes `.cath-bundle/` archives. Satisfied by a
// thin adapter over internal/bundle's package-level Create/Open.
type BundleStore interface {
	Create(dir string, dag core.DAG, compressBlobs bool) (*bundle.Writer, error)
	Open(dir string) (*bundle.Bundle, error)
}

// SimulationHarness runs seeded, repeatable executions and reports
// whether they agree. Satisfied by *sim.Harness.
type SimulationHarness interface {
	RepeatSeed(seed uint64, count int) (sim.Comparison, error)
	Sweep(seeds []uint64) ([]sim.Record, error)
}

// CertificateIssuer signs determinism certificates. Satisfied by
// *certify.Certifier.
type CertificateIssuer interface {
	Certify(executionID string, level certify.Level, comparison sim.Comparison, ticks uint64) (certify.Certificate, error)
}

// CertificateVerifier checks a certificate against an observed log hash,
// kept separate from CertificateIssuer since verification needs no
// signing key.
type CertificateVerifier interface {
	Verify(c certify.Certificate, observedLogHash core.Hash) error
}

// PackageVerifier is the default CertificateVerifier, delegating to
// certify.VerifyCertificate.
type PackageVerifier struct{}

// Verify implements CertificateVerifier.
func (PackageVerifier) Verify(c certify.Certificate, observedLogHash core.Hash) error {
	return certify.VerifyCertificate(c, observedLogHash)
}
