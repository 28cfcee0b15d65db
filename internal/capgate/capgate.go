// Package capgate implements the capability gate of section 4.6:
// sequential matching of a requested capability against a run's frozen
// CapabilitySet, emitting a CapabilityCheck outcome and failing closed
// with CapabilityDenied.
package capgate

import (
	"path"
	"strconv"
	"strings"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Request describes one capability check. Exactly the fields relevant to
// Kind are populated, mirroring core.Capability's tagged-sum-type
// discipline.
type Request struct {
	Kind     core.CapabilityKind
	Domain   string // NetRead / NetWrite
	Path     string // FsRead / FsWrite
	Table    string // DbRead / DbWrite
	EnvVar   string // EnvRead
	Resource core.ResourceBound // WasmExec / Exec
}

// Gate checks requests against a run's immutable CapabilitySet,
// mirroring the sequential-provider-chain discipline of
// internal/auth/chain.go's ProviderChain.Authenticate, applied here to a
// single frozen set rather than a registrable chain.
type Gate struct {
	set *core.CapabilitySet
}

// NewGate returns a Gate enforcing set.
func NewGate(set *core.CapabilitySet) *Gate { return &Gate{set: set} }

// Check matches req against the gate's capability set per section
// 4.6's rules. It returns nil if allowed, or a *core.Error with
// CodeCapabilityDenied if not. The caller is responsible for logging the
// CapabilityCheck event and must not retry with a different capability
// in the same task after a denial.
func (g *Gate) Check(req Request) error {
	if g.allowed(req) {
		return nil
	}
	return core.NewError(core.CodeCapabilityDenied, "capability denied: "+req.Kind.String())
}

func (g *Gate) allowed(req Request) bool {
	switch req.Kind {
	case core.CapabilityNetRead:
		return g.set.CanReadNet(req.Domain)
	case core.CapabilityNetWrite:
		return g.set.CanWriteNet(req.Domain)
	case core.CapabilityFsRead:
		return g.set.CanReadFs(normalizePath(req.Path))
	case core.CapabilityFsWrite:
		return g.set.CanWriteFs(normalizePath(req.Path))
	case core.CapabilityDbRead:
		return g.set.CanReadDb(req.Table)
	case core.CapabilityDbWrite:
		return g.set.CanWriteDb(req.Table)
	case core.CapabilityEnvRead:
		return g.set.CanReadEnv(req.EnvVar)
	case core.CapabilityClockRead:
		return g.set.CanReadClock()
	case core.CapabilityWasmExec:
		bound, ok := g.set.WasmBound()
		return ok && bound.Fuel >= req.Resource.Fuel && bound.MemBytes >= req.Resource.MemBytes
	case core.CapabilityExec:
		return g.execAllowed(req.Resource)
	default:
		return false
	}
}

// normalizePath lexically resolves "." and ".." components with no
// symlink traversal.
func normalizePath(p string) string {
	if p == "" {
		return p
	}
	return path.Clean(p)
}

// execAllowed checks req against every granted Exec capability's
// CPU/memory limit strings, parsed as Kubernetes-style quantities
// ("500m" CPU-millis, "256Mi"/"1Gi" memory).
func (g *Gate) execAllowed(requested core.ResourceBound) bool {
	for _, c := range g.set.All() {
		if c.Kind != core.CapabilityExec {
			continue
		}
		cpuLimit, err := parseCPUQuantity(c.CPULimit)
		if err != nil {
			continue
		}
		memLimit, err := parseMemoryQuantity(c.MemLimit)
		if err != nil {
			continue
		}
		if requested.CPUMilli <= cpuLimit && requested.MemBytes <= memLimit {
			return true
		}
	}
	return false
}

// parseCPUQuantity parses a CPU limit expressed either as whole cores
// ("2") or millicores ("500m") into millicores.
func parseCPUQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "m") {
		n, err := strconv.ParseUint(strings.TrimSuffix(s, "m"), 10, 64)
		return n, err
	}
	cores, err := strconv.ParseUint(s, 10, 64)
	return cores * 1000, err
}

// parseMemoryQuantity parses a memory limit expressed with a binary
// suffix ("256Mi", "1Gi") or as a bare byte count into bytes.
func parseMemoryQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	multiplier := uint64(1)
	switch {
	case strings.HasSuffix(s, "Ki"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "Ki")
	case strings.HasSuffix(s, "Mi"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "Mi")
	case strings.HasSuffix(s, "Gi"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "Gi")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}
