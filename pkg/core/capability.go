package core

import "strings"

// CapabilityKind is the stable numeric discriminant for a Capability
// variant, used both for dispatch and as the sum-type tag in the
// canonical codec.
type CapabilityKind uint32

const (
	CapabilityNetRead CapabilityKind = iota
	CapabilityNetWrite
	CapabilityFsRead
	CapabilityFsWrite
	CapabilityDbRead
	CapabilityDbWrite
	CapabilityExec
	CapabilityWasmExec
	CapabilityClockRead
	CapabilityEnvRead
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityNetRead:
		return "NetRead"
	case CapabilityNetWrite:
		return "NetWrite"
	case CapabilityFsRead:
		return "FsRead"
	case CapabilityFsWrite:
		return "FsWrite"
	case CapabilityDbRead:
		return "DbRead"
	case CapabilityDbWrite:
		return "DbWrite"
	case CapabilityExec:
		return "Exec"
	case CapabilityWasmExec:
		return "WasmExec"
	case CapabilityClockRead:
		return "ClockRead"
	case CapabilityEnvRead:
		return "EnvRead"
	default:
		return "Unknown"
	}
}

// Capability is a typed, allowlist-constrained permission for one class of
// side effect. Exactly one of the per-kind fields is populated, selected
// by Kind; this mirrors the tagged-sum-type discipline section 4.1
// requires of every wire type.
type Capability struct {
	Kind CapabilityKind

	// NetRead / NetWrite
	HostAllowlist []string

	// FsRead / FsWrite
	PathPrefixes []string

	// DbRead / DbWrite
	Tables []string

	// EnvRead
	EnvVars []string

	// Exec
	CPULimit string
	MemLimit string

	// WasmExec
	Fuel     uint64
	MemBytes uint64
}

// ResourceBound is the (fuel, memory, cpu) triple a task requests and a
// WasmExec/Exec capability grants; a request is satisfied only when every
// dimension is within the grant.
type ResourceBound struct {
	Fuel     uint64
	MemBytes uint64
	CPUMilli uint64
}

// Satisfies reports whether a requested WasmExec/Exec bound is within a
// granted capability's bound: requested fuel and memory must each be
// ≤ the granted amount. CPUMilli is not compared.
func (c Capability) Satisfies(requested ResourceBound) bool {
	return requested.Fuel <= c.Fuel && requested.MemBytes <= c.MemBytes
}

// MatchesNetDomain reports whether the capability's host allowlist grants
// access to domain, per section 4.6: "*" matches any host, "*.suffix"
// matches suffix itself and any "label.suffix".
func MatchesNetDomain(allowlist []string, domain string) bool {
	for _, pattern := range allowlist {
		if pattern == "*" {
			return true
		}
		if strings.HasPrefix(pattern, "*.") {
			suffix := pattern[2:]
			if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
				return true
			}
			continue
		}
		if pattern == domain {
			return true
		}
	}
	return false
}

// MatchesPathPrefix reports whether path is underneath prefix as a
// component-wise prefix. Trailing slashes on either side are
// normalized away first.
func MatchesPathPrefix(prefix, path string) bool {
	normalizedPrefix := strings.TrimSuffix(prefix, "/")
	normalizedPath := strings.TrimSuffix(path, "/")

	if normalizedPrefix == "." || normalizedPrefix == "./" {
		return true
	}
	if normalizedPath == normalizedPrefix {
		return true
	}
	return strings.HasPrefix(normalizedPath, normalizedPrefix+"/")
}

// CapabilitySet is the frozen set of capabilities granted to a run. It is
// constructed once from the compiled policy at run start and never
// mutated afterward (section 3, section 5 "Capability sets are
// immutable per run").
type CapabilitySet struct {
	capabilities []Capability
}

// NewCapabilitySet returns an empty CapabilitySet.
func NewCapabilitySet() *CapabilitySet {
	return &CapabilitySet{}
}

// Grant adds a capability to the set.
func (s *CapabilitySet) Grant(c Capability) {
	s.capabilities = append(s.capabilities, c)
}

// All returns every granted capability, in grant order.
func (s *CapabilitySet) All() []Capability {
	return s.capabilities
}

// Len returns the number of granted capabilities.
func (s *CapabilitySet) Len() int { return len(s.capabilities) }

// CanReadNet reports whether any granted NetRead capability allows domain.
func (s *CapabilitySet) CanReadNet(domain string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityNetRead && MatchesNetDomain(c.HostAllowlist, domain) {
			return true
		}
	}
	return false
}

// CanWriteNet reports whether any granted NetWrite capability allows domain.
func (s *CapabilitySet) CanWriteNet(domain string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityNetWrite && MatchesNetDomain(c.HostAllowlist, domain) {
			return true
		}
	}
	return false
}

// CanReadFs reports whether any granted FsRead capability allows path.
func (s *CapabilitySet) CanReadFs(path string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityFsRead {
			for _, p := range c.PathPrefixes {
				if MatchesPathPrefix(p, path) {
					return true
				}
			}
		}
	}
	return false
}

// CanWriteFs reports whether any granted FsWrite capability allows path.
func (s *CapabilitySet) CanWriteFs(path string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityFsWrite {
			for _, p := range c.PathPrefixes {
				if MatchesPathPrefix(p, path) {
					return true
				}
			}
		}
	}
	return false
}

func containsExact(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

// CanReadDb reports whether any granted DbRead capability allowlists table.
func (s *CapabilitySet) CanReadDb(table string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityDbRead && containsExact(c.Tables, table) {
			return true
		}
	}
	return false
}

// CanWriteDb reports whether any granted DbWrite capability allowlists table.
func (s *CapabilitySet) CanWriteDb(table string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityDbWrite && containsExact(c.Tables, table) {
			return true
		}
	}
	return false
}

// CanReadEnv reports whether any granted EnvRead capability allowlists v.
func (s *CapabilitySet) CanReadEnv(v string) bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityEnvRead && containsExact(c.EnvVars, v) {
			return true
		}
	}
	return false
}

// CanReadClock reports whether ClockRead is granted.
func (s *CapabilitySet) CanReadClock() bool {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityClockRead {
			return true
		}
	}
	return false
}

// WasmBound returns the granted (fuel, memory) bound, if any WasmExec
// capability is present.
func (s *CapabilitySet) WasmBound() (ResourceBound, bool) {
	for _, c := range s.capabilities {
		if c.Kind == CapabilityWasmExec {
			return ResourceBound{Fuel: c.Fuel, MemBytes: c.MemBytes}, true
		}
	}
	return ResourceBound{}, false
}
