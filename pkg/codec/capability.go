package codec

import "github.com/cathedral-fabric/fabric/pkg/core"

// EncodeCapability writes a Capability as (u32 discriminant, variant
// payload), the sum-type convention of section 4.1. The discriminant
// values are core.CapabilityKind's stable iota order.
func EncodeCapability(w *Writer, c core.Capability) {
	w.Discriminant(uint32(c.Kind))
	switch c.Kind {
	case core.CapabilityNetRead, core.CapabilityNetWrite:
		encodeStringSeq(w, c.HostAllowlist)
	case core.CapabilityFsRead, core.CapabilityFsWrite:
		encodeStringSeq(w, c.PathPrefixes)
	case core.CapabilityDbRead, core.CapabilityDbWrite:
		encodeStringSeq(w, c.Tables)
	case core.CapabilityEnvRead:
		encodeStringSeq(w, c.EnvVars)
	case core.CapabilityExec:
		w.String(c.CPULimit)
		w.String(c.MemLimit)
	case core.CapabilityWasmExec:
		w.U64(c.Fuel)
		w.U64(c.MemBytes)
	case core.CapabilityClockRead:
		// no payload
	}
}

// DecodeCapability reads a Capability encoded by EncodeCapability.
func DecodeCapability(r *Reader) (core.Capability, error) {
	tag, err := r.Discriminant()
	if err != nil {
		return core.Capability{}, err
	}
	kind := core.CapabilityKind(tag)
	c := core.Capability{Kind: kind}
	switch kind {
	case core.CapabilityNetRead, core.CapabilityNetWrite:
		c.HostAllowlist, err = decodeStringSeq(r)
	case core.CapabilityFsRead, core.CapabilityFsWrite:
		c.PathPrefixes, err = decodeStringSeq(r)
	case core.CapabilityDbRead, core.CapabilityDbWrite:
		c.Tables, err = decodeStringSeq(r)
	case core.CapabilityEnvRead:
		c.EnvVars, err = decodeStringSeq(r)
	case core.CapabilityExec:
		if c.CPULimit, err = r.String(); err != nil {
			return core.Capability{}, err
		}
		c.MemLimit, err = r.String()
	case core.CapabilityWasmExec:
		if c.Fuel, err = r.U64(); err != nil {
			return core.Capability{}, err
		}
		c.MemBytes, err = r.U64()
	case core.CapabilityClockRead:
		// no payload
	default:
		return core.Capability{}, core.NewError(core.CodeInvalidEncoding, "unknown capability discriminant")
	}
	if err != nil {
		return core.Capability{}, err
	}
	return c, nil
}

// EncodeCapabilitySet writes an ordered sequence of capabilities.
func EncodeCapabilitySet(w *Writer, s *core.CapabilitySet) {
	all := s.All()
	w.U32(uint32(len(all)))
	for _, c := range all {
		EncodeCapability(w, c)
	}
}

// DecodeCapabilitySet reads a capability set encoded by EncodeCapabilitySet.
func DecodeCapabilitySet(r *Reader) (*core.CapabilitySet, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	set := core.NewCapabilitySet()
	for i := uint32(0); i < n; i++ {
		c, err := DecodeCapability(r)
		if err != nil {
			return nil, err
		}
		set.Grant(c)
	}
	return set, nil
}

func encodeStringSeq(w *Writer, items []string) {
	w.U32(uint32(len(items)))
	for _, s := range items {
		w.String(s)
	}
}

func decodeStringSeq(r *Reader) ([]string, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
