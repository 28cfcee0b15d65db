package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// capsFile is the on-disk grant list a run is frozen against for its
// whole lifetime: capabilities are fixed at run start, and no run may
// request an additional grant mid-flight.
type capsFile struct {
	Grants []capGrant `json:"grants"`
}

type capGrant struct {
	Kind          string   `json:"kind"`
	HostAllowlist []string `json:"host_allowlist,omitempty"`
	PathPrefixes  []string `json:"path_prefixes,omitempty"`
	Tables        []string `json:"tables,omitempty"`
	EnvVars       []string `json:"env_vars,omitempty"`
	CPULimit      string   `json:"cpu_limit,omitempty"`
	MemLimit      string   `json:"mem_limit,omitempty"`
	Fuel          uint64   `json:"fuel,omitempty"`
	MemBytes      uint64   `json:"mem_bytes,omitempty"`
}

func loadCapabilitySet(path string) (*core.CapabilitySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf capsFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse capability file: %w", err)
	}

	set := core.NewCapabilitySet()
	for _, g := range cf.Grants {
		kind, err := capabilityKind(g.Kind)
		if err != nil {
			return nil, err
		}
		set.Grant(core.Capability{
			Kind:          kind,
			HostAllowlist: g.HostAllowlist,
			PathPrefixes:  g.PathPrefixes,
			Tables:        g.Tables,
			EnvVars:       g.EnvVars,
			CPULimit:      g.CPULimit,
			MemLimit:      g.MemLimit,
			Fuel:          g.Fuel,
			MemBytes:      g.MemBytes,
		})
	}
	return set, nil
}
