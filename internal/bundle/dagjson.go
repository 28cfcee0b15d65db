package bundle

import (
	"encoding/json"

	"github.com/cathedral-fabric/fabric/pkg/core"
	"github.com/google/uuid"
)

type jsonNode struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	Fuel                 uint64   `json:"fuel"`
	MemBytes             uint64   `json:"mem_bytes"`
	CPUMilli             uint64   `json:"cpu_milli"`
	Zone                 string   `json:"zone,omitempty"`
}

type jsonEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

type jsonDAG struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// DAGToJSON renders dag as the "dag.json" transport form section 6
// describes. The manifest records a hash for each of dag.json and
// workflow.cath, each over that file's own bytes; the workflow.cath
// entry is the one over the canonical binary encoding (EncodeDAG).
func DAGToJSON(dag core.DAG) ([]byte, error) {
	jd := jsonDAG{
		Nodes: make([]jsonNode, 0, len(dag.Nodes)),
		Edges: make([]jsonEdge, 0, len(dag.Edges)),
	}
	for _, n := range dag.Nodes {
		caps := make([]string, 0, len(n.RequiredCapabilities))
		for _, c := range n.RequiredCapabilities {
			caps = append(caps, c.String())
		}
		jd.Nodes = append(jd.Nodes, jsonNode{
			ID:                   n.ID.UUID.String(),
			Name:                 n.Name,
			RequiredCapabilities: caps,
			Fuel:                 n.Resources.Fuel,
			MemBytes:             n.Resources.MemBytes,
			CPUMilli:             n.Resources.CPUMilli,
			Zone:                 n.Zone,
		})
	}
	for _, e := range dag.Edges {
		jd.Edges = append(jd.Edges, jsonEdge{From: e.From.UUID.String(), To: e.To.UUID.String(), Condition: e.Condition})
	}
	return json.MarshalIndent(jd, "", "  ")
}

// DAGFromJSON parses the form produced by DAGToJSON. Capability kind
// names are matched case-sensitively against CapabilityKind.String()'s
// output.
func DAGFromJSON(b []byte) (core.DAG, error) {
	var jd jsonDAG
	var dag core.DAG
	if err := json.Unmarshal(b, &jd); err != nil {
		return dag, err
	}

	dag.Nodes = make([]core.Node, 0, len(jd.Nodes))
	for _, n := range jd.Nodes {
		id, err := uuid.Parse(n.ID)
		if err != nil {
			return dag, core.NewError(core.CodeInvalidEncoding, "dag.json: bad node id: "+n.ID)
		}
		caps := make([]core.CapabilityKind, 0, len(n.RequiredCapabilities))
		for _, name := range n.RequiredCapabilities {
			kind, ok := capabilityKindFromName(name)
			if !ok {
				return dag, core.NewError(core.CodeInvalidEncoding, "dag.json: unknown capability kind: "+name)
			}
			caps = append(caps, kind)
		}
		dag.Nodes = append(dag.Nodes, core.Node{
			ID:                   core.NodeIDFromBytes([16]byte(id)),
			Name:                 n.Name,
			RequiredCapabilities: caps,
			Resources:            core.ResourceBound{Fuel: n.Fuel, MemBytes: n.MemBytes, CPUMilli: n.CPUMilli},
			Zone:                 n.Zone,
		})
	}

	dag.Edges = make([]core.Edge, 0, len(jd.Edges))
	for _, e := range jd.Edges {
		from, err := uuid.Parse(e.From)
		if err != nil {
			return dag, core.NewError(core.CodeInvalidEncoding, "dag.json: bad edge.from: "+e.From)
		}
		to, err := uuid.Parse(e.To)
		if err != nil {
			return dag, core.NewError(core.CodeInvalidEncoding, "dag.json: bad edge.to: "+e.To)
		}
		dag.Edges = append(dag.Edges, core.Edge{
			From:      core.NodeIDFromBytes([16]byte(from)),
			To:        core.NodeIDFromBytes([16]byte(to)),
			Condition: e.Condition,
		})
	}
	return dag, nil
}

func capabilityKindFromName(name string) (core.CapabilityKind, bool) {
	for k := core.CapabilityNetRead; k <= core.CapabilityEnvRead; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
