// Package bundle implements the portable `.cath-bundle/` archive format of
// section 6: a manifest-verified directory carrying a run's DAG,
// event log, optional snapshot, and content-addressed blobs.
package bundle

import (
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// EncodeDAG renders dag in its canonical binary form. A bundle stores
// this form as workflow.cath, and the manifest's workflow.cath entry
// carries its hash; dag.json holds the JSON transport form alongside it.
func EncodeDAG(dag core.DAG) []byte {
	w := codec.NewWriter()
	w.U32(uint32(len(dag.Nodes)))
	for _, n := range dag.Nodes {
		w.ID16(n.ID.Bytes())
		w.String(n.Name)
		w.U32(uint32(len(n.RequiredCapabilities)))
		for _, c := range n.RequiredCapabilities {
			w.U32(uint32(c))
		}
		w.U64(n.Resources.Fuel)
		w.U64(n.Resources.MemBytes)
		w.U64(n.Resources.CPUMilli)
		w.String(n.Zone)
	}

	w.U32(uint32(len(dag.Edges)))
	for _, e := range dag.Edges {
		w.ID16(e.From.Bytes())
		w.ID16(e.To.Bytes())
		w.String(e.Condition)
	}
	return w.Finish()
}

// DecodeDAG parses the form produced by EncodeDAG.
func DecodeDAG(b []byte) (core.DAG, error) {
	r := codec.NewReader(b)
	var dag core.DAG

	nodeCount, err := r.U32()
	if err != nil {
		return dag, err
	}
	dag.Nodes = make([]core.Node, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		id, err := r.ID16()
		if err != nil {
			return dag, err
		}
		name, err := r.String()
		if err != nil {
			return dag, err
		}
		capCount, err := r.U32()
		if err != nil {
			return dag, err
		}
		caps := make([]core.CapabilityKind, 0, capCount)
		for j := uint32(0); j < capCount; j++ {
			c, err := r.U32()
			if err != nil {
				return dag, err
			}
			caps = append(caps, core.CapabilityKind(c))
		}
		fuel, err := r.U64()
		if err != nil {
			return dag, err
		}
		mem, err := r.U64()
		if err != nil {
			return dag, err
		}
		cpu, err := r.U64()
		if err != nil {
			return dag, err
		}
		zone, err := r.String()
		if err != nil {
			return dag, err
		}
		dag.Nodes = append(dag.Nodes, core.Node{
			ID:                   core.NodeIDFromBytes(id),
			Name:                 name,
			RequiredCapabilities: caps,
			Resources:            core.ResourceBound{Fuel: fuel, MemBytes: mem, CPUMilli: cpu},
			Zone:                 zone,
		})
	}

	edgeCount, err := r.U32()
	if err != nil {
		return dag, err
	}
	dag.Edges = make([]core.Edge, 0, edgeCount)
	for i := uint32(0); i < edgeCount; i++ {
		from, err := r.ID16()
		if err != nil {
			return dag, err
		}
		to, err := r.ID16()
		if err != nil {
			return dag, err
		}
		cond, err := r.String()
		if err != nil {
			return dag, err
		}
		dag.Edges = append(dag.Edges, core.Edge{
			From:      core.NodeIDFromBytes(from),
			To:        core.NodeIDFromBytes(to),
			Condition: cond,
		})
	}
	return dag, nil
}
