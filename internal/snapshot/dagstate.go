package snapshot

import (
	"sort"

	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// EncodeDAGState renders a run's per-node status map in the canonical
// binary form stored at a snapshot's DAGState content address. Node ids
// are written in ascending byte order so two snapshots built from the
// same status map encode identically.
func EncodeDAGState(statuses map[core.NodeID]core.NodeStatus) []byte {
	ids := make([]core.NodeID, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i].Bytes(), ids[j].Bytes()
		return lessID16(a, b)
	})

	w := codec.NewWriter()
	w.U32(uint32(len(ids)))
	for _, id := range ids {
		w.ID16(id.Bytes())
		w.U32(uint32(statuses[id]))
	}
	return w.Finish()
}

// DecodeDAGState parses the form produced by EncodeDAGState.
func DecodeDAGState(b []byte) (map[core.NodeID]core.NodeStatus, error) {
	r := codec.NewReader(b)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[core.NodeID]core.NodeStatus, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.ID16()
		if err != nil {
			return nil, err
		}
		status, err := r.U32()
		if err != nil {
			return nil, err
		}
		out[core.NodeIDFromBytes(id)] = core.NodeStatus(status)
	}
	return out, nil
}
