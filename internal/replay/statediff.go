package replay

import "github.com/cathedral-fabric/fabric/pkg/core"

// StateDiff is the node-level comparison between two reconstructed
// states, e.g. the state replayed from a bundle versus the state
// reconstructed live during the original run.
type StateDiff struct {
	Added    []core.NodeID
	Removed  []core.NodeID
	Modified []core.NodeID
}

// HasChanges reports whether before and after differ at all.
func (d *StateDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}

// ComputeStateDiff compares before and after node by node: a node
// present only in after is Added, present only in before is Removed,
// present in both with a different status, output, error, or side-effect
// list is Modified.
func ComputeStateDiff(before, after *State) *StateDiff {
	d := &StateDiff{}
	for id, a := range after.Nodes {
		b, ok := before.Nodes[id]
		if !ok {
			d.Added = append(d.Added, id)
			continue
		}
		if !nodeStatesEqual(b, a) {
			d.Modified = append(d.Modified, id)
		}
	}
	for id := range before.Nodes {
		if _, ok := after.Nodes[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	d.Added = sortedNodeIDs(d.Added)
	d.Removed = sortedNodeIDs(d.Removed)
	d.Modified = sortedNodeIDs(d.Modified)
	return d
}

func nodeStatesEqual(a, b *NodeRunState) bool {
	if a.Status != b.Status || string(a.Output) != string(b.Output) {
		return false
	}
	if (a.Err == nil) != (b.Err == nil) || (a.Err != nil && *a.Err != *b.Err) {
		return false
	}
	if len(a.SideEffects) != len(b.SideEffects) {
		return false
	}
	for i := range a.SideEffects {
		if a.SideEffects[i] != b.SideEffects[i] {
			return false
		}
	}
	return true
}
