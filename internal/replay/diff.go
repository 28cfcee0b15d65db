package replay

import (
	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Side names which of two compared sequences an aligned entry came from
// when only one side has an event at a given logical time.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// EntryKind classifies one aligned position in a comparison of two event
// sequences.
type EntryKind int

const (
	EntryEqual EntryKind = iota
	EntryChanged
	EntryMissing
)

// Entry is one aligned position in the comparison of two event
// sequences, produced by walking both in logical_time order.
type Entry struct {
	Time    core.LogicalTime
	Kind    EntryKind
	Missing Side // meaningful only when Kind == EntryMissing: the side lacking an event at Time
	Left    *eventlog.Event
	Right   *eventlog.Event
}

// maxAncestors bounds how far CausalAncestors walks back via
// parent_event_id before giving up.
const maxAncestors = 64

// DiffResult is the outcome of comparing two runs' event sequences.
type DiffResult struct {
	Entries         []Entry
	FirstDivergence int // index into Entries of the first non-equal entry, -1 if none
	CausalAncestors []core.EventID
}

// Diff aligns left and right by logical_time and reports the first
// position where they disagree, per section 4.9: events at equal
// logical_time compare kind, payload_hash, and both state hashes; an
// event present on only one side at a given logical_time advances just
// that side and marks it missing from the other.
func Diff(left, right []*eventlog.Event) *DiffResult {
	result := &DiffResult{FirstDivergence: -1}
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		switch {
		case i >= len(left):
			result.Entries = append(result.Entries, Entry{Time: right[j].LogicalTime, Kind: EntryMissing, Missing: SideLeft, Right: right[j]})
			j++
		case j >= len(right):
			result.Entries = append(result.Entries, Entry{Time: left[i].LogicalTime, Kind: EntryMissing, Missing: SideRight, Left: left[i]})
			i++
		case left[i].LogicalTime < right[j].LogicalTime:
			result.Entries = append(result.Entries, Entry{Time: left[i].LogicalTime, Kind: EntryMissing, Missing: SideRight, Left: left[i]})
			i++
		case right[j].LogicalTime < left[i].LogicalTime:
			result.Entries = append(result.Entries, Entry{Time: right[j].LogicalTime, Kind: EntryMissing, Missing: SideLeft, Right: right[j]})
			j++
		default:
			l, r := left[i], right[j]
			kind := EntryEqual
			if !eventsEquivalent(l, r) {
				kind = EntryChanged
			}
			result.Entries = append(result.Entries, Entry{Time: l.LogicalTime, Kind: kind, Left: l, Right: r})
			i++
			j++
		}
	}

	for idx, entry := range result.Entries {
		if entry.Kind != EntryEqual {
			result.FirstDivergence = idx
			result.CausalAncestors = causalAncestors(left, right, entry)
			break
		}
	}
	return result
}

func eventsEquivalent(l, r *eventlog.Event) bool {
	if l.Kind != r.Kind || l.PayloadHash != r.PayloadHash {
		return false
	}
	return hashPtrEqual(l.PriorStateHash, r.PriorStateHash) && hashPtrEqual(l.PostStateHash, r.PostStateHash)
}

func hashPtrEqual(a, b *core.Hash) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// causalAncestors walks entry's left-side event's parent_event_id chain
// back to the nearest RunStarted event, or until maxAncestors is
// reached, returning ids in root-to-divergence order. Falls back to the
// right side when the divergence has no left event (EntryMissing,
// Missing == SideLeft).
func causalAncestors(left, right []*eventlog.Event, entry Entry) []core.EventID {
	start, side := entry.Left, left
	if start == nil {
		start, side = entry.Right, right
	}
	if start == nil {
		return nil
	}

	byID := make(map[core.EventID]*eventlog.Event, len(side))
	for _, e := range side {
		byID[e.EventID] = e
	}

	var chain []core.EventID
	cur := start
	for n := 0; n < maxAncestors; n++ {
		chain = append(chain, cur.EventID)
		if cur.Kind == core.EventRunStarted || cur.ParentEventID == nil {
			break
		}
		parent, ok := byID[*cur.ParentEventID]
		if !ok {
			break
		}
		cur = parent
	}

	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}
