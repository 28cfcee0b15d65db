package replay

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SemanticKind classifies one leaf-level difference found by SemanticDiff.
type SemanticKind int

const (
	SemanticAdded SemanticKind = iota
	SemanticRemoved
	SemanticChanged
)

// SemanticChange is one differing path between two JSON-like payloads,
// addressed by a slash-separated path of object keys and array indices.
type SemanticChange struct {
	Path  string
	Kind  SemanticKind
	Left  interface{}
	Right interface{}
}

// SemanticDiff compares two payloads parsed as JSON, per section
// 4.9's optional semantic diff: object keys compare in sorted order and
// arrays compare positionally, so the result is stable across runs.
func SemanticDiff(left, right []byte) ([]SemanticChange, error) {
	var l, r interface{}
	if err := json.Unmarshal(left, &l); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(right, &r); err != nil {
		return nil, err
	}

	var changes []SemanticChange
	walkSemanticDiff("", l, r, &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func walkSemanticDiff(path string, l, r interface{}, out *[]SemanticChange) {
	if lm, lok := l.(map[string]interface{}); lok {
		if rm, rok := r.(map[string]interface{}); rok {
			walkMapDiff(path, lm, rm, out)
			return
		}
	}
	if la, lok := l.([]interface{}); lok {
		if ra, rok := r.([]interface{}); rok {
			walkArrayDiff(path, la, ra, out)
			return
		}
	}
	if !jsonValuesEqual(l, r) {
		*out = append(*out, SemanticChange{Path: path, Kind: SemanticChanged, Left: l, Right: r})
	}
}

func walkMapDiff(path string, l, r map[string]interface{}, out *[]SemanticChange) {
	keys := make(map[string]bool, len(l)+len(r))
	for k := range l {
		keys[k] = true
	}
	for k := range r {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := path + "/" + k
		lv, lok := l[k]
		rv, rok := r[k]
		switch {
		case !lok:
			*out = append(*out, SemanticChange{Path: childPath, Kind: SemanticAdded, Right: rv})
		case !rok:
			*out = append(*out, SemanticChange{Path: childPath, Kind: SemanticRemoved, Left: lv})
		default:
			walkSemanticDiff(childPath, lv, rv, out)
		}
	}
}

func walkArrayDiff(path string, l, r []interface{}, out *[]SemanticChange) {
	n := len(l)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		childPath := fmt.Sprintf("%s/%d", path, i)
		switch {
		case i >= len(l):
			*out = append(*out, SemanticChange{Path: childPath, Kind: SemanticAdded, Right: r[i]})
		case i >= len(r):
			*out = append(*out, SemanticChange{Path: childPath, Kind: SemanticRemoved, Left: l[i]})
		default:
			walkSemanticDiff(childPath, l[i], r[i], out)
		}
	}
}

func jsonValuesEqual(l, r interface{}) bool {
	lb, lerr := json.Marshal(l)
	rb, rerr := json.Marshal(r)
	if lerr != nil || rerr != nil {
		return false
	}
	return string(lb) == string(rb)
}
