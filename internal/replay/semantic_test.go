package replay

import "testing"

func TestSemanticDiffDetectsAddedRemovedChanged(t *testing.T) {
	left := []byte(`{"a": 1, "b": 2, "c": {"x": 1}}`)
	right := []byte(`{"a": 1, "b": 3, "d": 4}`)

	changes, err := SemanticDiff(left, right)
	if err != nil {
		t.Fatalf("SemanticDiff() error = %v", err)
	}

	var sawChangedB, sawRemovedC, sawAddedD bool
	for _, c := range changes {
		switch c.Path {
		case "/b":
			sawChangedB = c.Kind == SemanticChanged
		case "/c":
			sawRemovedC = c.Kind == SemanticRemoved
		case "/d":
			sawAddedD = c.Kind == SemanticAdded
		}
	}
	if !sawChangedB || !sawRemovedC || !sawAddedD {
		t.Errorf("changes = %+v, missing an expected path", changes)
	}
}

func TestSemanticDiffArraysArePositional(t *testing.T) {
	changes, err := SemanticDiff([]byte(`[1,2,3]`), []byte(`[1,9,3,4]`))
	if err != nil {
		t.Fatalf("SemanticDiff() error = %v", err)
	}
	var sawChanged1, sawAdded3 bool
	for _, c := range changes {
		if c.Path == "/1" && c.Kind == SemanticChanged {
			sawChanged1 = true
		}
		if c.Path == "/3" && c.Kind == SemanticAdded {
			sawAdded3 = true
		}
	}
	if !sawChanged1 || !sawAdded3 {
		t.Errorf("changes = %+v, missing expected positional diffs", changes)
	}
}

func TestSemanticDiffNoChanges(t *testing.T) {
	changes, err := SemanticDiff([]byte(`{"a":[1,2]}`), []byte(`{"a":[1,2]}`))
	if err != nil {
		t.Fatalf("SemanticDiff() error = %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %+v, want none", changes)
	}
}

func TestSemanticDiffInvalidJSONErrors(t *testing.T) {
	if _, err := SemanticDiff([]byte("not json"), []byte("{}")); err == nil {
		t.Fatal("SemanticDiff() should error on invalid JSON")
	}
}
