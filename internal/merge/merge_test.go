package merge

import "testing"

func TestMerge_IdenticalEdits(t *testing.T) {
	res := Merge("A\nB\nC", "A\nX\nC", "A\nX\nC")
	if !res.Success {
		t.Fatalf("expected success")
	}
	if res.Merged != "A\nX\nC" {
		t.Fatalf("unexpected merged content %q", res.Merged)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %d", len(res.Conflicts))
	}
}

func TestMerge_OnlyTheirsChanged(t *testing.T) {
	res := Merge("A\nB\nC", "A\nB\nC", "A\nY\nC")
	if !res.Success {
		t.Fatalf("expected success")
	}
	if res.Merged != "A\nY\nC" {
		t.Fatalf("expected their version adopted, got %q", res.Merged)
	}
}

func TestMerge_OnlyYoursChanged(t *testing.T) {
	res := Merge("A\nB\nC", "A\nX\nC", "A\nB\nC")
	if !res.Success {
		t.Fatalf("expected success")
	}
	if res.Merged != "A\nX\nC" {
		t.Fatalf("expected local version adopted, got %q", res.Merged)
	}
}

func TestMerge_BothChangedConflicts(t *testing.T) {
	res := Merge("A\nB\nC", "A\nX\nC", "A\nY\nC")
	if res.Success {
		t.Fatalf("expected conflict")
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Base != "A\nB\nC" || c.Yours != "A\nX\nC" || c.Theirs != "A\nY\nC" {
		t.Fatalf("unexpected conflict triple %+v", c)
	}
}

func TestMerge_NormalizesLineEndings(t *testing.T) {
	res := Merge("A\r\nB", "A\nB", "A\r\nB")
	if !res.Success {
		t.Fatalf("expected success after normalization")
	}
	if res.Merged != "A\nB" {
		t.Fatalf("unexpected merged content %q", res.Merged)
	}
}
