package diagnostics

import "testing"

func TestRecorderBounded(t *testing.T) {
	r := NewRecorder(2)
	r.Push(Diagnostic{Code: "A"})
	r.Push(Diagnostic{Code: "B"})
	r.Push(Diagnostic{Code: "C"})
	got := r.Snapshot()
	if len(got) != 2 || got[0].Code != "B" || got[1].Code != "C" {
		t.Fatalf("unexpected ring contents: %#v", got)
	}
	if got[0].At.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
	if r.Count("C") != 1 || r.Count("A") != 0 {
		t.Fatalf("unexpected counts")
	}
}

func TestTee(t *testing.T) {
	a, b := NewRecorder(4), NewRecorder(4)
	Tee(a, nil, b).Push(Diagnostic{Code: AssetLoadFailed})
	if a.Count(AssetLoadFailed) != 1 || b.Count(AssetLoadFailed) != 1 {
		t.Fatalf("expected both sinks to receive the diagnostic")
	}
	ida, idb := a.Snapshot()[0].ID, b.Snapshot()[0].ID
	if ida == "" || ida != idb {
		t.Fatalf("expected one shared id, got %q and %q", ida, idb)
	}
}
