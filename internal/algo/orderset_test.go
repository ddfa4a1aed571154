package algo

import "testing"

func TestOrderSetKeepsInsertionOrder(t *testing.T) {
	set := newOrderSet()
	set.Add("a")
	set.Add("b")
	set.Add("c")
	if id, ok := set.Oldest(); !ok || id != "a" {
		t.Fatalf("expected oldest a, got %q ok=%v", id, ok)
	}
	set.Remove("a")
	if id, _ := set.Oldest(); id != "b" {
		t.Fatalf("expected oldest b after removal, got %q", id)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", set.Len())
	}
}

func TestOrderSetDeduplicates(t *testing.T) {
	set := newOrderSet()
	set.Add("a")
	set.Add("a")
	set.Add("")
	if set.Len() != 1 {
		t.Fatalf("duplicates and empty ids should not count, got %d", set.Len())
	}
	if !set.Contains("a") {
		t.Fatalf("expected set to contain a")
	}
}

func TestOrderSetRemoveUnknown(t *testing.T) {
	set := newOrderSet()
	set.Add("a")
	set.Remove("missing")
	if set.Len() != 1 {
		t.Fatalf("removing an unknown id should be a no-op, got %d", set.Len())
	}
	if _, ok := set.Oldest(); !ok {
		t.Fatalf("expected oldest to remain available")
	}
}
