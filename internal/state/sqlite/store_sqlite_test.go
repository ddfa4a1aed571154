package sqlite

import (
	"context"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "position:ETH-Q+ETH-P", `{"net":2}`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "position:ETH-Q+ETH-P")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != `{"net":2}` {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "position:ETH-Q+ETH-P"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "position:ETH-Q+ETH-P")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestStoreSetOverwrites(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "order:seq", "1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "order:seq", "2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "order:seq")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "2" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
}

func TestStoreListByPrefix(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	entries := map[string]string{
		"position:A+B": `{"net":1}`,
		"position:C+D": `{"net":-3}`,
		"order:seq":    "17",
	}
	for k, v := range entries {
		if err := store.Set(ctx, k, v); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}
	got, err := store.List(ctx, "position:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 position keys, got %d", len(got))
	}
	if got["position:A+B"] != `{"net":1}` || got["position:C+D"] != `{"net":-3}` {
		t.Fatalf("unexpected list contents: %v", got)
	}
}
