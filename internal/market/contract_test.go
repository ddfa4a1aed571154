package market

import "testing"

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Contract{Symbol: "ETH-PERP", Exchange: "OKX", PriceTick: 0.01, Size: 10})

	c, err := reg.Resolve("ETH-PERP")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if c.PriceTick != 0.01 || c.Size != 10 {
		t.Fatalf("unexpected contract: %+v", c)
	}
	if _, err := reg.Resolve("BTC-PERP"); err == nil {
		t.Fatalf("expected error for unknown contract")
	}
}

func TestRegistryReset(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Contract{Symbol: "ETH-PERP"})
	if reg.Len() != 1 {
		t.Fatalf("expected 1 contract, got %d", reg.Len())
	}
	reg.Reset()
	if reg.Len() != 0 {
		t.Fatalf("reset should clear the registry, got %d", reg.Len())
	}
	if _, ok := reg.Get("ETH-PERP"); ok {
		t.Fatalf("cleared contract should not resolve")
	}
}
