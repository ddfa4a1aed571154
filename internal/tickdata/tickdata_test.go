package tickdata

import (
	"testing"
	"time"

	"spread-sniper-bot/internal/market"
)

func tickAt(instrument string, t time.Time, bid, ask float64) market.Tick {
	return market.Tick{
		Instrument: instrument,
		BidPrice:   bid,
		AskPrice:   ask,
		BidSize:    5,
		AskSize:    7,
		Time:       t,
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "ETH-PERP")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	want := []market.Tick{
		tickAt("ETH-PERP", base, 100.5, 100.6),
		tickAt("ETH-PERP", base.Add(time.Second), 100.6, 100.7),
		tickAt("ETH-PERP", base.Add(25*time.Hour), 101.0, 101.1),
	}
	for _, tick := range want {
		if err := writer.Write(tick); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := Load(dir, "ETH-PERP", base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d ticks, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Time.Equal(want[i].Time) {
			t.Fatalf("tick %d time mismatch: got %v want %v", i, got[i].Time, want[i].Time)
		}
		if got[i].BidPrice != want[i].BidPrice || got[i].AskPrice != want[i].AskPrice {
			t.Fatalf("tick %d price mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestLoadSkipsMissingDays(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "ETH-PERP")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	day := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	if err := writer.Write(tickAt("ETH-PERP", day, 100, 101)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := Load(dir, "ETH-PERP", day.Add(-72*time.Hour), day.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(got))
	}
}

func TestLoadMergedIsStableOnEqualTimestamps(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	active, err := NewWriter(dir, "ETH-QUARTER")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := active.Write(tickAt("ETH-QUARTER", base, 102, 103)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := active.Write(tickAt("ETH-QUARTER", base.Add(2*time.Second), 102.5, 103.5)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := active.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	passive, err := NewWriter(dir, "ETH-PERP")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := passive.Write(tickAt("ETH-PERP", base, 100, 101)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := passive.Write(tickAt("ETH-PERP", base.Add(time.Second), 100.5, 101.5)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := passive.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	merged, err := LoadMerged(dir, []string{"ETH-QUARTER", "ETH-PERP"}, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("load merged: %v", err)
	}
	wantOrder := []string{"ETH-QUARTER", "ETH-PERP", "ETH-PERP", "ETH-QUARTER"}
	if len(merged) != len(wantOrder) {
		t.Fatalf("expected %d ticks, got %d", len(wantOrder), len(merged))
	}
	for i, instrument := range wantOrder {
		if merged[i].Instrument != instrument {
			t.Fatalf("tick %d: expected %s, got %s", i, instrument, merged[i].Instrument)
		}
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Time.Before(merged[i-1].Time) {
			t.Fatalf("merged ticks out of order at %d", i)
		}
	}
}
