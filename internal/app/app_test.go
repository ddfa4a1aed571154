package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"spread-sniper-bot/internal/config"
	"spread-sniper-bot/internal/market"

	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Feed:  config.FeedConfig{URL: "wss://example.test/ws", ReconnectDelay: time.Second, PingInterval: time.Second},
		State: config.StateConfig{SQLitePath: filepath.Join(t.TempDir(), "bot.db")},
		Engine: config.EngineConfig{
			TimerInterval:     time.Second,
			QuoteTimeoutTicks: 16,
		},
		Contracts: []config.ContractEntry{
			{Symbol: "ETH-QUARTER", Exchange: "OKX", PriceTick: 0.01, Size: 10},
			{Symbol: "ETH-PERP", Exchange: "OKX", PriceTick: 0.01, Size: 10},
		},
		Spreads: []config.SpreadEntry{
			{
				Name:         "eth-basis",
				ActiveLeg:    "ETH-QUARTER",
				PassiveLeg:   "ETH-PERP",
				BuyPercent:   -0.5,
				SellPercent:  -0.1,
				ShortPercent: 0.5,
				CoverPercent: 0.1,
				ActivePayup:  2,
				PassivePayup: 3,
				MaxOrderSize: 5,
				MaxPosSize:   20,
			},
		},
	}
}

func TestNewBuildsApp(t *testing.T) {
	a, err := New(testConfig(t), "", zap.NewNop())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer a.store.Close()
	if a.engine == nil || a.gateway == nil || a.client == nil {
		t.Fatalf("expected engine, gateway and client to be wired")
	}
	if a.history != nil {
		t.Fatalf("expected no history writer when history is disabled")
	}
	if a.prom != nil {
		t.Fatalf("expected no prometheus registry when metrics are disabled")
	}
}

const reloadConfigV1 = `
feed:
  url: wss://example.test/ws
contracts:
  - symbol: ETH-QUARTER
    exchange: OKX
    price_tick: 0.01
    size: 10
  - symbol: ETH-PERP
    exchange: OKX
    price_tick: 0.01
    size: 10
spreads:
  - name: eth-basis
    active_leg: ETH-QUARTER
    passive_leg: ETH-PERP
    buy_percent: -0.5
    sell_percent: -0.1
    short_percent: 0.5
    cover_percent: 0.1
    max_order_size: 5
    max_pos_size: 20
`

const reloadConfigV2 = `
feed:
  url: wss://example.test/ws
contracts:
  - symbol: ETH-QUARTER
    exchange: OKX
    price_tick: 0.01
    size: 10
  - symbol: ETH-PERP
    exchange: OKX
    price_tick: 0.01
    size: 10
  - symbol: BTC-QUARTER
    exchange: OKX
    price_tick: 0.1
    size: 100
spreads:
  - name: eth-basis
    active_leg: ETH-QUARTER
    passive_leg: ETH-PERP
    buy_percent: -0.5
    sell_percent: -0.1
    short_percent: 0.5
    cover_percent: 0.1
    max_order_size: 5
    max_pos_size: 20
  - name: btc-basis
    active_leg: BTC-QUARTER
    passive_leg: ETH-PERP
    buy_percent: -0.5
    sell_percent: -0.1
    short_percent: 0.5
    cover_percent: 0.1
    max_order_size: 5
    max_pos_size: 20
`

func TestSpreadLoaderReloadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(reloadConfigV1), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	contracts := market.NewRegistry()
	populateContracts(contracts, cfg.Contracts)
	loader := spreadLoader(cfg, path, contracts)

	entries, err := loader()
	if err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	if len(entries) != 1 || entries[0].SpreadName() != "eth-basis" {
		t.Fatalf("unexpected initial entries: %+v", entries)
	}

	// Edit the file the way an operator would during the unwind window.
	if err := os.WriteFile(path, []byte(reloadConfigV2), 0o644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	entries, err = loader()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(entries) != 2 || entries[1].SpreadName() != "btc-basis" {
		t.Fatalf("reload should surface the new spread, got %+v", entries)
	}
	if _, err := contracts.Resolve("BTC-QUARTER"); err != nil {
		t.Fatalf("reload should refresh the contract registry: %v", err)
	}
}

func TestSpreadLoaderWithoutPathPinsSnapshot(t *testing.T) {
	cfg := testConfig(t)
	contracts := market.NewRegistry()
	populateContracts(contracts, cfg.Contracts)
	loader := spreadLoader(cfg, "", contracts)
	entries, err := loader()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(entries) != 1 || entries[0].SpreadName() != "eth-basis" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestRolloverConfigParsesWeekday(t *testing.T) {
	out, err := rolloverConfig(config.RolloverConfig{
		Enabled:       true,
		Weekday:       "friday",
		OpenHour:      15,
		OpenMinute:    30,
		RestartHour:   16,
		RestartMinute: 40,
	})
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !out.Enabled {
		t.Fatalf("expected rollover enabled")
	}
	if out.Open.Weekday != time.Friday || out.Open.Hour != 15 || out.Open.Minute != 30 {
		t.Fatalf("unexpected open window: %+v", out.Open)
	}
	if out.Restart.Hour != 16 || out.Restart.Minute != 40 {
		t.Fatalf("unexpected restart window: %+v", out.Restart)
	}
}

func TestRolloverConfigRejectsBadWeekday(t *testing.T) {
	if _, err := rolloverConfig(config.RolloverConfig{Enabled: true, Weekday: "caturday"}); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestRolloverConfigDisabled(t *testing.T) {
	out, err := rolloverConfig(config.RolloverConfig{Enabled: false, Weekday: "caturday"})
	if err != nil {
		t.Fatalf("disabled rollover should not parse the weekday: %v", err)
	}
	if out.Enabled {
		t.Fatalf("expected disabled rollover")
	}
}
