package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Feed: FeedConfig{URL: "wss://stream.example.com/ws"},
		Spreads: []SpreadEntry{{
			Name:         "eth-basis",
			ActiveLeg:    "ETH-QUARTER",
			PassiveLeg:   "ETH-PERP",
			BuyPercent:   -0.5,
			SellPercent:  -0.1,
			ShortPercent: 0.5,
			CoverPercent: 0.1,
			MaxOrderSize: 5,
			MaxPosSize:   20,
		}},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Log.Level != "info" {
		t.Fatalf("expected log level default, got %q", cfg.Log.Level)
	}
	if cfg.Feed.ReconnectDelay != 3*time.Second {
		t.Fatalf("expected reconnect delay default, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Feed.PingInterval != 30*time.Second {
		t.Fatalf("expected ping interval default, got %v", cfg.Feed.PingInterval)
	}
	if cfg.Engine.TimerInterval != time.Second {
		t.Fatalf("expected timer interval default, got %v", cfg.Engine.TimerInterval)
	}
	if cfg.Engine.QuoteTimeoutTicks != 16 {
		t.Fatalf("expected quote timeout default, got %d", cfg.Engine.QuoteTimeoutTicks)
	}
	if cfg.Engine.Rollover.Weekday != "Friday" {
		t.Fatalf("expected rollover weekday default, got %q", cfg.Engine.Rollover.Weekday)
	}
	if cfg.Engine.Rollover.OpenHour != 15 || cfg.Engine.Rollover.OpenMinute != 30 {
		t.Fatalf("expected rollover open default, got %d:%d", cfg.Engine.Rollover.OpenHour, cfg.Engine.Rollover.OpenMinute)
	}
	if cfg.Metrics.Listen != ":9090" {
		t.Fatalf("expected metrics listen default, got %q", cfg.Metrics.Listen)
	}
}

func TestValidateRequiresFeedURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Feed.URL = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing feed url")
	}
}

func TestValidateRequiresSpreads(t *testing.T) {
	cfg := baseConfig()
	cfg.Spreads = nil
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for empty spreads")
	}
}

func TestValidateRequiresHistoryDSNWhenEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.History.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for enabled history without dsn")
	}
}

func TestValidateRejectsBadContract(t *testing.T) {
	cfg := baseConfig()
	cfg.Contracts = []ContractEntry{{Symbol: "ETH-PERP", PriceTick: 0, Size: 1}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for zero price tick")
	}
}

func TestValidateRejectsDuplicateContract(t *testing.T) {
	cfg := baseConfig()
	cfg.Contracts = []ContractEntry{
		{Symbol: "ETH-PERP", PriceTick: 0.01, Size: 1},
		{Symbol: "ETH-PERP", PriceTick: 0.05, Size: 1},
	}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for duplicate contract symbol")
	}
}

func TestValidateRejectsBadRolloverWeekday(t *testing.T) {
	cfg := baseConfig()
	cfg.Engine.Rollover.Enabled = true
	cfg.Engine.Rollover.Weekday = "Freitag"
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestValidateRejectsTelegramEnabledWithoutCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.Enabled = true
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram credentials")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("SNIPER_TELEGRAM_TOKEN", "env-token")
	t.Setenv("SNIPER_TELEGRAM_CHAT_ID", "123")
	cfg := baseConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token to win, got %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id to win, got %s", cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" friday ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if day != time.Friday {
		t.Fatalf("expected Friday, got %v", day)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := `
feed:
  url: wss://stream.example.com/ws
contracts:
  - symbol: ETH-QUARTER
    exchange: okx
    price_tick: 0.01
    size: 10
  - symbol: ETH-PERP
    exchange: okx
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
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Spreads) != 1 || cfg.Spreads[0].Name != "eth-basis" {
		t.Fatalf("unexpected spreads: %+v", cfg.Spreads)
	}
	sp := cfg.Spreads[0].ToSpread()
	if sp.Active != "ETH-QUARTER" || sp.Passive != "ETH-PERP" {
		t.Fatalf("unexpected spread mapping: %+v", sp)
	}
}

func TestLoadBacktestDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	payload := `
data_dir: testdata
start: 2025-01-01
end: 2025-02-01
rate: 0.0005
slippage: 0.2
size: 10
price_tick: 0.01
spread:
  name: eth-basis
  active_leg: ETH-QUARTER
  passive_leg: ETH-PERP
  buy_percent: -0.5
  sell_percent: -0.1
  short_percent: 0.5
  cover_percent: 0.1
  max_order_size: 5
  max_pos_size: 20
`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadBacktest(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Capital != 1_000_000 {
		t.Fatalf("expected capital default, got %v", cfg.Capital)
	}
	if cfg.AnnualDays != 365 {
		t.Fatalf("expected annual days default, got %v", cfg.AnnualDays)
	}
	if cfg.Target != "sharpe_ratio" {
		t.Fatalf("expected target default, got %q", cfg.Target)
	}
}

func TestLoadBacktestRejectsReversedDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	payload := `
data_dir: testdata
start: 2025-02-01
end: 2025-01-01
size: 10
price_tick: 0.01
spread:
  name: eth-basis
  active_leg: ETH-QUARTER
  passive_leg: ETH-PERP
  buy_percent: -0.5
  sell_percent: -0.1
  short_percent: 0.5
  cover_percent: 0.1
  max_order_size: 5
  max_pos_size: 20
`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadBacktest(path); err == nil {
		t.Fatalf("expected error for end before start")
	}
}
