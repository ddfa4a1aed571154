package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"spread-sniper-bot/internal/spread"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	State     StateConfig     `yaml:"state"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Engine    EngineConfig    `yaml:"engine"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Contracts []ContractEntry `yaml:"contracts"`
	Spreads   []SpreadEntry   `yaml:"spreads"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type EngineConfig struct {
	TimerInterval     time.Duration  `yaml:"timer_interval"`
	QuoteTimeoutTicks int            `yaml:"quote_timeout_ticks"`
	QueueSize         int            `yaml:"queue_size"`
	Rollover          RolloverConfig `yaml:"rollover"`
}

type RolloverConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Weekday       string `yaml:"weekday"`
	OpenHour      int    `yaml:"open_hour"`
	OpenMinute    int    `yaml:"open_minute"`
	RestartHour   int    `yaml:"restart_hour"`
	RestartMinute int    `yaml:"restart_minute"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type ContractEntry struct {
	Symbol    string  `yaml:"symbol"`
	Exchange  string  `yaml:"exchange"`
	PriceTick float64 `yaml:"price_tick"`
	Size      float64 `yaml:"size"`
}

type SpreadEntry struct {
	Name         string  `yaml:"name"`
	ActiveLeg    string  `yaml:"active_leg"`
	PassiveLeg   string  `yaml:"passive_leg"`
	Algo         string  `yaml:"algo"`
	BuyPercent   float64 `yaml:"buy_percent"`
	SellPercent  float64 `yaml:"sell_percent"`
	ShortPercent float64 `yaml:"short_percent"`
	CoverPercent float64 `yaml:"cover_percent"`
	ActivePayup  float64 `yaml:"active_payup"`
	PassivePayup float64 `yaml:"passive_payup"`
	MaxOrderSize float64 `yaml:"max_order_size"`
	MaxPosSize   float64 `yaml:"max_pos_size"`
}

// ToSpread maps a yaml entry onto the runtime spread definition.
func (e SpreadEntry) ToSpread() spread.Config {
	return spread.Config{
		Name:         e.Name,
		Active:       e.ActiveLeg,
		Passive:      e.PassiveLeg,
		Algo:         e.Algo,
		BuyPercent:   e.BuyPercent,
		SellPercent:  e.SellPercent,
		ShortPercent: e.ShortPercent,
		CoverPercent: e.CoverPercent,
		ActivePayup:  e.ActivePayup,
		PassivePayup: e.PassivePayup,
		MaxOrderSize: e.MaxOrderSize,
		MaxPosSize:   e.MaxPosSize,
	}
}

// ParseWeekday accepts full English weekday names, case insensitive.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SNIPER_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("SNIPER_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/spread-sniper-bot.db"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Engine.TimerInterval == 0 {
		cfg.Engine.TimerInterval = time.Second
	}
	if cfg.Engine.QuoteTimeoutTicks == 0 {
		cfg.Engine.QuoteTimeoutTicks = 16
	}
	if cfg.Engine.Rollover.Weekday == "" {
		cfg.Engine.Rollover.Weekday = "Friday"
	}
	if cfg.Engine.Rollover.OpenHour == 0 && cfg.Engine.Rollover.OpenMinute == 0 {
		cfg.Engine.Rollover.OpenHour, cfg.Engine.Rollover.OpenMinute = 15, 30
	}
	if cfg.Engine.Rollover.RestartHour == 0 && cfg.Engine.Rollover.RestartMinute == 0 {
		cfg.Engine.Rollover.RestartHour, cfg.Engine.Rollover.RestartMinute = 16, 40
	}
}

func validate(cfg *Config) error {
	if cfg.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if len(cfg.Spreads) == 0 {
		return errors.New("at least one spread is required")
	}
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.DSN) == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	if cfg.Engine.Rollover.Enabled {
		if _, err := ParseWeekday(cfg.Engine.Rollover.Weekday); err != nil {
			return fmt.Errorf("engine.rollover: %w", err)
		}
	}
	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return errors.New("telegram.token is required when telegram is enabled")
		}
		if strings.TrimSpace(cfg.Telegram.ChatID) == "" {
			return errors.New("telegram.chat_id is required when telegram is enabled")
		}
	}
	seen := make(map[string]bool, len(cfg.Contracts))
	for i, entry := range cfg.Contracts {
		if entry.Symbol == "" {
			return fmt.Errorf("contracts[%d].symbol is required", i)
		}
		if seen[entry.Symbol] {
			return fmt.Errorf("contracts[%d]: duplicate symbol %s", i, entry.Symbol)
		}
		seen[entry.Symbol] = true
		if entry.PriceTick <= 0 {
			return fmt.Errorf("contract %s: price_tick must be > 0", entry.Symbol)
		}
		if entry.Size <= 0 {
			return fmt.Errorf("contract %s: size must be > 0", entry.Symbol)
		}
	}
	// Individual spread entries are validated when the engine registers
	// them, so one bad entry does not block the rest.
	return nil
}
