package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

type BacktestConfig struct {
	DataDir           string       `yaml:"data_dir"`
	Start             string       `yaml:"start"`
	End               string       `yaml:"end"`
	Capital           float64      `yaml:"capital"`
	Rate              float64      `yaml:"rate"`
	Slippage          float64      `yaml:"slippage"`
	Size              float64      `yaml:"size"`
	PriceTick         float64      `yaml:"price_tick"`
	Inverse           bool         `yaml:"inverse"`
	RiskFree          float64      `yaml:"risk_free"`
	AnnualDays        int          `yaml:"annual_days"`
	QuoteTimeoutTicks int          `yaml:"quote_timeout_ticks"`
	Spread            SpreadEntry  `yaml:"spread"`
	Sweep             []SweepEntry `yaml:"sweep"`
	Target            string       `yaml:"target"`
}

// SweepEntry describes one optimization axis: the spread parameter name and
// the inclusive value range to step through.
type SweepEntry struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Step  float64 `yaml:"step"`
}

func (c BacktestConfig) StartTime() (time.Time, error) {
	return time.Parse(dateLayout, c.Start)
}

func (c BacktestConfig) EndTime() (time.Time, error) {
	return time.Parse(dateLayout, c.End)
}

func LoadBacktest(path string) (*BacktestConfig, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg BacktestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyBacktestDefaults(&cfg)
	return &cfg, validateBacktest(&cfg)
}

func applyBacktestDefaults(cfg *BacktestConfig) {
	if cfg.Capital == 0 {
		cfg.Capital = 1_000_000
	}
	if cfg.AnnualDays == 0 {
		cfg.AnnualDays = 365
	}
	if cfg.QuoteTimeoutTicks == 0 {
		cfg.QuoteTimeoutTicks = 16
	}
	if cfg.Target == "" {
		cfg.Target = "sharpe_ratio"
	}
}

func validateBacktest(cfg *BacktestConfig) error {
	if cfg.DataDir == "" {
		return errors.New("data_dir is required")
	}
	start, err := cfg.StartTime()
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := cfg.EndTime()
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return errors.New("end must be after start")
	}
	if cfg.Size <= 0 {
		return errors.New("size must be > 0")
	}
	if cfg.PriceTick <= 0 {
		return errors.New("price_tick must be > 0")
	}
	if err := cfg.Spread.ToSpread().Validate(); err != nil {
		return fmt.Errorf("spread: %w", err)
	}
	for i, sweep := range cfg.Sweep {
		if sweep.Name == "" {
			return fmt.Errorf("sweep[%d].name is required", i)
		}
		if sweep.Step <= 0 {
			return fmt.Errorf("sweep[%d].step must be > 0", i)
		}
		if sweep.End < sweep.Start {
			return fmt.Errorf("sweep[%d]: end must be >= start", i)
		}
	}
	return nil
}
