package main

import (
	"flag"
	"fmt"
	"os"

	"spread-sniper-bot/internal/config"
)

// verify lints bot and backtest configuration files without touching the
// venue. The engine skips broken spread entries at startup; this surfaces
// them before deployment instead.
func main() {
	configPath := flag.String("config", "", "path to bot config file")
	backtestPath := flag.String("backtest", "", "path to backtest config file")
	flag.Parse()

	if *configPath == "" && *backtestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: verify -config <path> [-backtest <path>]")
		os.Exit(2)
	}

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	failed := false
	if *configPath != "" {
		if err := verifyBot(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "bot config: %v\n", err)
			failed = true
		}
	}
	if *backtestPath != "" {
		if err := verifyBacktest(*backtestPath); err != nil {
			fmt.Fprintf(os.Stderr, "backtest config: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func verifyBot(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	contracts := make(map[string]bool, len(cfg.Contracts))
	for _, entry := range cfg.Contracts {
		contracts[entry.Symbol] = true
	}
	bad := 0
	for _, entry := range cfg.Spreads {
		sc := entry.ToSpread()
		if err := sc.Validate(); err != nil {
			fmt.Printf("  spread %-16s INVALID: %v\n", sc.SpreadName(), err)
			bad++
			continue
		}
		missing := ""
		if !contracts[entry.ActiveLeg] {
			missing = entry.ActiveLeg
		} else if !contracts[entry.PassiveLeg] {
			missing = entry.PassiveLeg
		}
		if missing != "" {
			fmt.Printf("  spread %-16s INVALID: contract %s is not configured\n", sc.SpreadName(), missing)
			bad++
			continue
		}
		fmt.Printf("  spread %-16s ok (%s / %s)\n", sc.SpreadName(), entry.ActiveLeg, entry.PassiveLeg)
	}
	fmt.Printf("bot config %s: %d contracts, %d spreads, %d invalid\n", path, len(cfg.Contracts), len(cfg.Spreads), bad)
	if bad > 0 {
		return fmt.Errorf("%d invalid spread entries", bad)
	}
	return nil
}

func verifyBacktest(path string) error {
	cfg, err := config.LoadBacktest(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	fmt.Printf("backtest config %s: spread %s, %s .. %s, %d sweep axes\n",
		path, cfg.Spread.ToSpread().SpreadName(), cfg.Start, cfg.End, len(cfg.Sweep))
	return nil
}
