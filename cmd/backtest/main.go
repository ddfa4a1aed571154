package main

import (
	"flag"
	"fmt"
	"os"

	"spread-sniper-bot/internal/backtest"
	"spread-sniper-bot/internal/config"
	"spread-sniper-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/backtest.yaml", "path to backtest config file")
	flag.Parse()

	cfg, err := config.LoadBacktest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(config.LoggingConfig{Level: "info"})

	params, err := buildParams(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.Sweep) > 0 {
		runSweep(cfg, params, log)
		return
	}
	runSingle(params, log)
}

func buildParams(cfg *config.BacktestConfig) (backtest.Params, error) {
	start, err := cfg.StartTime()
	if err != nil {
		return backtest.Params{}, err
	}
	end, err := cfg.EndTime()
	if err != nil {
		return backtest.Params{}, err
	}
	return backtest.Params{
		Spread:            cfg.Spread.ToSpread(),
		DataDir:           cfg.DataDir,
		Start:             start,
		End:               end,
		Capital:           cfg.Capital,
		Rate:              cfg.Rate,
		Slippage:          cfg.Slippage,
		Size:              cfg.Size,
		PriceTick:         cfg.PriceTick,
		Inverse:           cfg.Inverse,
		AnnualDays:        cfg.AnnualDays,
		RiskFree:          cfg.RiskFree,
		QuoteTimeoutTicks: cfg.QuoteTimeoutTicks,
	}, nil
}

func runSingle(params backtest.Params, log *zap.Logger) {
	engine, err := backtest.NewEngine(params, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine setup failed: %v\n", err)
		os.Exit(1)
	}
	result, err := engine.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	printStatistics(result.Statistics)
}

func runSweep(cfg *config.BacktestConfig, params backtest.Params, log *zap.Logger) {
	ranges := make([]backtest.SweepRange, 0, len(cfg.Sweep))
	for _, entry := range cfg.Sweep {
		ranges = append(ranges, backtest.SweepRange{
			Name:  entry.Name,
			Start: entry.Start,
			End:   entry.End,
			Step:  entry.Step,
		})
	}
	results, err := backtest.Optimize(params, ranges, cfg.Target, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "optimization failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("optimization target: %s\n", cfg.Target)
	for i, res := range results {
		fmt.Printf("%3d. %-12.4f %v\n", i+1, res.Target, res.Setting)
	}
}

func printStatistics(stats backtest.Statistics) {
	fmt.Printf("period:           %s .. %s\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Printf("trading days:     %d (profit %d, loss %d)\n", stats.TotalDays, stats.ProfitDays, stats.LossDays)
	fmt.Printf("capital:          %.2f\n", stats.Capital)
	fmt.Printf("end balance:      %.2f\n", stats.EndBalance)
	fmt.Printf("total net pnl:    %.2f\n", stats.TotalNetPnL)
	fmt.Printf("daily net pnl:    %.2f\n", stats.DailyNetPnL)
	fmt.Printf("commission:       %.2f\n", stats.TotalCommission)
	fmt.Printf("slippage:         %.2f\n", stats.TotalSlippage)
	fmt.Printf("turnover:         %.2f\n", stats.TotalTurnover)
	fmt.Printf("trade count:      %d\n", stats.TotalTradeCount)
	fmt.Printf("max drawdown:     %.2f (%.2f%%)\n", stats.MaxDrawdown, stats.MaxDDPercent)
	fmt.Printf("total return:     %.2f%%\n", stats.TotalReturn)
	fmt.Printf("annual return:    %.2f%%\n", stats.AnnualReturn)
	fmt.Printf("daily return:     %.4f%%\n", stats.DailyReturn)
	fmt.Printf("return std:       %.4f%%\n", stats.ReturnStd)
	fmt.Printf("sharpe ratio:     %.2f\n", stats.SharpeRatio)
}
