package backtest

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// SweepRange is one optimization axis over a spread parameter. End is
// inclusive up to floating point wobble.
type SweepRange struct {
	Name  string
	Start float64
	End   float64
	Step  float64
}

func (r SweepRange) values() []float64 {
	if r.Step <= 0 || r.End < r.Start {
		return []float64{r.Start}
	}
	var out []float64
	for i := 0; ; i++ {
		v := r.Start + float64(i)*r.Step
		if v > r.End+r.Step/1e9 {
			break
		}
		out = append(out, v)
	}
	return out
}

// Setting is one concrete point of the sweep grid.
type Setting map[string]float64

func generateSettings(ranges []SweepRange) []Setting {
	settings := []Setting{{}}
	for _, r := range ranges {
		var next []Setting
		for _, base := range settings {
			for _, v := range r.values() {
				setting := make(Setting, len(base)+1)
				for k, val := range base {
					setting[k] = val
				}
				setting[r.Name] = v
				next = append(next, setting)
			}
		}
		settings = next
	}
	return settings
}

func applySetting(params Params, setting Setting) (Params, error) {
	for name, value := range setting {
		switch name {
		case "buy_percent":
			params.Spread.BuyPercent = value
		case "sell_percent":
			params.Spread.SellPercent = value
		case "short_percent":
			params.Spread.ShortPercent = value
		case "cover_percent":
			params.Spread.CoverPercent = value
		case "active_payup":
			params.Spread.ActivePayup = value
		case "passive_payup":
			params.Spread.PassivePayup = value
		case "max_order_size":
			params.Spread.MaxOrderSize = value
		case "max_pos_size":
			params.Spread.MaxPosSize = value
		default:
			return params, fmt.Errorf("unknown sweep parameter %q", name)
		}
	}
	return params, nil
}

// OptimizationResult pairs a grid point with the metric it achieved.
type OptimizationResult struct {
	Setting    Setting
	Target     float64
	Statistics Statistics
}

// Optimize runs the full cartesian sweep, one independent replay per grid
// point, and returns results sorted best first. Replays run in parallel;
// each has its own engine so no state is shared.
func Optimize(params Params, ranges []SweepRange, target string, log *zap.Logger) ([]OptimizationResult, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("at least one sweep range is required")
	}
	if _, ok := (Statistics{}).Metric(target); !ok {
		return nil, fmt.Errorf("unknown optimization target %q", target)
	}
	if log == nil {
		log = zap.NewNop()
	}
	settings := generateSettings(ranges)
	for _, setting := range settings {
		if _, err := applySetting(params, setting); err != nil {
			return nil, err
		}
	}
	log.Info("optimization started",
		zap.Int("settings", len(settings)),
		zap.String("target", target))

	results := make([]OptimizationResult, len(settings))
	errs := make([]error, len(settings))

	var wg sync.WaitGroup
	sem := make(chan struct{}, max(1, runtime.NumCPU()))
	for i, setting := range settings {
		wg.Add(1)
		go func(i int, setting Setting) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			runParams, err := applySetting(params, setting)
			if err != nil {
				errs[i] = err
				return
			}
			engine, err := NewEngine(runParams, zap.NewNop())
			if err != nil {
				errs[i] = err
				return
			}
			result, err := engine.Run()
			if err != nil {
				errs[i] = err
				return
			}
			metric, _ := result.Statistics.Metric(target)
			results[i] = OptimizationResult{
				Setting:    setting,
				Target:     metric,
				Statistics: result.Statistics,
			}
		}(i, setting)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Target > results[j].Target
	})
	log.Info("optimization finished", zap.Int("settings", len(results)))
	return results, nil
}
