package backtest

import (
	"math"
	"time"

	"spread-sniper-bot/internal/market"
)

// DailyResult is one day of mark-to-market accounting across both legs.
type DailyResult struct {
	Date       time.Time
	ClosePrice map[string]float64
	PreClose   map[string]float64

	Trades     []market.Fill
	TradeCount int

	StartPos map[string]float64
	EndPos   map[string]float64

	Turnover   float64
	Commission float64
	Slippage   float64

	TradingPnL float64
	HoldingPnL float64
	TotalPnL   float64
	NetPnL     float64
}

func newDailyResult(date time.Time) *DailyResult {
	return &DailyResult{
		Date:       date,
		ClosePrice: make(map[string]float64),
		PreClose:   make(map[string]float64),
		StartPos:   make(map[string]float64),
		EndPos:     make(map[string]float64),
	}
}

// computePnL chains yesterday's closes and positions into today. The inputs
// are copied, never aliased, so later days cannot mutate earlier ones.
func (d *DailyResult) computePnL(preClose, startPos map[string]float64, size, rate, slippage float64, inverse bool) {
	d.PreClose = copyMap(preClose)
	d.StartPos = copyMap(startPos)
	d.EndPos = copyMap(startPos)

	// Holding PnL marks the overnight position from yesterday's close to
	// today's.
	for instrument, close := range d.ClosePrice {
		pos := d.StartPos[instrument]
		pre := d.PreClose[instrument]
		if pos == 0 || pre == 0 || close == 0 {
			continue
		}
		if inverse {
			d.HoldingPnL += pos * (1/pre - 1/close) * size
		} else {
			d.HoldingPnL += pos * (close - pre) * size
		}
	}

	d.TradeCount = len(d.Trades)
	for _, trade := range d.Trades {
		delta := trade.Volume
		if !market.IsBuy(trade.Side, trade.Offset) {
			delta = -trade.Volume
		}
		close := d.ClosePrice[trade.Instrument]

		var turnover float64
		if inverse {
			if trade.Price != 0 {
				turnover = trade.Volume * size / trade.Price
			}
			if trade.Price != 0 && close != 0 {
				d.TradingPnL += delta * (1/trade.Price - 1/close) * size
			}
		} else {
			turnover = trade.Volume * size * trade.Price
			if close != 0 {
				d.TradingPnL += delta * (close - trade.Price) * size
			}
		}

		d.EndPos[trade.Instrument] += delta
		d.Turnover += turnover
		d.Commission += turnover * rate
		d.Slippage += trade.Volume * size * slippage
	}

	d.TotalPnL = d.TradingPnL + d.HoldingPnL
	d.NetPnL = d.TotalPnL - d.Commission - d.Slippage
}

func copyMap(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Statistics summarizes a full replay in the usual daily-return terms.
// Percent-valued fields carry the factor of 100 baked in.
type Statistics struct {
	StartDate time.Time
	EndDate   time.Time

	TotalDays  int
	ProfitDays int
	LossDays   int

	Capital      float64
	EndBalance   float64
	MaxDrawdown  float64
	MaxDDPercent float64

	TotalNetPnL     float64
	DailyNetPnL     float64
	TotalCommission float64
	TotalSlippage   float64
	TotalTurnover   float64
	TotalTradeCount int

	TotalReturn  float64
	AnnualReturn float64
	DailyReturn  float64
	ReturnStd    float64
	SharpeRatio  float64
}

// Metric returns a named statistic for optimization ranking.
func (s Statistics) Metric(name string) (float64, bool) {
	switch name {
	case "sharpe_ratio":
		return s.SharpeRatio, true
	case "total_return":
		return s.TotalReturn, true
	case "annual_return":
		return s.AnnualReturn, true
	case "total_net_pnl":
		return s.TotalNetPnL, true
	case "end_balance":
		return s.EndBalance, true
	case "max_drawdown":
		return s.MaxDrawdown, true
	}
	return 0, false
}

func calculateStatistics(days []*DailyResult, capital float64, annualDays int, riskFree float64) Statistics {
	stats := Statistics{Capital: capital}
	if len(days) == 0 {
		return stats
	}
	stats.StartDate = days[0].Date
	stats.EndDate = days[len(days)-1].Date
	stats.TotalDays = len(days)

	balance := capital
	highLevel := capital
	returns := make([]float64, 0, len(days))
	for _, day := range days {
		prev := balance
		balance += day.NetPnL
		if day.NetPnL > 0 {
			stats.ProfitDays++
		} else if day.NetPnL < 0 {
			stats.LossDays++
		}
		if balance > highLevel {
			highLevel = balance
		}
		drawdown := balance - highLevel
		if drawdown < stats.MaxDrawdown {
			stats.MaxDrawdown = drawdown
		}
		if highLevel != 0 {
			if ddPercent := drawdown / highLevel * 100; ddPercent < stats.MaxDDPercent {
				stats.MaxDDPercent = ddPercent
			}
		}
		if prev > 0 && balance > 0 {
			returns = append(returns, math.Log(balance/prev))
		} else {
			returns = append(returns, 0)
		}

		stats.TotalNetPnL += day.NetPnL
		stats.TotalCommission += day.Commission
		stats.TotalSlippage += day.Slippage
		stats.TotalTurnover += day.Turnover
		stats.TotalTradeCount += day.TradeCount
	}

	stats.EndBalance = balance
	stats.TotalReturn = (balance/capital - 1) * 100
	stats.AnnualReturn = stats.TotalReturn / float64(stats.TotalDays) * float64(annualDays)

	mean := meanOf(returns)
	std := sampleStd(returns, mean)
	stats.DailyReturn = mean * 100
	stats.ReturnStd = std * 100
	// Sharpe uses the daily excess return over the annual risk-free rate.
	if std != 0 {
		excess := mean - riskFree/float64(annualDays)
		stats.SharpeRatio = excess / std * math.Sqrt(float64(annualDays))
	}
	return stats
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n-1 standard deviation, matching how daily return spread
// is conventionally annualized.
func sampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Result is the full output of one replay.
type Result struct {
	Days       []*DailyResult
	Trades     []market.Fill
	Statistics Statistics
}
