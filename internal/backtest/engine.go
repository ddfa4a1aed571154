// Package backtest replays recorded leg ticks through the sniper algorithm
// with a deterministic limit-order matching model and computes daily
// mark-to-market results.
package backtest

import (
	"fmt"
	"strconv"
	"time"

	"spread-sniper-bot/internal/algo"
	"spread-sniper-bot/internal/market"
	"spread-sniper-bot/internal/spread"
	"spread-sniper-bot/internal/tickdata"

	"go.uber.org/zap"
)

// Params fixes one backtest run. Size is the contract multiplier, Rate the
// commission rate on turnover, Slippage a per-contract cost. Inverse selects
// coin-margined PnL where profit is measured in 1/price terms.
type Params struct {
	Spread            spread.Config
	DataDir           string
	Start             time.Time
	End               time.Time
	Capital           float64
	Rate              float64
	Slippage          float64
	Size              float64
	PriceTick         float64
	Inverse           bool
	AnnualDays        int
	RiskFree          float64
	QuoteTimeoutTicks int
}

func (p Params) validate() error {
	if p.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if !p.End.After(p.Start) {
		return fmt.Errorf("end %v must be after start %v", p.End, p.Start)
	}
	if p.Size <= 0 {
		return fmt.Errorf("size must be > 0")
	}
	if p.PriceTick <= 0 {
		return fmt.Errorf("price tick must be > 0")
	}
	if p.Capital <= 0 {
		return fmt.Errorf("capital must be > 0")
	}
	return p.Spread.Validate()
}

// Engine is a single-spread replay engine. It implements algo.OrderRouter so
// the production algorithm runs against it unchanged.
type Engine struct {
	params Params
	log    *zap.Logger

	spread *spread.Spread
	sniper *algo.Sniper

	orderSeq    int
	tradeSeq    int
	orders      map[string]*market.Order
	activeIDs   []string
	trades      []market.Fill
	cancelQueue []string

	now     time.Time
	daily   map[time.Time]*DailyResult
	dayKeys []time.Time
}

func NewEngine(params Params, log *zap.Logger) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	sp, err := spread.New(params.Spread)
	if err != nil {
		return nil, err
	}
	// Positions come exclusively from simulated fills, so the live snapshot
	// confirmation gate has nothing to wait for.
	sp.MarkConfirmed()
	e := &Engine{
		params: params,
		log:    log,
		spread: sp,
		orders: make(map[string]*market.Order),
		daily:  make(map[time.Time]*DailyResult),
	}
	e.sniper = algo.NewSniper(sp, e, params.QuoteTimeoutTicks, log)
	return e, nil
}

// Run replays the tick history and returns the computed result. The replay
// is fully deterministic: same files, same params, same result.
func (e *Engine) Run() (*Result, error) {
	ticks, err := tickdata.LoadMerged(
		e.params.DataDir,
		[]string{e.params.Spread.Active, e.params.Spread.Passive},
		e.params.Start, e.params.End,
	)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("no ticks between %v and %v", e.params.Start, e.params.End)
	}
	if err := e.sniper.Start(); err != nil {
		return nil, err
	}
	e.log.Info("replay started",
		zap.String("spread", e.spread.Name),
		zap.Int("ticks", len(ticks)))

	for _, tick := range ticks {
		e.processTick(tick)
	}

	e.log.Info("replay finished",
		zap.String("spread", e.spread.Name),
		zap.Int("trades", len(e.trades)))
	return e.buildResult()
}

func (e *Engine) processTick(tick market.Tick) {
	e.now = tick.Time
	e.crossOrders(tick)
	e.flushCancels()
	if e.spread.UpdateQuote(tick) && e.spread.HasQuote() {
		e.sniper.OnSpreadTick()
	}
	e.updateDailyClose(tick)
	e.sniper.OnTimer()
	e.flushCancels()
}

// crossOrders matches resting orders against the fresh book. Crossing fills
// the whole order: buys cross when the ask trades through the limit, sells
// when the bid does. The order update reaches the algorithm before the fill
// moves the position, mirroring the live event order.
func (e *Engine) crossOrders(tick market.Tick) {
	resting := make([]string, len(e.activeIDs))
	copy(resting, e.activeIDs)

	for _, id := range resting {
		order, ok := e.orders[id]
		if !ok || order.Status.Terminal() {
			continue
		}
		if order.Instrument != tick.Instrument {
			continue
		}

		isBuy := market.IsBuy(order.Side, order.Offset)
		var crossed bool
		var fillPrice float64
		if isBuy {
			crossed = tick.AskPrice > 0 && order.Price >= tick.AskPrice
			fillPrice = min(order.Price, tick.AskPrice)
		} else {
			crossed = tick.BidPrice > 0 && order.Price <= tick.BidPrice
			fillPrice = max(order.Price, tick.BidPrice)
		}
		if !crossed {
			continue
		}

		order.Traded = order.Volume
		order.Status = market.StatusAllTraded
		order.Time = e.now
		e.removeActive(id)
		if err := e.sniper.OnOrder(*order); err != nil {
			e.log.Error("order routing corrupt", zap.Error(err))
			continue
		}

		e.tradeSeq++
		fill := market.Fill{
			TradeID:    strconv.Itoa(e.tradeSeq),
			OrderID:    order.ID,
			Instrument: order.Instrument,
			Strategy:   order.Strategy,
			Side:       order.Side,
			Offset:     order.Offset,
			Price:      fillPrice,
			Volume:     order.Volume,
			Time:       e.now,
		}
		if order.Side == market.SideLong {
			fill.LongDelta = order.Volume
			if order.Offset == market.OffsetClose {
				fill.LongDelta = -order.Volume
			}
		} else {
			fill.ShortDelta = order.Volume
			if order.Offset == market.OffsetClose {
				fill.ShortDelta = -order.Volume
			}
		}
		e.spread.ApplyFill(fill)
		e.trades = append(e.trades, fill)
	}
}

// SendOrder implements algo.OrderRouter.
func (e *Engine) SendOrder(instrument string, side market.Side, offset market.Offset, price, volume, payup float64, strategy string) (string, error) {
	e.orderSeq++
	id := strconv.Itoa(e.orderSeq)
	order := &market.Order{
		ID:         id,
		Instrument: instrument,
		Strategy:   strategy,
		Side:       side,
		Offset:     offset,
		Price:      market.PayupPrice(price, side, offset, payup, e.params.PriceTick),
		Volume:     volume,
		Status:     market.StatusNotTraded,
		Time:       e.now,
	}
	e.orders[id] = order
	e.activeIDs = append(e.activeIDs, id)
	return id, nil
}

// CancelOrder implements algo.OrderRouter. The terminal update is delivered
// after the current callback unwinds, so the algorithm never observes its
// own cancel mid-handler.
func (e *Engine) CancelOrder(_ string, orderID string) {
	e.cancelQueue = append(e.cancelQueue, orderID)
}

// Unwound implements algo.OrderRouter. The replay has no rollover teardown,
// so a completed unwind is only logged.
func (e *Engine) Unwound(spreadName string) {
	e.log.Info("spread reported flat", zap.String("spread", spreadName))
}

func (e *Engine) flushCancels() {
	for len(e.cancelQueue) > 0 {
		pending := e.cancelQueue
		e.cancelQueue = nil
		for _, id := range pending {
			order, ok := e.orders[id]
			if !ok || order.Status.Terminal() {
				continue
			}
			order.Status = market.StatusCancelled
			order.Time = e.now
			e.removeActive(id)
			// A cancelled hedge residual triggers a rehedge inside
			// OnOrder, which may enqueue further orders.
			if err := e.sniper.OnOrder(*order); err != nil {
				e.log.Error("order routing corrupt", zap.Error(err))
			}
		}
	}
}

func (e *Engine) removeActive(id string) {
	for i, existing := range e.activeIDs {
		if existing == id {
			e.activeIDs = append(e.activeIDs[:i], e.activeIDs[i+1:]...)
			return
		}
	}
}

func (e *Engine) updateDailyClose(tick market.Tick) {
	mid := tick.Mid()
	if mid == 0 {
		return
	}
	day := tick.Time.UTC().Truncate(24 * time.Hour)
	result, ok := e.daily[day]
	if !ok {
		result = newDailyResult(day)
		e.daily[day] = result
		e.dayKeys = append(e.dayKeys, day)
	}
	result.ClosePrice[tick.Instrument] = mid
}

func (e *Engine) buildResult() (*Result, error) {
	for _, fill := range e.trades {
		day := fill.Time.UTC().Truncate(24 * time.Hour)
		result, ok := e.daily[day]
		if !ok {
			return nil, fmt.Errorf("trade on %v has no daily close", day)
		}
		result.Trades = append(result.Trades, fill)
	}

	days := make([]*DailyResult, 0, len(e.dayKeys))
	preClose := map[string]float64{}
	startPos := map[string]float64{}
	for _, day := range e.dayKeys {
		result := e.daily[day]
		result.computePnL(preClose, startPos, e.params.Size, e.params.Rate, e.params.Slippage, e.params.Inverse)
		preClose = result.ClosePrice
		startPos = result.EndPos
		days = append(days, result)
	}

	return &Result{
		Days:       days,
		Trades:     e.trades,
		Statistics: calculateStatistics(days, e.params.Capital, e.params.AnnualDays, e.params.RiskFree),
	}, nil
}
