package algo

import (
	"fmt"

	"spread-sniper-bot/internal/market"
	"spread-sniper-bot/internal/spread"

	"go.uber.org/zap"
)

// defaultQuoteInterval is the number of timer ticks a resting quote may sit
// unfilled before it is pulled.
const defaultQuoteInterval = 16

// OrderRouter is the slice of the orchestration engine the algorithm needs:
// submit and cancel leg orders, and signal that unwinding finished. Both the
// live engine and the backtest engine implement it.
type OrderRouter interface {
	SendOrder(instrument string, side market.Side, offset market.Offset, price, volume, payup float64, strategy string) (string, error)
	CancelOrder(instrument, orderID string)
	Unwound(spreadName string)
}

// Sniper is the market-order-style execution state machine: quote the active
// leg when the spread crosses a threshold, hedge every active fill on the
// passive leg immediately, rehedge anything a cancelled or rejected hedge
// left uncovered.
type Sniper struct {
	spread *spread.Spread
	router OrderRouter
	log    *zap.Logger

	active            string
	passive           string
	running           bool
	quoteInterval     int
	activeQuoteCount  int
	passiveQuoteCount int

	activeOrders  *orderSet
	passiveOrders *orderSet
	traded        map[string]float64
}

// NewSniper wires an algorithm instance to its spread. quoteInterval <= 0
// selects the default.
func NewSniper(sp *spread.Spread, router OrderRouter, quoteInterval int, log *zap.Logger) *Sniper {
	if quoteInterval <= 0 {
		quoteInterval = defaultQuoteInterval
	}
	return &Sniper{
		spread:        sp,
		router:        router,
		log:           log,
		active:        sp.ActiveLeg().Instrument,
		passive:       sp.PassiveLeg().Instrument,
		quoteInterval: quoteInterval,
		activeOrders:  newOrderSet(),
		passiveOrders: newOrderSet(),
		traded:        make(map[string]float64),
	}
}

// Start checks threshold sanity and arms the algorithm. A spread whose entry
// band overlaps its exit band would churn open/close orders forever, so it is
// refused outright.
func (a *Sniper) Start() error {
	if a.running {
		return nil
	}
	if a.spread.BuyPercent >= a.spread.CoverPercent {
		return fmt.Errorf("spread %s: buy_percent %.6f must be below cover_percent %.6f",
			a.spread.Name, a.spread.BuyPercent, a.spread.CoverPercent)
	}
	if a.spread.ShortPercent <= a.spread.SellPercent {
		return fmt.Errorf("spread %s: short_percent %.6f must be above sell_percent %.6f",
			a.spread.Name, a.spread.ShortPercent, a.spread.SellPercent)
	}
	a.running = true
	a.log.Info("sniper started", zap.String("spread", a.spread.Name))
	return nil
}

// Stop disarms the algorithm; outstanding orders keep flowing through
// OnOrder so accounting stays correct.
func (a *Sniper) Stop() {
	a.running = false
	a.log.Info("sniper stopped", zap.String("spread", a.spread.Name))
}

func (a *Sniper) Running() bool { return a.running }

// Spread exposes the owned spread for the engine's routing and persistence.
func (a *Sniper) Spread() *spread.Spread { return a.spread }

// OutstandingOrders reports how many leg orders are still working.
func (a *Sniper) OutstandingOrders() int {
	return a.activeOrders.Len() + a.passiveOrders.Len()
}

// OnSpreadTick evaluates the refreshed spread against the four thresholds.
// Precedence is fixed: buy, sell, short, cover; with a flat book and
// overlapping signals the long entry wins.
func (a *Sniper) OnSpreadTick() {
	if !a.running {
		return
	}
	if a.activeOrders.Len() > 0 || a.passiveOrders.Len() > 0 {
		return
	}
	sp := a.spread
	leg := sp.ActiveLeg()

	// When the active leg alone is over the cap the spread netting is no
	// longer trustworthy; only exits are allowed until it drains.
	if leg.Long > sp.MaxPosSize+sp.MaxOrderSize || leg.Short > sp.MaxPosSize+sp.MaxOrderSize {
		if sp.Net > 0 && sp.BidPercent >= sp.SellPercent {
			a.quoteActiveLeg(market.OrderSell)
		} else if sp.Net < 0 && sp.AskPercent <= sp.CoverPercent {
			a.quoteActiveLeg(market.OrderCover)
		}
		return
	}

	switch {
	case sp.Net >= 0 && sp.Net < sp.MaxPosSize && sp.AskPercent <= sp.BuyPercent:
		a.quoteActiveLeg(market.OrderBuy)
	case sp.Net > 0 && sp.BidPercent >= sp.SellPercent:
		a.quoteActiveLeg(market.OrderSell)
	case sp.Net <= 0 && sp.Net > -sp.MaxPosSize && sp.BidPercent >= sp.ShortPercent:
		a.quoteActiveLeg(market.OrderShort)
	case sp.Net < 0 && sp.AskPercent <= sp.CoverPercent:
		a.quoteActiveLeg(market.OrderCover)
	}
}

// ClosePosition replaces threshold evaluation while the rollover window is
// open: flatten at the best quote, then report completion exactly once.
func (a *Sniper) ClosePosition() {
	if !a.running {
		return
	}
	if a.activeOrders.Len() > 0 || a.passiveOrders.Len() > 0 {
		return
	}
	sp := a.spread
	switch {
	case sp.Net > 0:
		a.log.Info("unwinding long", zap.String("spread", sp.Name), zap.Float64("net", sp.Net))
		a.quoteActiveLeg(market.OrderSell)
	case sp.Net < 0:
		a.log.Info("unwinding short", zap.String("spread", sp.Name), zap.Float64("net", sp.Net))
		a.quoteActiveLeg(market.OrderCover)
	default:
		a.log.Info("unwind complete", zap.String("spread", sp.Name))
		a.router.Unwound(sp.Name)
	}
}

// quoteActiveLeg sizes and submits one active-leg order. Volume is capped by
// the opposite book, both size limits, and for exits the leg's own closeable
// position; a non-positive volume is simply not quoted.
func (a *Sniper) quoteActiveLeg(orderType market.OrderType) {
	sp := a.spread
	leg := sp.ActiveLeg()
	side, offset := orderType.SideOffset()

	var price, volume float64
	if market.IsBuy(side, offset) {
		price = leg.AskPrice
		volume = min(sp.AskSize, sp.MaxPosSize, sp.MaxOrderSize)
	} else {
		price = leg.BidPrice
		volume = min(sp.BidSize, sp.MaxPosSize, sp.MaxOrderSize)
	}
	switch orderType {
	case market.OrderSell:
		volume = min(volume, leg.Long)
	case market.OrderCover:
		volume = min(volume, leg.Short)
	}
	if volume <= 0 {
		return
	}

	id, err := a.router.SendOrder(a.active, side, offset, price, volume, leg.Payup, sp.Name)
	if err != nil || id == "" {
		a.log.Warn("active quote failed", zap.String("spread", sp.Name), zap.Error(err))
		return
	}
	a.log.Info("active quote",
		zap.String("spread", sp.Name),
		zap.String("type", string(orderType)),
		zap.Float64("price", price),
		zap.Float64("volume", volume),
		zap.String("order", id))
	a.activeOrders.Add(id)
	a.activeQuoteCount = 0
}

// hedgePassiveLeg covers an incremental active-leg fill on the passive leg:
// opposite side, same offset, crossing the passive book by the leg's payup.
func (a *Sniper) hedgePassiveLeg(order market.Order, volume float64) {
	if volume <= 0 {
		return
	}
	sp := a.spread
	leg := sp.PassiveLeg()
	side := market.HedgeSide(order.Side)

	price := leg.BidPrice
	if market.IsBuy(side, order.Offset) {
		price = leg.AskPrice
	}
	id, err := a.router.SendOrder(a.passive, side, order.Offset, price, volume, leg.Payup, sp.Name)
	if err != nil || id == "" {
		a.log.Warn("hedge failed", zap.String("spread", sp.Name), zap.Error(err))
		return
	}
	a.log.Info("hedge",
		zap.String("spread", sp.Name),
		zap.String("side", string(side)),
		zap.String("offset", string(order.Offset)),
		zap.Float64("volume", volume),
		zap.String("order", id))
	a.passiveOrders.Add(id)
	a.passiveQuoteCount = 0
}

// rehedgePassiveLeg reissues the unfilled residual of a dead passive order at
// a fresh price, same side and offset, so every active fill ends up covered.
func (a *Sniper) rehedgePassiveLeg(order market.Order) {
	volume := order.Residual()
	if volume <= 0 {
		return
	}
	sp := a.spread
	leg := sp.PassiveLeg()

	price := leg.BidPrice
	if market.IsBuy(order.Side, order.Offset) {
		price = leg.AskPrice
	}
	id, err := a.router.SendOrder(a.passive, order.Side, order.Offset, price, volume, leg.Payup, sp.Name)
	if err != nil || id == "" {
		a.log.Warn("rehedge failed", zap.String("spread", sp.Name), zap.Error(err))
		return
	}
	a.log.Info("rehedge",
		zap.String("spread", sp.Name),
		zap.String("side", string(order.Side)),
		zap.Float64("volume", volume),
		zap.String("order", id))
	a.passiveOrders.Add(id)
	a.passiveQuoteCount = 0
}

// OnOrder applies an order status update. An order for an instrument outside
// the spread's legs means routing state is corrupt and is returned as an
// error so the engine can stop this spread instead of mis-booking positions.
func (a *Sniper) OnOrder(order market.Order) error {
	if !a.running {
		return nil
	}
	switch order.Instrument {
	case a.active:
		a.updateActiveOrder(order)
	case a.passive:
		a.updatePassiveOrder(order)
	default:
		return fmt.Errorf("spread %s: order %s references foreign instrument %s",
			a.spread.Name, order.ID, order.Instrument)
	}
	return nil
}

func (a *Sniper) updateActiveOrder(order market.Order) {
	last := a.traded[order.ID]
	if order.Traded > last {
		a.traded[order.ID] = order.Traded
		delta := order.Traded - last
		a.log.Info("active fill",
			zap.String("spread", a.spread.Name),
			zap.String("order", order.ID),
			zap.Float64("delta", delta))
		a.hedgePassiveLeg(order, delta)
	}
	if order.Status.Terminal() {
		a.activeOrders.Remove(order.ID)
		delete(a.traded, order.ID)
		a.log.Info("active order done",
			zap.String("spread", a.spread.Name),
			zap.String("order", order.ID),
			zap.String("status", string(order.Status)))
	}
}

func (a *Sniper) updatePassiveOrder(order market.Order) {
	last := a.traded[order.ID]
	if order.Traded > last {
		a.traded[order.ID] = order.Traded
		a.log.Info("passive fill",
			zap.String("spread", a.spread.Name),
			zap.String("order", order.ID),
			zap.Float64("delta", order.Traded-last))
	}
	if order.Status.Terminal() {
		a.passiveOrders.Remove(order.ID)
		delete(a.traded, order.ID)
		a.log.Info("passive order done",
			zap.String("spread", a.spread.Name),
			zap.String("order", order.ID),
			zap.String("status", string(order.Status)))
		if order.Status == market.StatusCancelled || order.Status == market.StatusRejected {
			a.rehedgePassiveLeg(order)
		}
	}
}

// OnTimer advances the two staleness counters and pulls the oldest resting
// order on a leg once its counter runs past the quote interval. The next
// spread tick re-evaluates from scratch.
func (a *Sniper) OnTimer() {
	if !a.running {
		return
	}
	a.activeQuoteCount++
	a.passiveQuoteCount++

	if a.activeQuoteCount > a.quoteInterval {
		if id, ok := a.activeOrders.Oldest(); ok {
			a.router.CancelOrder(a.active, id)
			a.log.Info("active quote timeout",
				zap.String("spread", a.spread.Name), zap.String("order", id))
			a.activeQuoteCount = 0
		}
	}
	if a.passiveQuoteCount > a.quoteInterval {
		if id, ok := a.passiveOrders.Oldest(); ok {
			a.router.CancelOrder(a.passive, id)
			a.log.Info("passive quote timeout",
				zap.String("spread", a.spread.Name), zap.String("order", id))
			a.passiveQuoteCount = 0
		}
	}
}
