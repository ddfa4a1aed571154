package market

import (
	"math"
	"time"
)

// Side is the position book a trade affects, not the wire-level buy/sell flag.
// A Long/Close order is a sell that reduces the long book; a Short/Close order
// is a buy that reduces the short book.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type Offset string

const (
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderType is the four-way entry/exit classification used by the sniper
// algorithm when quoting the active leg.
type OrderType string

const (
	OrderBuy   OrderType = "BUY"   // open long
	OrderSell  OrderType = "SELL"  // close long
	OrderShort OrderType = "SHORT" // open short
	OrderCover OrderType = "COVER" // close short
)

// SideOffset resolves an order type to its side/offset pair.
func (t OrderType) SideOffset() (Side, Offset) {
	switch t {
	case OrderBuy:
		return SideLong, OffsetOpen
	case OrderSell:
		return SideLong, OffsetClose
	case OrderShort:
		return SideShort, OffsetOpen
	default:
		return SideShort, OffsetClose
	}
}

// IsBuy reports whether the side/offset pair crosses the ask. Opening a long
// and covering a short are buys; the other two are sells.
func IsBuy(side Side, offset Offset) bool {
	return (side == SideLong && offset == OffsetOpen) ||
		(side == SideShort && offset == OffsetClose)
}

// HedgeSide returns the side of the passive-leg hedge for an active-leg fill:
// always the opposite book, same offset.
func HedgeSide(side Side) Side {
	if side == SideLong {
		return SideShort
	}
	return SideLong
}

type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusNotTraded  Status = "NOT_TRADED"
	StatusPartTraded Status = "PART_TRADED"
	StatusAllTraded  Status = "ALL_TRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether an order in this status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusAllTraded || s == StatusCancelled || s == StatusRejected
}

// Tick is a best bid/ask snapshot for one instrument.
type Tick struct {
	Instrument string
	BidPrice   float64
	AskPrice   float64
	BidSize    float64
	AskSize    float64
	Time       time.Time
}

// Mid returns the tick mid price, 0 when either side is missing.
func (t Tick) Mid() float64 {
	if t.BidPrice <= 0 || t.AskPrice <= 0 {
		return 0
	}
	return (t.BidPrice + t.AskPrice) / 2
}

// Order carries the full lifecycle of one leg order. ID is immutable once
// assigned; Traded and Status only move forward.
type Order struct {
	ID         string
	Instrument string
	Strategy   string
	Side       Side
	Offset     Offset
	Price      float64
	Volume     float64
	Traded     float64
	Status     Status
	Time       time.Time
}

// Residual is the unfilled remainder of the order.
func (o Order) Residual() float64 {
	return o.Volume - o.Traded
}

// Fill is a signed position change produced by a matched order.
type Fill struct {
	TradeID    string
	OrderID    string
	Instrument string
	Strategy   string
	Side       Side
	Offset     Offset
	Price      float64
	Volume     float64
	LongDelta  float64
	ShortDelta float64
	Time       time.Time
}

// PositionUpdate is a venue position snapshot for one leg of a strategy.
type PositionUpdate struct {
	Strategy   string
	Instrument string
	Long       float64
	Short      float64
}

// RoundToTick snaps a price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// PayupPrice adjusts a quote toward aggression by payup price ticks and snaps
// the result to the contract tick: buys pay above the quote, sells below.
func PayupPrice(price float64, side Side, offset Offset, payup float64, tick float64) float64 {
	if IsBuy(side, offset) {
		price += payup * tick
	} else {
		price -= payup * tick
	}
	return RoundToTick(price, tick)
}
