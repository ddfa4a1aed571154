package feed

import (
	"encoding/json"
	"testing"
	"time"

	"spread-sniper-bot/internal/market"

	"go.uber.org/zap"
)

type captureSink struct {
	ticks     []market.Tick
	orders    []market.Order
	positions []market.PositionUpdate
}

func (s *captureSink) PushTick(t market.Tick)               { s.ticks = append(s.ticks, t) }
func (s *captureSink) PushOrder(o market.Order)             { s.orders = append(s.orders, o) }
func (s *captureSink) PushPosition(p market.PositionUpdate) { s.positions = append(s.positions, p) }

func newTestGateway() (*Gateway, *captureSink) {
	sink := &captureSink{}
	return NewGateway(nil, sink, zap.NewNop()), sink
}

func TestHandleTickerMessage(t *testing.T) {
	gw, sink := newTestGateway()
	gw.HandleMessage(json.RawMessage(`{
		"type": "ticker",
		"instrument": "ETH-PERP",
		"bid_price": 100.5,
		"ask_price": 100.6,
		"bid_size": 12,
		"ask_size": 8,
		"ts": 1700000000000
	}`))
	if len(sink.ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(sink.ticks))
	}
	tick := sink.ticks[0]
	if tick.Instrument != "ETH-PERP" || tick.BidPrice != 100.5 || tick.AskSize != 8 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if !tick.Time.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Fatalf("unexpected tick time: %v", tick.Time)
	}
}

func TestHandleOrderMessage(t *testing.T) {
	gw, sink := newTestGateway()
	gw.HandleMessage(json.RawMessage(`{
		"type": "order",
		"order_id": "ord-7",
		"instrument": "ETH-QUARTER",
		"strategy": "eth-basis",
		"side": "LONG",
		"offset": "OPEN",
		"price": 101.2,
		"volume": 3,
		"traded": 1,
		"status": "PART_TRADED",
		"ts": 1700000000500
	}`))
	if len(sink.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(sink.orders))
	}
	order := sink.orders[0]
	if order.ID != "ord-7" || order.Side != market.SideLong || order.Offset != market.OffsetOpen {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Status != market.StatusPartTraded || order.Traded != 1 {
		t.Fatalf("unexpected order fill state: %+v", order)
	}
}

func TestHandlePositionMessage(t *testing.T) {
	gw, sink := newTestGateway()
	gw.HandleMessage(json.RawMessage(`{
		"type": "position",
		"strategy": "eth-basis",
		"instrument": "ETH-PERP",
		"long": 4,
		"short": 1
	}`))
	if len(sink.positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(sink.positions))
	}
	pos := sink.positions[0]
	if pos.Strategy != "eth-basis" || pos.Long != 4 || pos.Short != 1 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestHandleMessageDropsBadFrames(t *testing.T) {
	gw, sink := newTestGateway()
	gw.HandleMessage(json.RawMessage(`not json`))
	gw.HandleMessage(json.RawMessage(`{"type": "order", "side": "DIAGONAL", "offset": "OPEN", "status": "NOT_TRADED"}`))
	gw.HandleMessage(json.RawMessage(`{"type": "order", "side": "LONG", "offset": "OPEN", "status": "LOST"}`))
	gw.HandleMessage(json.RawMessage(`{"type": "mystery"}`))
	if len(sink.ticks)+len(sink.orders)+len(sink.positions) != 0 {
		t.Fatalf("expected all bad frames dropped, got %+v", sink)
	}
}
