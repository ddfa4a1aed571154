package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spread-sniper-bot/internal/engine"
	"spread-sniper-bot/internal/market"

	"go.uber.org/zap"
)

const requestTimeout = 3 * time.Second

// Sink receives decoded venue events. The orchestration engine's Push
// methods satisfy it.
type Sink interface {
	PushTick(market.Tick)
	PushOrder(market.Order)
	PushPosition(market.PositionUpdate)
}

// Gateway speaks the venue's JSON websocket protocol in both directions:
// outbound requests on behalf of the engine, inbound events into the sink.
type Gateway struct {
	client *Client
	sink   Sink
	log    *zap.Logger
}

func NewGateway(client *Client, sink Sink, log *zap.Logger) *Gateway {
	return &Gateway{client: client, sink: sink, log: log}
}

// Run connects and pumps inbound messages until the context ends.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.client.Connect(ctx); err != nil {
		return err
	}
	return g.client.Run(ctx, g.HandleMessage)
}

func (g *Gateway) Subscribe(instrument string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return g.client.Subscribe(ctx, subscribeMessage{Op: "subscribe", Channel: "ticker", Instrument: instrument})
}

func (g *Gateway) Unsubscribe(instrument string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	sub := subscribeMessage{Op: "subscribe", Channel: "ticker", Instrument: instrument}
	unsub := subscribeMessage{Op: "unsubscribe", Channel: "ticker", Instrument: instrument}
	return g.client.Unsubscribe(ctx, sub, unsub)
}

func (g *Gateway) SendOrder(req engine.OrderRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return g.client.Send(ctx, orderMessage{
		Op:         "order",
		ClientID:   req.ClientID,
		Instrument: req.Instrument,
		Strategy:   req.Strategy,
		Side:       string(req.Side),
		Offset:     string(req.Offset),
		Price:      req.Price,
		Volume:     req.Volume,
	})
}

func (g *Gateway) CancelOrder(instrument, orderID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return g.client.Send(ctx, cancelMessage{Op: "cancel", Instrument: instrument, OrderID: orderID})
}

func (g *Gateway) QueryPosition(strategy, instrument string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return g.client.Send(ctx, queryPositionMessage{Op: "query_position", Strategy: strategy, Instrument: instrument})
}

type subscribeMessage struct {
	Op         string `json:"op"`
	Channel    string `json:"channel"`
	Instrument string `json:"instrument"`
}

type orderMessage struct {
	Op         string  `json:"op"`
	ClientID   string  `json:"client_id"`
	Instrument string  `json:"instrument"`
	Strategy   string  `json:"strategy"`
	Side       string  `json:"side"`
	Offset     string  `json:"offset"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
}

type cancelMessage struct {
	Op         string `json:"op"`
	Instrument string `json:"instrument"`
	OrderID    string `json:"order_id"`
}

type queryPositionMessage struct {
	Op         string `json:"op"`
	Strategy   string `json:"strategy"`
	Instrument string `json:"instrument"`
}

type envelope struct {
	Type string `json:"type"`
}

type tickerMessage struct {
	Instrument string  `json:"instrument"`
	BidPrice   float64 `json:"bid_price"`
	AskPrice   float64 `json:"ask_price"`
	BidSize    float64 `json:"bid_size"`
	AskSize    float64 `json:"ask_size"`
	TimeMS     int64   `json:"ts"`
}

type orderEventMessage struct {
	OrderID    string  `json:"order_id"`
	Instrument string  `json:"instrument"`
	Strategy   string  `json:"strategy"`
	Side       string  `json:"side"`
	Offset     string  `json:"offset"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Traded     float64 `json:"traded"`
	Status     string  `json:"status"`
	TimeMS     int64   `json:"ts"`
}

type positionMessage struct {
	Strategy   string  `json:"strategy"`
	Instrument string  `json:"instrument"`
	Long       float64 `json:"long"`
	Short      float64 `json:"short"`
}

// HandleMessage decodes one inbound frame and forwards it to the sink.
// Unknown or malformed frames are logged and dropped; a bad frame must not
// take the stream down.
func (g *Gateway) HandleMessage(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.log.Warn("undecodable frame", zap.Error(err))
		return
	}
	switch env.Type {
	case "ticker":
		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.log.Warn("bad ticker frame", zap.Error(err))
			return
		}
		g.sink.PushTick(market.Tick{
			Instrument: msg.Instrument,
			BidPrice:   msg.BidPrice,
			AskPrice:   msg.AskPrice,
			BidSize:    msg.BidSize,
			AskSize:    msg.AskSize,
			Time:       time.UnixMilli(msg.TimeMS).UTC(),
		})
	case "order":
		var msg orderEventMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.log.Warn("bad order frame", zap.Error(err))
			return
		}
		order, err := msg.toOrder()
		if err != nil {
			g.log.Warn("bad order frame", zap.Error(err))
			return
		}
		g.sink.PushOrder(order)
	case "position":
		var msg positionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.log.Warn("bad position frame", zap.Error(err))
			return
		}
		g.sink.PushPosition(market.PositionUpdate{
			Strategy:   msg.Strategy,
			Instrument: msg.Instrument,
			Long:       msg.Long,
			Short:      msg.Short,
		})
	case "pong":
	default:
		g.log.Debug("unknown frame type", zap.String("type", env.Type))
	}
}

func (m orderEventMessage) toOrder() (market.Order, error) {
	side, err := parseSide(m.Side)
	if err != nil {
		return market.Order{}, err
	}
	offset, err := parseOffset(m.Offset)
	if err != nil {
		return market.Order{}, err
	}
	status, err := parseStatus(m.Status)
	if err != nil {
		return market.Order{}, err
	}
	return market.Order{
		ID:         m.OrderID,
		Instrument: m.Instrument,
		Strategy:   m.Strategy,
		Side:       side,
		Offset:     offset,
		Price:      m.Price,
		Volume:     m.Volume,
		Traded:     m.Traded,
		Status:     status,
		Time:       time.UnixMilli(m.TimeMS).UTC(),
	}, nil
}

func parseSide(s string) (market.Side, error) {
	switch market.Side(s) {
	case market.SideLong, market.SideShort:
		return market.Side(s), nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func parseOffset(s string) (market.Offset, error) {
	switch market.Offset(s) {
	case market.OffsetOpen, market.OffsetClose:
		return market.Offset(s), nil
	}
	return "", fmt.Errorf("unknown offset %q", s)
}

func parseStatus(s string) (market.Status, error) {
	switch market.Status(s) {
	case market.StatusSubmitting, market.StatusNotTraded, market.StatusPartTraded,
		market.StatusAllTraded, market.StatusCancelled, market.StatusRejected:
		return market.Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}
