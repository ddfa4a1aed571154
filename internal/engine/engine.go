package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spread-sniper-bot/internal/history"
	"spread-sniper-bot/internal/market"
	"spread-sniper-bot/internal/metrics"
	"spread-sniper-bot/internal/spread"
	"spread-sniper-bot/internal/state"

	"go.uber.org/zap"
)

const (
	orderSeqKey      = "order:seq"
	defaultQueueSize = 4096
)

// OrderRequest is what the engine hands the order gateway: price already
// payup-adjusted and tick-rounded, id already assigned.
type OrderRequest struct {
	ClientID   string
	Instrument string
	Strategy   string
	Side       market.Side
	Offset     market.Offset
	Price      float64
	Volume     float64
}

// Gateway is the venue boundary: fire-and-forget submission and cancellation,
// market-data subscription, position queries. Results come back later as
// events on the engine queue.
type Gateway interface {
	Subscribe(instrument string) error
	Unsubscribe(instrument string) error
	SendOrder(req OrderRequest) error
	CancelOrder(instrument, orderID string) error
	QueryPosition(strategy, instrument string) error
}

// SpreadLoader supplies spread definitions; called at startup and again after
// a rollover teardown. A loader that refreshes the contract registry should
// do so before returning.
type SpreadLoader func() ([]spread.Config, error)

// RolloverWindow is a weekly wall-clock gate: matches when the weekday and
// hour line up and the minute has been reached.
type RolloverWindow struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (w RolloverWindow) Contains(t time.Time) bool {
	return t.Weekday() == w.Weekday && t.Hour() == w.Hour && t.Minute() >= w.Minute
}

// RolloverConfig schedules the weekly unwind: Open starts flattening, Restart
// gates the rebuild after every spread reports done.
type RolloverConfig struct {
	Enabled bool
	Open    RolloverWindow
	Restart RolloverWindow
}

// Options wires an Engine. Store, History, Metrics and Alert may be nil.
type Options struct {
	Gateway           Gateway
	Contracts         *market.Registry
	Registry          *Registry
	Loader            SpreadLoader
	Store             state.Store
	History           *history.Writer
	Metrics           *metrics.Metrics
	Log               *zap.Logger
	Alert             func(ctx context.Context, message string) error
	QuoteTimeoutTicks int
	TimerInterval     time.Duration
	Rollover          RolloverConfig
	QueueSize         int
	Now               func() time.Time
}

type tickEvent struct{ tick market.Tick }
type orderEvent struct{ order market.Order }
type positionEvent struct{ pos market.PositionUpdate }
type timerEvent struct{}

// Engine owns the (spread, algorithm) pairs and routes every external event
// to them from a single queue, so all core state mutation is single-threaded.
type Engine struct {
	gateway   Gateway
	contracts *market.Registry
	registry  *Registry
	loader    SpreadLoader
	store     state.Store
	history   *history.Writer
	metrics   *metrics.Metrics
	log       *zap.Logger
	alert     func(ctx context.Context, message string) error

	quoteTimeout  int
	timerInterval time.Duration
	rollover      RolloverConfig
	now           func() time.Time

	queue chan any

	algos        map[string]Algorithm
	byInstrument map[string][]string
	orders       map[string]market.Order
	orderSeq     uint64
	unwinding    bool
}

func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, errors.New("engine gateway is required")
	}
	if opts.Contracts == nil {
		return nil, errors.New("engine contract registry is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("engine spread loader is required")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Engine{
		gateway:       opts.Gateway,
		contracts:     opts.Contracts,
		registry:      opts.Registry,
		loader:        opts.Loader,
		store:         opts.Store,
		history:       opts.History,
		metrics:       opts.Metrics,
		log:           opts.Log,
		alert:         opts.Alert,
		quoteTimeout:  opts.QuoteTimeoutTicks,
		timerInterval: opts.TimerInterval,
		rollover:      opts.Rollover,
		now:           opts.Now,
		queue:         make(chan any, queueSize),
		algos:         make(map[string]Algorithm),
		byInstrument:  make(map[string][]string),
		orders:        make(map[string]market.Order),
	}
	e.recoverOrderSeq()
	return e, nil
}

// Start loads spread definitions, registers and arms every algorithm. Broken
// entries are logged and skipped; only an unknown algo tag aborts the load.
func (e *Engine) Start() error {
	entries, err := e.loader()
	if err != nil {
		return fmt.Errorf("load spreads: %w", err)
	}
	if err := e.registry.Validate(entries); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := e.addSpread(entry); err != nil {
			e.log.Error("spread rejected", zap.String("spread", entry.SpreadName()), zap.Error(err))
		}
	}
	for name, a := range e.algos {
		if err := a.Start(); err != nil {
			e.log.Error("algo start refused", zap.String("spread", name), zap.Error(err))
		}
	}
	e.surveyPositions()
	e.log.Info("engine started", zap.Int("spreads", len(e.algos)))
	return nil
}

// surveyPositions flags persisted positions whose spread is no longer
// configured; they usually mean a spread was dropped from the config while
// its book was still open.
func (e *Engine) surveyPositions() {
	if e.store == nil {
		return
	}
	records, err := e.store.List(context.Background(), state.PositionKeyPrefix)
	if err != nil {
		e.log.Warn("position survey failed", zap.Error(err))
		return
	}
	for key := range records {
		name := strings.TrimPrefix(key, state.PositionKeyPrefix)
		if _, ok := e.algos[name]; !ok {
			e.log.Warn("persisted position without a configured spread", zap.String("spread", name))
		}
	}
}

func (e *Engine) addSpread(entry spread.Config) error {
	name := entry.SpreadName()
	if _, exists := e.algos[name]; exists {
		return fmt.Errorf("duplicate spread name %s", name)
	}
	if _, err := e.contracts.Resolve(entry.Active); err != nil {
		return err
	}
	if _, err := e.contracts.Resolve(entry.Passive); err != nil {
		return err
	}
	sp, err := spread.New(entry)
	if err != nil {
		return err
	}
	factory, err := e.registry.Resolve(entry.Algo)
	if err != nil {
		return err
	}
	a := factory(sp, e, e.quoteTimeout, e.log)
	e.algos[name] = a
	e.byInstrument[entry.Active] = append(e.byInstrument[entry.Active], name)
	e.byInstrument[entry.Passive] = append(e.byInstrument[entry.Passive], name)

	for _, instrument := range []string{entry.Active, entry.Passive} {
		if err := e.gateway.Subscribe(instrument); err != nil {
			e.log.Warn("subscribe failed", zap.String("instrument", instrument), zap.Error(err))
		}
		if err := e.gateway.QueryPosition(name, instrument); err != nil {
			e.log.Warn("position query failed", zap.String("instrument", instrument), zap.Error(err))
		}
	}
	if record, ok, err := state.LoadPositionRecord(context.Background(), e.store, name); err != nil {
		e.log.Warn("position recovery failed", zap.String("spread", name), zap.Error(err))
	} else if ok {
		e.log.Info("last persisted position",
			zap.String("spread", name),
			zap.Float64("long", record.Long),
			zap.Float64("short", record.Short),
			zap.Float64("net", record.Net))
	}
	e.log.Info("spread registered", zap.String("spread", name))
	return nil
}

// PushTick enqueues a market-data event; called by feed workers.
func (e *Engine) PushTick(tick market.Tick) { e.queue <- tickEvent{tick} }

// PushOrder enqueues an order status event; called by the trade stream worker.
func (e *Engine) PushOrder(order market.Order) { e.queue <- orderEvent{order} }

// PushPosition enqueues a position snapshot event.
func (e *Engine) PushPosition(pos market.PositionUpdate) { e.queue <- positionEvent{pos} }

// Run drains the event queue until the context ends. The timer source is
// started here so timeout logic shares the queue's ordering guarantees.
func (e *Engine) Run(ctx context.Context) error {
	if e.timerInterval > 0 {
		go e.timerLoop(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.queue:
			e.dispatch(ev)
		}
	}
}

func (e *Engine) timerLoop(ctx context.Context) {
	ticker := time.NewTicker(e.timerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case e.queue <- timerEvent{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (e *Engine) dispatch(ev any) {
	switch ev := ev.(type) {
	case tickEvent:
		e.handleTick(ev.tick)
	case orderEvent:
		e.handleOrder(ev.order)
	case positionEvent:
		e.handlePosition(ev.pos)
	case timerEvent:
		e.handleTimer()
	}
}

func (e *Engine) handleTick(tick market.Tick) {
	// ClosePosition can remove a spread mid-loop, which edits the routing
	// slice in place. Iterate a copy so sibling spreads still see the tick.
	routed := make([]string, len(e.byInstrument[tick.Instrument]))
	copy(routed, e.byInstrument[tick.Instrument])
	for _, name := range routed {
		a, ok := e.algos[name]
		if !ok {
			continue
		}
		sp := a.Spread()
		if !sp.UpdateQuote(tick) {
			continue
		}
		if !sp.HasQuote() {
			continue
		}
		e.history.EnqueueQuote(history.QuoteSnapshot{
			Time:       tick.Time,
			Spread:     name,
			BidPrice:   sp.BidPrice,
			AskPrice:   sp.AskPrice,
			MidPrice:   sp.Price,
			BidPercent: sp.BidPercent,
			AskPercent: sp.AskPercent,
			BidSize:    sp.BidSize,
			AskSize:    sp.AskSize,
		})
		if e.unwinding {
			a.ClosePosition()
		} else {
			a.OnSpreadTick()
		}
	}
	if e.rollover.Enabled && !e.unwinding && e.rollover.Open.Contains(tick.Time) {
		e.unwinding = true
		e.metrics.RolloversStarted.Inc()
		e.log.Info("rollover window open, unwinding all spreads")
		e.notify("rollover window open, unwinding all spreads")
	}
}

func (e *Engine) handleOrder(order market.Order) {
	a, ok := e.algos[order.Strategy]
	if !ok {
		// Stale routing entries are expected during teardown.
		return
	}
	if err := a.OnOrder(order); err != nil {
		e.log.Error("spread halted", zap.String("spread", order.Strategy), zap.Error(err))
		e.notify(fmt.Sprintf("spread %s halted: %v", order.Strategy, err))
		a.Stop()
		e.removeSpread(order.Strategy)
		return
	}
	if order.Status.Terminal() {
		delete(e.orders, order.ID)
	} else {
		e.orders[order.ID] = order
	}
}

func (e *Engine) handlePosition(pos market.PositionUpdate) {
	a, ok := e.algos[pos.Strategy]
	if !ok {
		return
	}
	sp := a.Spread()
	if !sp.UpdatePosition(pos.Instrument, pos.Long, pos.Short) {
		return
	}
	e.persistPosition(sp)
	e.history.EnqueuePosition(history.PositionSnapshot{
		Time:   e.now().UTC(),
		Spread: sp.Name,
		Long:   sp.Long,
		Short:  sp.Short,
		Net:    sp.Net,
	})
}

func (e *Engine) handleTimer() {
	for _, a := range e.algos {
		a.OnTimer()
	}
	if e.unwinding && len(e.algos) == 0 && e.rollover.Restart.Contains(e.now()) {
		e.unwinding = false
		e.metrics.RolloversCompleted.Inc()
		e.log.Info("rollover complete, rebuilding spreads")
		e.notify("rollover complete, rebuilding spreads")
		if err := e.Start(); err != nil {
			e.log.Error("rollover restart failed", zap.Error(err))
		}
	}
}

// SendOrder implements algo.OrderRouter: assign a client id, adjust the price
// by the leg's payup in contract ticks, and hand off to the gateway without
// waiting for an acknowledgement.
func (e *Engine) SendOrder(instrument string, side market.Side, offset market.Offset, price, volume, payup float64, strategy string) (string, error) {
	contract, err := e.contracts.Resolve(instrument)
	if err != nil {
		return "", err
	}
	req := OrderRequest{
		ClientID:   e.nextOrderID(),
		Instrument: instrument,
		Strategy:   strategy,
		Side:       side,
		Offset:     offset,
		Price:      market.PayupPrice(price, side, offset, payup, contract.PriceTick),
		Volume:     volume,
	}
	if err := e.gateway.SendOrder(req); err != nil {
		e.metrics.OrdersFailed.Inc()
		return "", err
	}
	e.metrics.OrdersPlaced.Inc()
	return req.ClientID, nil
}

// CancelOrder implements algo.OrderRouter.
func (e *Engine) CancelOrder(instrument, orderID string) {
	if err := e.gateway.CancelOrder(instrument, orderID); err != nil {
		e.log.Warn("cancel failed", zap.String("order", orderID), zap.Error(err))
		return
	}
	e.metrics.OrdersCancelled.Inc()
}

// Unwound implements algo.OrderRouter: a spread finished flattening during
// rollover and wants out of the active set.
func (e *Engine) Unwound(spreadName string) {
	e.removeSpread(spreadName)
	e.log.Info("spread unwound", zap.String("spread", spreadName))
}

func (e *Engine) removeSpread(name string) {
	a, ok := e.algos[name]
	if !ok {
		return
	}
	sp := a.Spread()
	delete(e.algos, name)
	for id, order := range e.orders {
		if order.Strategy != name {
			continue
		}
		e.CancelOrder(order.Instrument, id)
		delete(e.orders, id)
	}
	for _, instrument := range []string{sp.ActiveLeg().Instrument, sp.PassiveLeg().Instrument} {
		e.byInstrument[instrument] = removeString(e.byInstrument[instrument], name)
		if len(e.byInstrument[instrument]) == 0 {
			delete(e.byInstrument, instrument)
			if err := e.gateway.Unsubscribe(instrument); err != nil {
				e.log.Warn("unsubscribe failed", zap.String("instrument", instrument), zap.Error(err))
			}
		}
	}
}

// SpreadCount reports how many spreads are currently registered.
func (e *Engine) SpreadCount() int { return len(e.algos) }

// Unwinding reports whether the rollover gate is set.
func (e *Engine) Unwinding() bool { return e.unwinding }

func (e *Engine) notify(msg string) {
	if e.alert == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.alert(ctx, msg); err != nil {
		e.log.Warn("alert send failed", zap.Error(err))
	}
}

func (e *Engine) nextOrderID() string {
	e.orderSeq++
	if e.store != nil {
		if err := e.store.Set(context.Background(), orderSeqKey, strconv.FormatUint(e.orderSeq, 10)); err != nil {
			e.log.Warn("order counter persist failed", zap.Error(err))
		}
	}
	return "ord-" + strconv.FormatUint(e.orderSeq, 10)
}

func (e *Engine) recoverOrderSeq() {
	if e.store == nil {
		return
	}
	val, ok, err := e.store.Get(context.Background(), orderSeqKey)
	if err != nil {
		e.log.Warn("order counter recovery failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		e.log.Warn("order counter corrupt", zap.String("value", val))
		return
	}
	e.orderSeq = seq
	e.log.Info("order counter recovered", zap.Uint64("seq", seq))
}

func (e *Engine) persistPosition(sp *spread.Spread) {
	record := state.PositionRecord{
		Spread:      sp.Name,
		Long:        sp.Long,
		Short:       sp.Short,
		Net:         sp.Net,
		UpdatedAtMS: e.now().UnixMilli(),
	}
	if err := state.SavePositionRecord(context.Background(), e.store, record); err != nil {
		e.log.Warn("position persist failed", zap.String("spread", sp.Name), zap.Error(err))
	}
}

func removeString(list []string, target string) []string {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
