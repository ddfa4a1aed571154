package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"spread-sniper-bot/internal/alerts"
	"spread-sniper-bot/internal/config"
	"spread-sniper-bot/internal/engine"
	"spread-sniper-bot/internal/feed"
	"spread-sniper-bot/internal/history"
	"spread-sniper-bot/internal/market"
	"spread-sniper-bot/internal/metrics"
	"spread-sniper-bot/internal/spread"
	"spread-sniper-bot/internal/state/sqlite"

	"go.uber.org/zap"
)

// App owns the live trading process: the venue feed, the spread engine and
// the supporting sinks. New builds everything, Run drives it until the
// context ends.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *sqlite.Store
	client  *feed.Client
	gateway *feed.Gateway
	engine  *engine.Engine
	history *history.Writer
	prom    *metrics.Prometheus
	alerts  *alerts.Telegram
}

// engineSink forwards inbound feed events to the engine queue. The engine
// cannot exist before the gateway, so the sink is bound after both are built.
type engineSink struct {
	engine *engine.Engine
}

func (s *engineSink) PushTick(tick market.Tick)              { s.engine.PushTick(tick) }
func (s *engineSink) PushOrder(order market.Order)           { s.engine.PushOrder(order) }
func (s *engineSink) PushPosition(pos market.PositionUpdate) { s.engine.PushPosition(pos) }

// New wires the process from a loaded config. cfgPath, when non-empty, is the
// config file the rollover restart reloads spreads and contracts from; an
// empty path pins the startup snapshot.
func New(cfg *config.Config, cfgPath string, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	contracts := market.NewRegistry()
	populateContracts(contracts, cfg.Contracts)

	var m *metrics.Metrics
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	} else {
		m = metrics.NewNoop()
	}

	client := feed.NewClient(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	client.OnReconnect(func() { m.FeedReconnects.Inc() })
	sink := &engineSink{}
	gateway := feed.NewGateway(client, sink, log)

	hist, err := history.New(cfg.History, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	rollover, err := rolloverConfig(cfg.Engine.Rollover)
	if err != nil {
		store.Close()
		return nil, err
	}
	eng, err := engine.New(engine.Options{
		Gateway:           gateway,
		Contracts:         contracts,
		Loader:            spreadLoader(cfg, cfgPath, contracts),
		Store:             store,
		History:           hist,
		Metrics:           m,
		Log:               log,
		Alert:             alertsClient.Send,
		QuoteTimeoutTicks: cfg.Engine.QuoteTimeoutTicks,
		TimerInterval:     cfg.Engine.TimerInterval,
		Rollover:          rollover,
		QueueSize:         cfg.Engine.QueueSize,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	sink.engine = eng

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		client:  client,
		gateway: gateway,
		engine:  eng,
		history: hist,
		prom:    prom,
		alerts:  alertsClient,
	}, nil
}

func populateContracts(registry *market.Registry, entries []config.ContractEntry) {
	for _, entry := range entries {
		registry.Add(market.Contract{
			Symbol:    entry.Symbol,
			Exchange:  entry.Exchange,
			PriceTick: entry.PriceTick,
			Size:      entry.Size,
		})
	}
}

// spreadLoader builds the engine's spread source. With a config path it
// re-reads the file on every call and swaps the contract registry to match,
// so a rollover restart picks up definitions edited during the unwind window.
func spreadLoader(cfg *config.Config, cfgPath string, contracts *market.Registry) engine.SpreadLoader {
	return func() ([]spread.Config, error) {
		current := cfg
		if cfgPath != "" {
			reloaded, err := config.Load(cfgPath)
			if err != nil {
				return nil, fmt.Errorf("reload config: %w", err)
			}
			current = reloaded
			contracts.Reset()
			populateContracts(contracts, current.Contracts)
		}
		out := make([]spread.Config, 0, len(current.Spreads))
		for _, entry := range current.Spreads {
			out = append(out, entry.ToSpread())
		}
		return out, nil
	}
}

func rolloverConfig(cfg config.RolloverConfig) (engine.RolloverConfig, error) {
	if !cfg.Enabled {
		return engine.RolloverConfig{}, nil
	}
	weekday, err := config.ParseWeekday(cfg.Weekday)
	if err != nil {
		return engine.RolloverConfig{}, err
	}
	return engine.RolloverConfig{
		Enabled: true,
		Open:    engine.RolloverWindow{Weekday: weekday, Hour: cfg.OpenHour, Minute: cfg.OpenMinute},
		Restart: engine.RolloverWindow{Weekday: weekday, Hour: cfg.RestartHour, Minute: cfg.RestartMinute},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.history != nil {
		a.history.Start(ctx)
		defer a.history.Close()
	}
	if a.prom != nil {
		a.serveMetrics(ctx)
	}
	if err := a.engine.Start(); err != nil {
		return err
	}
	a.log.Info("engine started",
		zap.Int("spreads", len(a.cfg.Spreads)),
		zap.String("feed", a.cfg.Feed.URL),
	)

	errc := make(chan error, 2)
	go func() { errc <- a.gateway.Run(ctx) }()
	go func() { errc <- a.engine.Run(ctx) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: a.prom.Handler()}
	go func() {
		a.log.Info("metrics listener started", zap.String("listen", a.cfg.Metrics.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics listener failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
