package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"spread-sniper-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// QuoteSnapshot is one recomputed synthetic quote, written on every accepted
// leg tick while both books are live.
type QuoteSnapshot struct {
	Time       time.Time
	Spread     string
	BidPrice   float64
	AskPrice   float64
	MidPrice   float64
	BidPercent float64
	AskPercent float64
	BidSize    float64
	AskSize    float64
}

// PositionSnapshot is one accepted per-spread position update.
type PositionSnapshot struct {
	Time   time.Time
	Spread string
	Long   float64
	Short  float64
	Net    float64
}

// Writer persists snapshots to TimescaleDB off the hot path. Enqueue never
// blocks; a full queue drops the snapshot and counts it.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	quotes    chan QuoteSnapshot
	positions chan PositionSnapshot
	started   atomic.Bool
	dropQuote atomic.Uint64
	dropPos   atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		quotes:    make(chan QuoteSnapshot, queueSize),
		positions: make(chan PositionSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueQuote(snapshot QuoteSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.quotes <- snapshot:
		return
	default:
		if w.dropQuote.Add(1) == 1 && w.log != nil {
			w.log.Warn("history quote queue full")
		}
	}
}

func (w *Writer) EnqueuePosition(snapshot PositionSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.positions <- snapshot:
		return
	default:
		if w.dropPos.Add(1) == 1 && w.log != nil {
			w.log.Warn("history position queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.quotes:
			w.writeQuote(ctx, snap)
		case snap := <-w.positions:
			w.writePosition(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		spread TEXT NOT NULL,
		bid_price DOUBLE PRECISION NOT NULL,
		ask_price DOUBLE PRECISION NOT NULL,
		mid_price DOUBLE PRECISION NOT NULL,
		bid_percent DOUBLE PRECISION NOT NULL,
		ask_percent DOUBLE PRECISION NOT NULL,
		bid_size DOUBLE PRECISION NOT NULL,
		ask_size DOUBLE PRECISION NOT NULL
	)`, w.table("spread_quotes"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		spread TEXT NOT NULL,
		long_volume DOUBLE PRECISION NOT NULL,
		short_volume DOUBLE PRECISION NOT NULL,
		net_volume DOUBLE PRECISION NOT NULL
	)`, w.table("spread_positions"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("spread_quotes"))); err != nil && w.log != nil {
		w.log.Warn("spread_quotes hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("spread_positions"))); err != nil && w.log != nil {
		w.log.Warn("spread_positions hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeQuote(ctx context.Context, snap QuoteSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, spread, bid_price, ask_price, mid_price, bid_percent, ask_percent, bid_size, ask_size
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("spread_quotes"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Spread,
		snap.BidPrice,
		snap.AskPrice,
		snap.MidPrice,
		snap.BidPercent,
		snap.AskPercent,
		snap.BidSize,
		snap.AskSize,
	); err != nil && w.log != nil {
		w.log.Warn("spread quote insert failed", zap.Error(err))
	}
}

func (w *Writer) writePosition(ctx context.Context, snap PositionSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, spread, long_volume, short_volume, net_volume
	) VALUES (
		$1,$2,$3,$4,$5
	)`, w.table("spread_positions"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Spread,
		snap.Long,
		snap.Short,
		snap.Net,
	); err != nil && w.log != nil {
		w.log.Warn("spread position insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
