package spread

import (
	"errors"
	"fmt"

	"spread-sniper-bot/internal/market"
)

// priceTick keeps percent-of-mid comparisons stable against float noise.
const priceTick = 1e-6

// confirmSnapshots is how many position snapshots must arrive before the
// synthetic price is trusted; trading on an unconfirmed starting position is
// how a restart doubles up.
const confirmSnapshots = 2

// Leg is the per-instrument quote and position snapshot of one side of a
// spread. Legs are mutated only through the owning Spread's Update methods;
// the algorithm reads them and never writes.
type Leg struct {
	Instrument string
	Ratio      float64
	Multiplier float64
	Payup      float64

	BidPrice float64
	AskPrice float64
	BidSize  float64
	AskSize  float64

	Long  float64
	Short float64
	Net   float64
}

// Config is one spread definition from the configuration source.
type Config struct {
	Name         string
	Active       string
	Passive      string
	Algo         string
	BuyPercent   float64
	SellPercent  float64
	ShortPercent float64
	CoverPercent float64
	ActivePayup  float64
	PassivePayup float64
	MaxOrderSize float64
	MaxPosSize   float64
}

// Validate rejects structurally broken definitions at load time. Threshold
// inversion is checked again at algorithm start; here we only require the
// legs to exist and be distinct.
func (c Config) Validate() error {
	if c.Active == "" || c.Passive == "" {
		return errors.New("spread needs two leg instruments")
	}
	if c.Active == c.Passive {
		return fmt.Errorf("spread legs must differ, got %s twice", c.Active)
	}
	if c.MaxOrderSize <= 0 {
		return errors.New("max_order_size must be > 0")
	}
	if c.MaxPosSize <= 0 {
		return errors.New("max_pos_size must be > 0")
	}
	return nil
}

// SpreadName builds the canonical <active>+<passive> name.
func (c Config) SpreadName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Active + "+" + c.Passive
}

// Spread aggregates two legs into one synthetic instrument. The active leg is
// quoted by the algorithm, the passive leg hedges its fills.
type Spread struct {
	Name    string
	active  *Leg
	passive *Leg

	BidPrice   float64
	AskPrice   float64
	Price      float64
	BidPercent float64
	AskPercent float64
	BidSize    float64
	AskSize    float64

	Long  float64
	Short float64
	Net   float64

	BuyPercent   float64
	SellPercent  float64
	ShortPercent float64
	CoverPercent float64
	MaxOrderSize float64
	MaxPosSize   float64

	posSnapshots int
	confirmed    bool
}

// New builds a spread and its two legs from a definition.
func New(cfg Config) (*Spread, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Spread{
		Name:         cfg.SpreadName(),
		active:       &Leg{Instrument: cfg.Active, Multiplier: 1, Ratio: 1, Payup: cfg.ActivePayup},
		passive:      &Leg{Instrument: cfg.Passive, Multiplier: -1, Ratio: 1, Payup: cfg.PassivePayup},
		BuyPercent:   cfg.BuyPercent,
		SellPercent:  cfg.SellPercent,
		ShortPercent: cfg.ShortPercent,
		CoverPercent: cfg.CoverPercent,
		MaxOrderSize: cfg.MaxOrderSize,
		MaxPosSize:   cfg.MaxPosSize,
	}, nil
}

// ActiveLeg returns the quoted leg for read-only use.
func (s *Spread) ActiveLeg() *Leg { return s.active }

// PassiveLeg returns the hedge leg for read-only use.
func (s *Spread) PassiveLeg() *Leg { return s.passive }

// Leg returns the leg owning the instrument, nil when the instrument does not
// belong to this spread.
func (s *Spread) Leg(instrument string) *Leg {
	switch instrument {
	case s.active.Instrument:
		return s.active
	case s.passive.Instrument:
		return s.passive
	}
	return nil
}

// Owns reports whether the instrument is one of the two legs.
func (s *Spread) Owns(instrument string) bool {
	return s.Leg(instrument) != nil
}

// UpdateQuote applies a market-data snapshot to the owning leg and recomputes
// the synthetic price. Returns false when the instrument is not a leg.
func (s *Spread) UpdateQuote(tick market.Tick) bool {
	leg := s.Leg(tick.Instrument)
	if leg == nil {
		return false
	}
	leg.BidPrice = tick.BidPrice
	leg.AskPrice = tick.AskPrice
	leg.BidSize = tick.BidSize
	leg.AskSize = tick.AskSize
	s.recomputePrice()
	return true
}

// UpdatePosition applies an absolute position snapshot to the owning leg and
// recomputes the spread position. Each call counts toward the confirmation
// gate.
func (s *Spread) UpdatePosition(instrument string, long, short float64) bool {
	leg := s.Leg(instrument)
	if leg == nil {
		return false
	}
	leg.Long = long
	leg.Short = short
	leg.Net = long - short
	s.recomputePosition()
	return true
}

// ApplyFill shifts the owning leg's position by the fill's signed deltas.
// Used by the backtest path where fills are the only position source.
func (s *Spread) ApplyFill(fill market.Fill) bool {
	leg := s.Leg(fill.Instrument)
	if leg == nil {
		return false
	}
	leg.Long += fill.LongDelta
	leg.Short += fill.ShortDelta
	leg.Net = leg.Long - leg.Short
	s.recomputePosition()
	return true
}

// MarkConfirmed bypasses the position snapshot gate. The backtest engine owns
// positions from the first fill, so there is nothing to confirm.
func (s *Spread) MarkConfirmed() {
	s.confirmed = true
}

// Confirmed reports whether enough position snapshots have arrived to trust
// the synthetic price.
func (s *Spread) Confirmed() bool { return s.confirmed }

// HasQuote reports whether the last recompute produced a usable synthetic
// quote.
func (s *Spread) HasQuote() bool {
	return s.BidPrice != 0 || s.AskPrice != 0
}

// recomputePrice derives the synthetic quote from current leg state. The
// quote is zeroed and left there until both legs have a nonzero bid and the
// position gate has passed, so the algorithm never acts on a half-formed
// spread.
func (s *Spread) recomputePrice() {
	s.BidPrice = 0
	s.AskPrice = 0
	s.BidSize = 0
	s.AskSize = 0

	if s.active.BidPrice == 0 || s.passive.BidPrice == 0 {
		return
	}
	if !s.confirmed {
		return
	}

	s.BidPrice = market.RoundToTick(s.active.BidPrice-s.passive.AskPrice, priceTick)
	s.AskPrice = market.RoundToTick(s.active.AskPrice-s.passive.BidPrice, priceTick)
	s.Price = market.RoundToTick(
		(s.active.BidPrice+s.active.AskPrice+s.passive.BidPrice+s.passive.AskPrice)/4, priceTick)
	if s.Price != 0 {
		s.BidPercent = s.BidPrice / s.Price
		s.AskPercent = s.AskPrice / s.Price
	}

	s.BidSize = min(s.active.BidSize, s.passive.AskSize)
	s.AskSize = min(s.active.AskSize, s.passive.BidSize)
}

// recomputePosition nets the two legs: position only counts as spread
// position to the extent both legs confirm it.
func (s *Spread) recomputePosition() {
	s.Long = min(s.active.Long, s.passive.Short)
	s.Short = min(s.active.Short, s.passive.Long)
	s.Net = s.Long - s.Short

	s.posSnapshots++
	if s.posSnapshots >= confirmSnapshots {
		s.confirmed = true
	}
}
