// Package tickdata stores recorded leg quotes as msgpack streams, one file
// per instrument per UTC day. The backtester replays these files.
package tickdata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"spread-sniper-bot/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

const fileExt = ".mp"

type record struct {
	TimeUnixMicro int64   `msgpack:"t"`
	BidPrice      float64 `msgpack:"bp"`
	AskPrice      float64 `msgpack:"ap"`
	BidSize       float64 `msgpack:"bs"`
	AskSize       float64 `msgpack:"as"`
}

func fromTick(tick market.Tick) record {
	return record{
		TimeUnixMicro: tick.Time.UnixMicro(),
		BidPrice:      tick.BidPrice,
		AskPrice:      tick.AskPrice,
		BidSize:       tick.BidSize,
		AskSize:       tick.AskSize,
	}
}

func (r record) tick(instrument string) market.Tick {
	return market.Tick{
		Instrument: instrument,
		BidPrice:   r.BidPrice,
		AskPrice:   r.AskPrice,
		BidSize:    r.BidSize,
		AskSize:    r.AskSize,
		Time:       time.UnixMicro(r.TimeUnixMicro).UTC(),
	}
}

// FilePath returns where ticks for an instrument on a given day live.
func FilePath(dir, instrument string, day time.Time) string {
	name := day.UTC().Format("2006-01-02") + fileExt
	return filepath.Join(dir, sanitize(instrument), name)
}

func sanitize(instrument string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, instrument)
}

// Writer appends ticks for one instrument, rolling to a new file at each
// UTC day boundary.
type Writer struct {
	dir        string
	instrument string
	file       *os.File
	enc        *msgpack.Encoder
	day        time.Time
}

func NewWriter(dir, instrument string) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("tickdata dir is required")
	}
	if instrument == "" {
		return nil, errors.New("tickdata instrument is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, sanitize(instrument)), 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir, instrument: instrument}, nil
}

func (w *Writer) Write(tick market.Tick) error {
	day := tick.Time.UTC().Truncate(24 * time.Hour)
	if w.file == nil || !day.Equal(w.day) {
		if err := w.roll(day); err != nil {
			return err
		}
	}
	return w.enc.Encode(fromTick(tick))
}

func (w *Writer) roll(day time.Time) error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
	}
	path := FilePath(w.dir, w.instrument, day)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = file
	w.enc = msgpack.NewEncoder(file)
	w.day = day
	return nil
}

func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Load reads every tick for an instrument between start and end inclusive.
// Missing day files are skipped; a trading calendar leaves gaps.
func Load(dir, instrument string, start, end time.Time) ([]market.Tick, error) {
	var ticks []market.Tick
	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		path := FilePath(dir, instrument, day)
		dayTicks, err := loadFile(path, instrument)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		ticks = append(ticks, dayTicks...)
	}
	return ticks, nil
}

func loadFile(path, instrument string) ([]market.Tick, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	dec := msgpack.NewDecoder(file)
	var ticks []market.Tick
	for {
		var r record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return ticks, nil
			}
			return nil, err
		}
		ticks = append(ticks, r.tick(instrument))
	}
}

// LoadMerged loads ticks for several instruments and interleaves them into a
// single timeline. The sort is stable so same-timestamp ticks keep file
// order, which keeps replays deterministic.
func LoadMerged(dir string, instruments []string, start, end time.Time) ([]market.Tick, error) {
	var merged []market.Tick
	for _, instrument := range instruments {
		ticks, err := Load(dir, instrument, start, end)
		if err != nil {
			return nil, err
		}
		merged = append(merged, ticks...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged, nil
}
