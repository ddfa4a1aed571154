package state

import (
	"context"
	"encoding/json"
	"strings"
)

const PositionKeyPrefix = "position:"

// PositionRecord is the durable per-spread position, written on every
// accepted position update so a restart can report where the book stood.
type PositionRecord struct {
	Spread      string  `json:"spread"`
	Long        float64 `json:"long"`
	Short       float64 `json:"short"`
	Net         float64 `json:"net"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

func PositionKey(spreadName string) string {
	return PositionKeyPrefix + spreadName
}

func LoadPositionRecord(ctx context.Context, store Store, spreadName string) (PositionRecord, bool, error) {
	if store == nil {
		return PositionRecord{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, PositionKey(spreadName))
	if err != nil {
		return PositionRecord{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return PositionRecord{}, false, nil
	}
	var record PositionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return PositionRecord{}, false, err
	}
	return record, true, nil
}

func SavePositionRecord(ctx context.Context, store Store, record PositionRecord) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, PositionKey(record.Spread), string(payload))
}
