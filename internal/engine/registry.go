package engine

import (
	"fmt"
	"sort"
	"sync"

	"spread-sniper-bot/internal/algo"
	"spread-sniper-bot/internal/market"
	"spread-sniper-bot/internal/spread"

	"go.uber.org/zap"
)

// Algorithm is the execution state machine contract the engine drives. Sniper
// is the stock implementation; alternates register under their own tag.
type Algorithm interface {
	Start() error
	Stop()
	Running() bool
	Spread() *spread.Spread
	OutstandingOrders() int
	OnSpreadTick()
	ClosePosition()
	OnOrder(order market.Order) error
	OnTimer()
}

// Factory builds an algorithm instance for one spread.
type Factory func(sp *spread.Spread, router algo.OrderRouter, quoteInterval int, log *zap.Logger) Algorithm

// Registry maps configuration tags to algorithm factories. Tags are validated
// when configuration is loaded; an unknown tag fails the load instead of
// failing at the first tick.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultAlgoTag is used by spread entries that name no algorithm.
const DefaultAlgoTag = "sniper"

// NewRegistry returns a registry with the sniper algorithm pre-registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(DefaultAlgoTag, func(sp *spread.Spread, router algo.OrderRouter, quoteInterval int, log *zap.Logger) Algorithm {
		return algo.NewSniper(sp, router, quoteInterval, log)
	})
	return r
}

func (r *Registry) Register(tag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = factory
}

// Resolve returns the factory for a tag, defaulting the empty tag.
func (r *Registry) Resolve(tag string) (Factory, error) {
	if tag == "" {
		tag = DefaultAlgoTag
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[tag]
	if !ok {
		return nil, fmt.Errorf("unknown algo tag %q (registered: %v)", tag, r.tagsLocked())
	}
	return factory, nil
}

// Validate checks every entry's tag against the registry.
func (r *Registry) Validate(entries []spread.Config) error {
	for _, entry := range entries {
		if _, err := r.Resolve(entry.Algo); err != nil {
			return fmt.Errorf("spread %s: %w", entry.SpreadName(), err)
		}
	}
	return nil
}

func (r *Registry) tagsLocked() []string {
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
