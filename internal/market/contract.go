package market

import (
	"fmt"
	"sync"
)

// Contract describes one tradable instrument: price granularity and the
// contract size used for coin-margined PnL.
type Contract struct {
	Symbol    string
	Exchange  string
	PriceTick float64
	Size      float64
}

// Registry resolves instrument symbols to contracts. Populated once at
// startup from the venue metadata collaborator, replaced wholesale on
// rollover reload.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]Contract)}
}

func (r *Registry) Add(c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Symbol] = c
}

func (r *Registry) Get(symbol string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[symbol]
	return c, ok
}

// Resolve is Get with an error for configuration-time validation.
func (r *Registry) Resolve(symbol string) (Contract, error) {
	c, ok := r.Get(symbol)
	if !ok {
		return Contract{}, fmt.Errorf("unknown contract %s", symbol)
	}
	return c, nil
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts = make(map[string]Contract)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
