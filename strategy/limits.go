// strategy/limits.go
package strategy

import (
	"sort"
	"strings"
	"sync"

	"index_risk_sentinel/config"
)

// Limit is the per-lot stop loss and profit target of an options strategy.
type Limit struct {
	StopLossPerLot float64
	TargetPerLot   float64
}

// MaxLoss is the rupee stop loss for a position of the given size.
func (l Limit) MaxLoss(lots int) float64 {
	return l.StopLossPerLot * float64(lots)
}

// Target is the rupee profit target for a position of the given size.
func (l Limit) Target(lots int) float64 {
	return l.TargetPerLot * float64(lots)
}

// Table resolves strategy names to their limits. Unknown strategies get the fallback.
type Table struct {
	mu       sync.RWMutex
	limits   map[string]Limit
	fallback Limit
}

// NewTable builds a table from the risk configuration.
func NewTable(cfg *config.RiskConfig) *Table {
	t := &Table{
		limits: make(map[string]Limit, len(cfg.Strategies)),
		fallback: Limit{
			StopLossPerLot: cfg.DefaultStrategy.StopLossPerLot,
			TargetPerLot:   cfg.DefaultStrategy.TargetPerLot,
		},
	}
	for name, l := range cfg.Strategies {
		t.limits[strings.ToUpper(name)] = Limit{StopLossPerLot: l.StopLossPerLot, TargetPerLot: l.TargetPerLot}
	}
	return t
}

// Lookup returns the limits for a strategy and whether it was explicitly configured.
func (t *Table) Lookup(name string) (Limit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if l, ok := t.limits[strings.ToUpper(name)]; ok {
		return l, true
	}
	return t.fallback, false
}

// Set overrides the limits of one strategy at runtime.
func (t *Table) Set(name string, l Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[strings.ToUpper(name)] = l
}

// Names lists the configured strategies in alphabetical order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.limits))
	for name := range t.limits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
