// investment/invest_manager.go
package investment

import "index_risk_sentinel/logs"

// Manager gates new entries on the number of open positions. The caller serialises access.
type Manager struct {
	maxOpen         int
	openCount       int
	isLimitExceeded bool
}

// NewManager creates a capacity gate. A non-positive maxOpen disables it.
func NewManager(maxOpen int) *Manager {
	return &Manager{maxOpen: maxOpen}
}

// Update applies an already known open-position count and reports whether entries are halted.
func (m *Manager) Update(open int) bool {
	m.openCount = open
	if m.maxOpen <= 0 {
		if m.isLimitExceeded {
			m.isLimitExceeded = false
			logs.Infof("[Capacity-Restore] Position limit removed, entries allowed again.")
		}
		return false
	}

	if open >= m.maxOpen {
		if !m.isLimitExceeded {
			logs.Warnf("[Capacity-Warning] %d open positions reached the limit of %d. New entries blocked.", open, m.maxOpen)
		}
		m.isLimitExceeded = true
	} else {
		if m.isLimitExceeded {
			logs.Infof("[Capacity-Restore] %d open positions, back below the limit of %d. Entries allowed again.", open, m.maxOpen)
		}
		m.isLimitExceeded = false
	}
	return m.isLimitExceeded
}

// IsTradingHalted returns whether new entries should be blocked.
func (m *Manager) IsTradingHalted() bool {
	return m.isLimitExceeded
}

// OpenCount returns the last observed number of open positions.
func (m *Manager) OpenCount() int {
	return m.openCount
}

// Limit returns the configured maximum.
func (m *Manager) Limit() int {
	return m.maxOpen
}
