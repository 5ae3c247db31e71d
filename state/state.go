// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"index_risk_sentinel/logs"
)

// StateManagerInterface is the persisted per-day risk state used by the risk monitor.
type StateManagerInterface interface {
	// GetDayState returns a copy of the current trading day's state.
	GetDayState() DayState
	// RollDay starts a fresh state when day differs from the stored trading day.
	// It reports whether a roll happened.
	RollDay(day string) (bool, error)
	// TripCircuitBreaker latches the breaker for the rest of the day.
	TripCircuitBreaker(reason string, at time.Time) error
	// RecordAction increments the counter of an executed risk action.
	RecordAction(action string) error
	// AddRealizedPNL adds realized P&L from a closed position.
	AddRealizedPNL(pnl float64) error
	// MarkNotified records a once-per-day notification key and reports whether it was new.
	MarkNotified(key string) (bool, error)
}

// Counters are the risk actions executed during one trading day.
type Counters struct {
	SoftExits           int `json:"soft_exits"`
	HardExits           int `json:"hard_exits"`
	EmergencyExits      int `json:"emergency_exits"`
	BlockedEntries      int `json:"blocked_entries"`
	CalendarBlocks      int `json:"calendar_blocks"`
	NotificationsFailed int `json:"notifications_failed"`
}

// DayState is the top-level structure persisted to state.json.
type DayState struct {
	TradingDay            string          `json:"trading_day"`
	CircuitBreakerTripped bool            `json:"circuit_breaker_tripped"`
	BreakerReason         string          `json:"breaker_reason,omitempty"`
	BreakerTrippedAt      time.Time       `json:"breaker_tripped_at"`
	RealizedPNL           float64         `json:"realized_pnl"`
	Counters              Counters        `json:"counters"`
	Notified              map[string]bool `json:"notified"`
}

func newDayState(day string) *DayState {
	return &DayState{TradingDay: day, Notified: make(map[string]bool)}
}

// StateManager is the file implementation of StateManagerInterface.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    *DayState
}

var _ StateManagerInterface = (*StateManager)(nil)

// NewStateManager loads existing state, or creates an empty state file if none exists.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{
		filePath: filePath,
		state:    newDayState(""),
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("State file not found at %s. Starting with a fresh state.", filePath)
			if err := sm.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial empty state file: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	if sm.state.Notified == nil {
		sm.state.Notified = make(map[string]bool)
	}
	return sm, nil
}

// save performs an atomic write while the lock is held.
func (sm *StateManager) save() error {
	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, sm.filePath)
}

func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, sm.state)
}

func (sm *StateManager) GetDayState() DayState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	copied := *sm.state
	copied.Notified = make(map[string]bool, len(sm.state.Notified))
	for k, v := range sm.state.Notified {
		copied.Notified[k] = v
	}
	return copied
}

func (sm *StateManager) RollDay(day string) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state.TradingDay == day {
		return false, nil
	}
	prev := sm.state.TradingDay
	sm.state = newDayState(day)
	if prev != "" {
		logs.Infof("New trading day %s, risk state from %s cleared.", day, prev)
	}
	return true, sm.save()
}

func (sm *StateManager) TripCircuitBreaker(reason string, at time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state.CircuitBreakerTripped {
		return nil
	}
	sm.state.CircuitBreakerTripped = true
	sm.state.BreakerReason = reason
	sm.state.BreakerTrippedAt = at
	return sm.save()
}

func (sm *StateManager) RecordAction(action string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	c := &sm.state.Counters
	switch action {
	case "SOFT_EXIT":
		c.SoftExits++
	case "HARD_EXIT":
		c.HardExits++
	case "EMERGENCY_EXIT":
		c.EmergencyExits++
	case "BLOCK_ENTRY":
		c.BlockedEntries++
	case "CALENDAR_RESTRICTION":
		c.CalendarBlocks++
	case "NOTIFICATION_FAILED":
		c.NotificationsFailed++
	default:
		return nil
	}
	return sm.save()
}

func (sm *StateManager) AddRealizedPNL(pnl float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.RealizedPNL += pnl
	return sm.save()
}

func (sm *StateManager) MarkNotified(key string) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state.Notified[key] {
		return false, nil
	}
	sm.state.Notified[key] = true
	return true, sm.save()
}
