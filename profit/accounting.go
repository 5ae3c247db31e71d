package profit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Exit records a position closed by the broker, with its realized P&L.
type Exit struct {
	PositionID string
	Symbol     string
	Strategy   string
	Action     string
	PnL        decimal.Decimal
	Timestamp  time.Time
}

// Accountant tracks the realized P&L of the current trading day.
// Amounts are kept as decimals so repeated exits do not accumulate float drift.
type Accountant struct {
	mu       sync.Mutex
	day      string
	realized decimal.Decimal
	exits    []Exit
}

// NewAccountant creates a ledger for the given trading day.
func NewAccountant(day string) *Accountant {
	return &Accountant{
		day:   day,
		exits: make([]Exit, 0),
	}
}

// RecordExit books the realized P&L of one closed position.
func (a *Accountant) RecordExit(e Exit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exits = append(a.exits, e)
	a.realized = a.realized.Add(e.PnL)
}

// Realized returns the realized P&L of the day.
func (a *Accountant) Realized() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}

// DailyPnL is realized P&L plus the mark-to-market of the positions still open.
func (a *Accountant) DailyPnL(openMTMs ...float64) float64 {
	a.mu.Lock()
	total := a.realized
	a.mu.Unlock()
	for _, mtm := range openMTMs {
		total = total.Add(decimal.NewFromFloat(mtm))
	}
	return total.InexactFloat64()
}

// Exits returns a copy of the exits booked today.
func (a *Accountant) Exits() []Exit {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Exit, len(a.exits))
	copy(out, a.exits)
	return out
}

// Day returns the trading day the ledger belongs to.
func (a *Accountant) Day() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.day
}

// Restore recovers realized P&L from persistent state.
func (a *Accountant) Restore(day string, realized float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.day = day
	a.realized = decimal.NewFromFloat(realized)
}

// Reset starts a new trading day with an empty ledger.
func (a *Accountant) Reset(day string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.day = day
	a.realized = decimal.Zero
	a.exits = a.exits[:0]
}
