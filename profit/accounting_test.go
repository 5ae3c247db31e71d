package profit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccountantDailyPnL(t *testing.T) {
	a := NewAccountant("2026-03-10")
	for i := 0; i < 10; i++ {
		a.RecordExit(Exit{PositionID: "P", PnL: decimal.NewFromFloat(0.1), Timestamp: time.Now()})
	}
	assert.True(t, a.Realized().Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1.0, a.DailyPnL())
	assert.Equal(t, -499.0, a.DailyPnL(-300, -200))
	assert.Len(t, a.Exits(), 10)
}

func TestAccountantRestoreAndReset(t *testing.T) {
	a := NewAccountant("2026-03-09")
	a.Restore("2026-03-10", -2500.5)
	assert.Equal(t, "2026-03-10", a.Day())
	assert.Equal(t, -2500.5, a.DailyPnL())

	a.RecordExit(Exit{PositionID: "P1", PnL: decimal.NewFromInt(-100)})
	a.Reset("2026-03-11")
	assert.True(t, a.Realized().IsZero())
	assert.Empty(t, a.Exits())
	assert.Equal(t, "2026-03-11", a.Day())
}
