package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentChange(t *testing.T) {
	assert.Equal(t, -1.0, PercentChange(22000, 21780))
	assert.Equal(t, -2.0, PercentChange(22000, 21560))
	assert.Equal(t, 0.0, PercentChange(0, 100))
}

func TestStatistics(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(values), 1e-12)
	assert.InDelta(t, 2.0, StdDev(values), 1e-12)
	assert.InDelta(t, 1.5, MeanAbs([]float64{-1, 2}), 1e-12)
	assert.Zero(t, StdDev(nil))
	assert.Zero(t, Mean(nil))
}

func TestPercentileRank(t *testing.T) {
	values := []float64{0.1, -0.2, 0.3, -0.4}
	// 0.1, 0.2 and 0.3 are strictly below 0.35 in magnitude
	assert.InDelta(t, 75.0, PercentileRank(values, -0.35), 1e-12)
	assert.Zero(t, PercentileRank(values, 0.1))
	assert.Zero(t, PercentileRank(nil, 1))
}

func TestManualClockAndDayHelpers(t *testing.T) {
	ist := time.FixedZone("IST", 19800)
	start := time.Date(2026, 3, 10, 23, 50, 0, 0, ist)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, "2026-03-10", TradingDay(c.Now(), ist))

	c.Advance(15 * time.Minute)
	assert.Equal(t, "2026-03-11", TradingDay(c.Now(), ist))
	assert.Equal(t, 5*time.Minute, MinutesIntoDay(c.Now(), ist))
	assert.True(t, FloatEquals(0.1+0.2, 0.3))
}
