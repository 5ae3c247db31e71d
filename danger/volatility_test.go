package danger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillHistory(h *priceHistory, start time.Time, step time.Duration, changes ...float64) time.Time {
	ts := start
	for _, c := range changes {
		h.push(PricePoint{Timestamp: ts, Price: 22000 * (1 + c/100), ChangePct: c})
		ts = ts.Add(step)
	}
	return ts.Add(-step)
}

func TestPriceHistoryEvictsOldest(t *testing.T) {
	h := newPriceHistory(3)
	fillHistory(h, at(10, 0), time.Second, 0.1, 0.2, 0.3, 0.4)
	require.Equal(t, 3, h.len())
	assert.Equal(t, []float64{0.2, 0.3, 0.4}, h.changes())
	last, ok := h.latest()
	require.True(t, ok)
	assert.Equal(t, 0.4, last.ChangePct)
	assert.Len(t, h.lastPrices(10), 3)
}

func TestProfileNeedsEnoughPoints(t *testing.T) {
	h := newPriceHistory(100)
	now := fillHistory(h, at(10, 0), time.Minute, 0.1, 0.2, 0.1, 0.2, 0.1, 0.2, 0.1, 0.2, 0.1)
	_, ok := profileVolatility("NIFTY", h, 30*time.Minute, now, nil)
	assert.False(t, ok, "nine points are not enough")

	// Ten points overall but only four inside the trailing 30 minutes.
	h = newPriceHistory(100)
	fillHistory(h, at(9, 0), time.Minute, 0.1, 0.2, 0.1, 0.2, 0.1, 0.2)
	now = fillHistory(h, at(10, 0), time.Minute, 0.1, 0.2, 0.1, 0.2)
	_, ok = profileVolatility("NIFTY", h, 30*time.Minute, now, nil)
	assert.False(t, ok)
}

func TestProfileFlagsOutlierMove(t *testing.T) {
	h := newPriceHistory(100)
	now := fillHistory(h, at(10, 0), 30*time.Second,
		0.1, -0.1, 0.1, -0.1, 0.1, -0.1, 0.1, -0.1, 0.1, -0.1, 1.0)

	p, ok := profileVolatility("NIFTY", h, 30*time.Minute, now, nil)
	require.True(t, ok)
	assert.Equal(t, "NIFTY", p.Symbol)
	assert.InDelta(t, 10.0/11.0*100, p.Percentile, 1e-9)
	assert.True(t, p.IsAbnormal)
	assert.InDelta(t, 2.0/11.0, p.SessionAvg, 1e-9)
	assert.Equal(t, p.CurrentVolatility, p.DailyHigh)
	assert.Equal(t, now, p.LastUpdated)

	prev := &VolatilityProfile{DailyHigh: 5}
	p, ok = profileVolatility("NIFTY", h, 30*time.Minute, now, prev)
	require.True(t, ok)
	assert.Equal(t, 5.0, p.DailyHigh, "daily high is a running maximum")
}

func TestProfileSteadyTrendIsNormal(t *testing.T) {
	h := newPriceHistory(100)
	now := fillHistory(h, at(10, 0), time.Minute,
		0.50, 0.52, 0.54, 0.56, 0.58, 0.60, 0.62, 0.64, 0.66, 0.68, 0.60)
	p, ok := profileVolatility("NIFTY", h, 30*time.Minute, now, nil)
	require.True(t, ok)
	assert.False(t, p.IsAbnormal)
	assert.Less(t, p.CurrentVolatility, 0.1)
}
