package danger

import (
	"math"
	"time"
)

// PricePoint is one observed tick. Points are never modified after they are buffered.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	ChangePct float64   `json:"change_pct"`
	Phase     Phase     `json:"phase"`
}

// priceHistory is a fixed-capacity FIFO of price points. Pushing into a full buffer evicts the oldest point.
type priceHistory struct {
	buf   []PricePoint
	head  int
	count int
}

func newPriceHistory(capacity int) *priceHistory {
	return &priceHistory{buf: make([]PricePoint, capacity)}
}

func (h *priceHistory) push(p PricePoint) {
	idx := (h.head + h.count) % len(h.buf)
	if h.count == len(h.buf) {
		h.buf[h.head] = p
		h.head = (h.head + 1) % len(h.buf)
		return
	}
	h.buf[idx] = p
	h.count++
}

func (h *priceHistory) len() int { return h.count }

// at returns the i-th oldest point.
func (h *priceHistory) at(i int) PricePoint {
	return h.buf[(h.head+i)%len(h.buf)]
}

func (h *priceHistory) latest() (PricePoint, bool) {
	if h.count == 0 {
		return PricePoint{}, false
	}
	return h.at(h.count - 1), true
}

// changes returns every buffered change% in arrival order.
func (h *priceHistory) changes() []float64 {
	out := make([]float64, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.at(i).ChangePct
	}
	return out
}

// changesSince returns the change% of points at or after cutoff, in arrival order.
func (h *priceHistory) changesSince(cutoff time.Time) []float64 {
	first := h.count
	for i := h.count - 1; i >= 0; i-- {
		if h.at(i).Timestamp.Before(cutoff) {
			break
		}
		first = i
	}
	out := make([]float64, 0, h.count-first)
	for i := first; i < h.count; i++ {
		out = append(out, h.at(i).ChangePct)
	}
	return out
}

// lastPrices returns up to n of the most recent prices, oldest first.
func (h *priceHistory) lastPrices(n int) []float64 {
	if n > h.count {
		n = h.count
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = h.at(h.count - n + i).Price
	}
	return out
}

func (h *priceHistory) reset() {
	h.head = 0
	h.count = 0
}

// DailyMetrics aggregates one symbol's session. It is reset at the start of each trading day.
type DailyMetrics struct {
	SessionStartPrice float64   `json:"session_start_price"`
	DailyHigh         float64   `json:"daily_high"`
	DailyLow          float64   `json:"daily_low"`
	MaxPositiveMove   float64   `json:"max_positive_move"`
	MaxNegativeMove   float64   `json:"max_negative_move"`
	VolatilityEvents  int       `json:"volatility_events"`
	ThresholdBreaches int       `json:"threshold_breaches"`
	LastMajorMoveTime time.Time `json:"last_major_move_time,omitempty"`
	IntradayRangePct  float64   `json:"intraday_range_pct"`
	VWAP              float64   `json:"vwap"`
	TotalVolume       int64     `json:"total_volume"`
	Ticks             int       `json:"ticks"`
}

// volatilityEventPct is the absolute move counted as a volatility event.
const volatilityEventPct = 0.5

func (m *DailyMetrics) update(price float64, volume int64, changePct, breachPct float64, now time.Time) {
	if m.Ticks == 0 {
		m.DailyHigh = price
		m.DailyLow = price
	}
	m.Ticks++
	m.DailyHigh = math.Max(m.DailyHigh, price)
	m.DailyLow = math.Min(m.DailyLow, price)

	if changePct > m.MaxPositiveMove {
		m.MaxPositiveMove = changePct
	}
	if changePct < m.MaxNegativeMove {
		m.MaxNegativeMove = changePct
	}
	if math.Abs(changePct) > volatilityEventPct {
		m.VolatilityEvents++
	}
	if math.Abs(changePct) >= breachPct {
		m.ThresholdBreaches++
		m.LastMajorMoveTime = now
	}
	if m.SessionStartPrice > 0 {
		m.IntradayRangePct = (m.DailyHigh - m.DailyLow) * 100 / m.SessionStartPrice
	}
	if volume > 0 {
		prevVolume := m.TotalVolume
		m.TotalVolume += volume
		m.VWAP = (m.VWAP*float64(prevVolume) + price*float64(volume)) / float64(m.TotalVolume)
	}
}
