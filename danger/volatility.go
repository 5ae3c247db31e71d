package danger

import (
	"math"
	"time"

	"index_risk_sentinel/utils"
)

const (
	minProfilePoints = 10
	minWindowPoints  = 5
	abnormalRatio    = 2.0
	abnormalPctile   = 90.0
)

// VolatilityProfile summarises realised volatility over the trailing window.
type VolatilityProfile struct {
	Symbol            string    `json:"symbol"`
	CurrentVolatility float64   `json:"current_volatility"`
	SessionAvg        float64   `json:"session_avg_volatility"`
	DailyHigh         float64   `json:"daily_high_volatility"`
	Percentile        float64   `json:"volatility_percentile"`
	IsAbnormal        bool      `json:"is_abnormal"`
	LastUpdated       time.Time `json:"last_updated"`
}

// profileVolatility recomputes the profile from the buffered history. It returns false, leaving
// prev untouched, until the history holds enough points overall and within the window.
func profileVolatility(symbol string, h *priceHistory, window time.Duration, now time.Time, prev *VolatilityProfile) (VolatilityProfile, bool) {
	if h.len() < minProfilePoints {
		return VolatilityProfile{}, false
	}
	recent := h.changesSince(now.Add(-window))
	if len(recent) < minWindowPoints {
		return VolatilityProfile{}, false
	}

	current := utils.StdDev(recent)
	avg := utils.MeanAbs(recent)
	percentile := utils.PercentileRank(h.changes(), recent[len(recent)-1])

	dailyHigh := current
	if prev != nil {
		dailyHigh = math.Max(prev.DailyHigh, current)
	}

	return VolatilityProfile{
		Symbol:            symbol,
		CurrentVolatility: current,
		SessionAvg:        avg,
		DailyHigh:         dailyHigh,
		Percentile:        percentile,
		IsAbnormal:        current > abnormalRatio*avg || percentile > abnormalPctile,
		LastUpdated:       now,
	}, true
}
