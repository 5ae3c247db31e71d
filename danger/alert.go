package danger

import (
	"fmt"
	"time"

	"index_risk_sentinel/utils"
)

// TechnicalSnapshot holds simple moving-average context, available once 20 points are buffered.
type TechnicalSnapshot struct {
	SMA5            float64 `json:"sma_5"`
	SMA10           float64 `json:"sma_10"`
	SMA20           float64 `json:"sma_20"`
	PriceVsSMA5Pct  float64 `json:"price_vs_sma5_pct"`
	PriceVsSMA20Pct float64 `json:"price_vs_sma20_pct"`
	Momentum5       float64 `json:"momentum_5"`
	CurrentPrice    float64 `json:"current_price"`
}

const technicalMinPoints = 20

func technicalSnapshot(h *priceHistory) *TechnicalSnapshot {
	if h.len() < technicalMinPoints {
		return nil
	}
	prices := h.lastPrices(technicalMinPoints)
	current := prices[len(prices)-1]
	sma5 := utils.Mean(prices[len(prices)-5:])
	sma10 := utils.Mean(prices[len(prices)-10:])
	sma20 := utils.Mean(prices)
	return &TechnicalSnapshot{
		SMA5:            sma5,
		SMA10:           sma10,
		SMA20:           sma20,
		PriceVsSMA5Pct:  utils.PercentChange(sma5, current),
		PriceVsSMA20Pct: utils.PercentChange(sma20, current),
		Momentum5:       utils.PercentChange(prices[len(prices)-6], current),
		CurrentPrice:    current,
	}
}

// DangerZoneAlert is an emitted alert. Alerts are immutable once built.
type DangerZoneAlert struct {
	ID             string             `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	Symbol         string             `json:"symbol"`
	Price          float64            `json:"price"`
	Change         float64            `json:"change"`
	ChangePct      float64            `json:"change_pct"`
	Level          Level              `json:"level"`
	Phase          Phase              `json:"phase"`
	Message        string             `json:"message"`
	RequiredAction string             `json:"required_action"`
	Urgency        string             `json:"urgency"`
	Reason         Reason             `json:"reason"`
	Thresholds     Thresholds         `json:"thresholds"`
	Multipliers    Multipliers        `json:"multipliers"`
	Volatility     *VolatilityProfile `json:"volatility,omitempty"`
	Market         MarketContext      `json:"market_context"`
	Technical      *TechnicalSnapshot `json:"technical,omitempty"`
}

func alertMessage(symbol string, changePct float64, level Level, phase Phase, reason Reason) string {
	direction := "UP"
	if changePct < 0 {
		direction = "DOWN"
	}
	prefix := ""
	switch reason {
	case ReasonEscalation:
		prefix = "ESCALATION: "
	case ReasonSustainedDanger:
		prefix = "SUSTAINED: "
	case ReasonExtremeLevel:
		prefix = "EXTREME MOVE: "
	}
	return fmt.Sprintf("%s%s %s %s moved %+.2f%% from session start [%s]", prefix, level, direction, symbol, changePct, phase)
}
