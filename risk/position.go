package risk

import (
	"fmt"
	"math"
	"time"

	"index_risk_sentinel/exchange"
	"index_risk_sentinel/strategy"
	"index_risk_sentinel/utils"
)

// PositionRisk is the latest evaluation of one open position.
type PositionRisk struct {
	PositionID   string    `json:"position_id"`
	Symbol       string    `json:"symbol"`
	Strategy     string    `json:"strategy"`
	MTM          float64   `json:"mtm"`
	MaxLoss      float64   `json:"max_loss"`
	Target       float64   `json:"target"`
	Lots         int       `json:"lots"`
	DaysToExpiry int       `json:"days_to_expiry"`
	RiskScore    float64   `json:"risk_score"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Shares of stop loss and target at which early alerts fire.
const (
	stopLossWarnShare = 0.8
	targetNearShare   = 0.7
	highRiskScore     = 80
)

// EvaluatePosition scores a position and returns the first matching trigger, or nil.
func EvaluatePosition(pos exchange.Position, mtm float64, limit strategy.Limit, daysToExpiry int, now time.Time) (PositionRisk, Action) {
	maxLoss := limit.MaxLoss(pos.Lots)
	target := limit.Target(pos.Lots)

	score := 0.0
	if maxLoss > 0 {
		score = utils.RoundToPrecision(math.Min(100, math.Abs(mtm)/maxLoss*100), 2)
	}
	pr := PositionRisk{
		PositionID:   pos.ID,
		Symbol:       pos.Symbol,
		Strategy:     pos.Strategy,
		MTM:          mtm,
		MaxLoss:      maxLoss,
		Target:       target,
		Lots:         pos.Lots,
		DaysToExpiry: daysToExpiry,
		RiskScore:    score,
		LastUpdated:  now,
	}

	switch {
	case maxLoss > 0 && mtm <= -maxLoss:
		return pr, &ExitAction{
			Kind:     ActionHardExit,
			Level:    LevelCritical,
			Position: pos,
			Reason:   fmt.Sprintf("Stop loss hit: MTM %.2f, max loss %.2f", mtm, maxLoss),
		}
	case target > 0 && mtm >= target:
		return pr, &ExitAction{
			Kind:     ActionSoftExit,
			Level:    LevelSafe,
			Position: pos,
			Reason:   fmt.Sprintf("Target achieved: MTM %.2f, target %.2f", mtm, target),
		}
	case maxLoss > 0 && mtm <= -stopLossWarnShare*maxLoss:
		return pr, &AlertAction{
			Kind:       ActionAlert,
			Level:      LevelWarning,
			Symbol:     pos.Symbol,
			Strategy:   pos.Strategy,
			PositionID: pos.ID,
			Message:    fmt.Sprintf("%s %s approaching stop loss: MTM %.2f of %.2f", pos.Strategy, pos.Symbol, mtm, -maxLoss),
			MTM:        mtm,
			Lots:       pos.Lots,
		}
	case target > 0 && mtm >= targetNearShare*target:
		return pr, &AlertAction{
			Kind:       ActionMonitor,
			Level:      LevelSafe,
			Symbol:     pos.Symbol,
			Strategy:   pos.Strategy,
			PositionID: pos.ID,
			Message:    fmt.Sprintf("%s %s near target: MTM %.2f of %.2f", pos.Strategy, pos.Symbol, mtm, target),
			MTM:        mtm,
			Lots:       pos.Lots,
		}
	}
	return pr, nil
}

// daysUntil counts calendar days from now to expiry in loc.
func daysUntil(expiry, now time.Time, loc *time.Location) int {
	e := expiry.In(loc)
	n := now.In(loc)
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return int(math.Round(ed.Sub(nd).Hours() / 24))
}
