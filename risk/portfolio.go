package risk

import (
	"fmt"
	"time"

	"index_risk_sentinel/config"
	"index_risk_sentinel/exchange"
)

// PortfolioLimits are the account-wide rules.
type PortfolioLimits struct {
	DailyLossLimit   float64
	MaxOpenPositions int
	// EntryCutoff and MandatoryExit are offsets from local midnight.
	EntryCutoff   time.Duration
	MandatoryExit time.Duration
}

// LimitsFromConfig reads the portfolio rules from the risk configuration.
func LimitsFromConfig(cfg *config.RiskConfig) (PortfolioLimits, error) {
	cutoff, err := config.ParseClock(cfg.EntryCutoff)
	if err != nil {
		return PortfolioLimits{}, fmt.Errorf("entry_cutoff: %w", err)
	}
	exit, err := config.ParseClock(cfg.MandatoryExit)
	if err != nil {
		return PortfolioLimits{}, fmt.Errorf("mandatory_exit: %w", err)
	}
	return PortfolioLimits{
		DailyLossLimit:   cfg.DailyLossLimit(),
		MaxOpenPositions: cfg.MaxOpenPositions,
		EntryCutoff:      cutoff,
		MandatoryExit:    exit,
	}, nil
}

// PortfolioInput is a snapshot taken outside the engine lock.
type PortfolioInput struct {
	Positions      []exchange.Position
	DailyPnL       float64
	BreakerTripped bool
	// AtCapacity is set when the open-position gate is closed.
	AtCapacity bool
	// TimeOfDay is the wall-clock offset from local midnight.
	TimeOfDay time.Duration
}

// PortfolioDecision is what the aggregator wants done this cycle.
type PortfolioDecision struct {
	Actions     []Action
	TripBreaker bool
	BreakerNote string
}

// EvaluatePortfolio applies the account-wide rules. Once the breaker is latched every open
// position keeps receiving HARD_EXIT until it is gone.
func EvaluatePortfolio(in PortfolioInput, l PortfolioLimits) PortfolioDecision {
	var d PortfolioDecision

	lossHit := l.DailyLossLimit > 0 && in.DailyPnL <= -l.DailyLossLimit
	if lossHit && !in.BreakerTripped {
		d.TripBreaker = true
		d.BreakerNote = fmt.Sprintf("Daily loss %.2f breached limit %.2f", in.DailyPnL, -l.DailyLossLimit)
	}
	if lossHit || in.BreakerTripped {
		reason := d.BreakerNote
		if reason == "" {
			reason = "Circuit breaker active"
		}
		for _, p := range in.Positions {
			d.Actions = append(d.Actions, &ExitAction{Kind: ActionHardExit, Level: LevelEmergency, Position: p, Reason: reason})
		}
		d.Actions = append(d.Actions, &BlockEntryAction{Reason: "Circuit breaker: daily loss limit"})
		return d
	}

	if in.AtCapacity {
		d.Actions = append(d.Actions, &BlockEntryAction{
			Reason: fmt.Sprintf("Max open positions reached (%d/%d)", len(in.Positions), l.MaxOpenPositions),
		})
	}
	if l.EntryCutoff > 0 && in.TimeOfDay >= l.EntryCutoff {
		d.Actions = append(d.Actions, &BlockEntryAction{Reason: "Past entry cutoff " + clock(l.EntryCutoff)})
	}
	if l.MandatoryExit > 0 && in.TimeOfDay >= l.MandatoryExit {
		for _, p := range in.Positions {
			d.Actions = append(d.Actions, &ExitAction{
				Kind:     ActionHardExit,
				Level:    LevelCritical,
				Position: p,
				Reason:   "Mandatory exit time " + clock(l.MandatoryExit),
			})
		}
	}
	return d
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
