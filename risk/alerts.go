package risk

import (
	"time"
)

// RiskAlert is a position or portfolio alert kept for the retention window.
type RiskAlert struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	Level            RiskLevel  `json:"risk_level"`
	Action           ActionType `json:"action_type"`
	Symbol           string     `json:"symbol"`
	Strategy         string     `json:"strategy,omitempty"`
	PositionID       string     `json:"position_id,omitempty"`
	Message          string     `json:"message"`
	MTM              float64    `json:"mtm"`
	Lots             int        `json:"lots"`
	Urgency          string     `json:"urgency"`
	AutoActionTaken  bool       `json:"auto_action_taken"`
	NotificationSent bool       `json:"notification_sent"`
}

// alertBook holds risk alerts younger than the retention window. Callers hold the engine lock.
type alertBook struct {
	retention time.Duration
	alerts    []RiskAlert
}

func (b *alertBook) add(a RiskAlert) {
	b.alerts = append(b.alerts, a)
}

// purge drops alerts older than the retention window.
func (b *alertBook) purge(now time.Time) {
	if b.retention <= 0 {
		return
	}
	cutoff := now.Add(-b.retention)
	keep := b.alerts[:0]
	for _, a := range b.alerts {
		if !a.Timestamp.Before(cutoff) {
			keep = append(keep, a)
		}
	}
	b.alerts = keep
}

func (b *alertBook) snapshot() []RiskAlert {
	out := make([]RiskAlert, len(b.alerts))
	copy(out, b.alerts)
	return out
}

func (b *alertBook) reset() {
	b.alerts = nil
}
