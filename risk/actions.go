// risk/actions.go
package risk

import (
	"fmt"

	"index_risk_sentinel/exchange"
)

// ActionType is the risk action vocabulary.
type ActionType string

const (
	ActionMonitor             ActionType = "MONITOR"
	ActionAlert               ActionType = "ALERT"
	ActionSoftExit            ActionType = "SOFT_EXIT"
	ActionHardExit            ActionType = "HARD_EXIT"
	ActionEmergencyExit       ActionType = "EMERGENCY_EXIT"
	ActionBlockEntry          ActionType = "BLOCK_ENTRY"
	ActionCalendarRestriction ActionType = "CALENDAR_RESTRICTION"
)

// IsExit reports whether the action closes a position.
func (a ActionType) IsExit() bool {
	return a == ActionSoftExit || a == ActionHardExit || a == ActionEmergencyExit
}

// priority orders exits so the most urgent one wins when several target one position.
func (a ActionType) priority() int {
	switch a {
	case ActionEmergencyExit:
		return 3
	case ActionHardExit:
		return 2
	case ActionSoftExit:
		return 1
	}
	return 0
}

// RiskLevel grades position and portfolio alerts.
type RiskLevel string

const (
	LevelSafe      RiskLevel = "SAFE"
	LevelWarning   RiskLevel = "WARNING"
	LevelCritical  RiskLevel = "CRITICAL"
	LevelEmergency RiskLevel = "EMERGENCY"
)

// Urgency maps a risk level to notification urgency.
func (l RiskLevel) Urgency() string {
	switch l {
	case LevelEmergency:
		return "CRITICAL"
	case LevelCritical:
		return "HIGH"
	case LevelWarning:
		return "MEDIUM"
	}
	return "LOW"
}

// Action is anything the evaluators ask the dispatcher to do.
type Action interface {
	Type() ActionType
	Description() string
}

// ExitAction closes one position.
type ExitAction struct {
	Kind     ActionType
	Level    RiskLevel
	Position exchange.Position
	Reason   string
}

func (a *ExitAction) Type() ActionType { return a.Kind }

func (a *ExitAction) Description() string {
	return fmt.Sprintf("%s %s (%s %s x%d): %s", a.Kind, a.Position.ID, a.Position.Strategy, a.Position.Symbol, a.Position.Lots, a.Reason)
}

// BlockEntryAction blocks new entries on a symbol, or on everything when Symbol is empty.
type BlockEntryAction struct {
	Symbol string
	Reason string
}

func (a *BlockEntryAction) Type() ActionType { return ActionBlockEntry }

func (a *BlockEntryAction) Description() string {
	if a.Symbol == "" {
		return "Block all entries: " + a.Reason
	}
	return fmt.Sprintf("Block entries on %s: %s", a.Symbol, a.Reason)
}

// CalendarRestrictionAction blocks a symbol because of a calendar event.
type CalendarRestrictionAction struct {
	Symbol    string
	Reason    string
	ForceExit bool
}

func (a *CalendarRestrictionAction) Type() ActionType { return ActionCalendarRestriction }

func (a *CalendarRestrictionAction) Description() string {
	return fmt.Sprintf("Calendar restriction on %s: %s", a.Symbol, a.Reason)
}

// AlertAction raises a risk alert without touching positions.
type AlertAction struct {
	Kind       ActionType // ActionAlert or ActionMonitor
	Level      RiskLevel
	Symbol     string
	Strategy   string
	PositionID string
	Message    string
	MTM        float64
	Lots       int
}

func (a *AlertAction) Type() ActionType { return a.Kind }

func (a *AlertAction) Description() string {
	return fmt.Sprintf("%s [%s] %s", a.Kind, a.Level, a.Message)
}
