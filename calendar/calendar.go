// Package calendar describes market holidays, scheduled events and derivative expiries.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Impact ranks how disruptive an event is expected to be.
type Impact int

const (
	ImpactLow Impact = iota + 1
	ImpactMedium
	ImpactHigh
	ImpactCritical
)

func (i Impact) String() string {
	switch i {
	case ImpactLow:
		return "LOW"
	case ImpactMedium:
		return "MEDIUM"
	case ImpactHigh:
		return "HIGH"
	case ImpactCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// ParseImpact converts LOW/MEDIUM/HIGH/CRITICAL into an Impact.
func ParseImpact(s string) (Impact, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return ImpactLow, nil
	case "MEDIUM":
		return ImpactMedium, nil
	case "HIGH":
		return ImpactHigh, nil
	case "CRITICAL":
		return ImpactCritical, nil
	}
	return 0, fmt.Errorf("unknown event impact %q", s)
}

type EventType string

const (
	EventMarketHoliday EventType = "MARKET_HOLIDAY"
	EventExpiryDay     EventType = "EXPIRY_DAY"
	EventRBIPolicy     EventType = "RBI_POLICY"
	EventBudget        EventType = "BUDGET"
	EventEarnings      EventType = "EARNINGS"
	EventEconomicData  EventType = "ECONOMIC_DATA"
	EventGlobal        EventType = "GLOBAL_EVENT"
)

// AllInstruments in an event's affected list means every symbol.
const AllInstruments = "ALL"

// Event is a dated market event.
type Event struct {
	Date     time.Time
	Type     EventType
	Title    string
	Impact   Impact
	Affected []string
}

// Affects reports whether the event applies to symbol.
func (e Event) Affects(symbol string) bool {
	for _, s := range e.Affected {
		if s == AllInstruments || strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// ExpiryInfo describes the nearest derivative expiry of a symbol relative to a date.
type ExpiryInfo struct {
	Symbol       string
	Date         time.Time
	DaysToExpiry int
	IsToday      bool
	IsTomorrow   bool
}

// Calendar is the read-only calendar collaborator.
type Calendar interface {
	IsMarketHoliday(ctx context.Context, date time.Time) (bool, error)
	EventsForDate(ctx context.Context, date time.Time) ([]Event, error)
	ExpiryInfo(ctx context.Context, symbol string, date time.Time) (ExpiryInfo, error)
}

// TradingDecision is the calendar verdict for one symbol on one day.
type TradingDecision struct {
	Avoid bool
	// ForceExit is set for holidays and critical events, where open positions should be closed too.
	ForceExit bool
	Reason    string
}

// ShouldAvoidTrading evaluates holidays and high-impact events affecting symbol on date.
func ShouldAvoidTrading(ctx context.Context, cal Calendar, symbol string, date time.Time) (TradingDecision, error) {
	holiday, err := cal.IsMarketHoliday(ctx, date)
	if err != nil {
		return TradingDecision{}, fmt.Errorf("holiday lookup: %w", err)
	}
	if holiday {
		return TradingDecision{Avoid: true, ForceExit: true, Reason: "Market holiday"}, nil
	}

	events, err := cal.EventsForDate(ctx, date)
	if err != nil {
		return TradingDecision{}, fmt.Errorf("event lookup: %w", err)
	}
	var critical, high []string
	for _, ev := range events {
		if !ev.Affects(symbol) {
			continue
		}
		switch ev.Impact {
		case ImpactCritical:
			critical = append(critical, ev.Title)
		case ImpactHigh:
			high = append(high, ev.Title)
		}
	}
	if len(critical) > 0 {
		return TradingDecision{Avoid: true, ForceExit: true, Reason: "Critical events: " + strings.Join(critical, ", ")}, nil
	}
	if len(high) > 0 {
		return TradingDecision{Avoid: true, Reason: "High impact events: " + strings.Join(high, ", ")}, nil
	}
	return TradingDecision{Reason: "No significant events"}, nil
}
