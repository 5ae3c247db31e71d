// Package danger classifies intraday index moves into danger levels using thresholds
// that adapt to the session phase, realised volatility, the calendar and market context.
package danger

import (
	"time"
)

// Level is the ranked danger classification of a session move. Levels compare by rank only.
type Level int

const (
	Safe Level = iota
	Warning
	Risk
	Critical
	Emergency
	Extreme
)

var levelNames = [...]string{"SAFE", "WARNING", "RISK", "CRITICAL", "EMERGENCY", "EXTREME"}

func (l Level) String() string {
	if l < Safe || l > Extreme {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// MarshalText renders the level by name in JSON and logs.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// RequiredAction is the recommendation attached to an alert of this level.
func (l Level) RequiredAction() string {
	switch l {
	case Warning:
		return "MONITOR_CLOSELY"
	case Risk:
		return "PREPARE_EXIT"
	case Critical:
		return "AUTO_EXIT"
	case Emergency:
		return "EMERGENCY_EXIT"
	case Extreme:
		return "IMMEDIATE_EXIT"
	}
	return "NONE"
}

// Urgency is LOW for SAFE, MEDIUM for WARNING, HIGH for RISK and CRITICAL above that.
func (l Level) Urgency() string {
	switch {
	case l >= Critical:
		return "CRITICAL"
	case l == Risk:
		return "HIGH"
	case l == Warning:
		return "MEDIUM"
	}
	return "LOW"
}

// Phase is the intraday session phase on the exchange wall clock.
type Phase string

const (
	PreMarket  Phase = "PRE_MARKET"
	Opening    Phase = "OPENING"
	Morning    Phase = "MORNING"
	MidDay     Phase = "MID_DAY"
	Afternoon  Phase = "AFTERNOON"
	Closing    Phase = "CLOSING"
	PostMarket Phase = "POST_MARKET"
)

// Phases lists every phase in session order.
var Phases = []Phase{PreMarket, Opening, Morning, MidDay, Afternoon, Closing, PostMarket}

type phaseWindow struct {
	start, end time.Duration
	phase      Phase
}

func hm(h, m int) time.Duration { return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute }

var sessionWindows = []phaseWindow{
	{hm(9, 0), hm(9, 15), PreMarket},
	{hm(9, 15), hm(9, 45), Opening},
	{hm(9, 45), hm(11, 30), Morning},
	{hm(11, 30), hm(13, 30), MidDay},
	{hm(13, 30), hm(15, 0), Afternoon},
	{hm(15, 0), hm(15, 30), Closing},
}

// PhaseAt classifies t (converted to loc) into a session phase. Windows are start-inclusive.
func PhaseAt(t time.Time, loc *time.Location) Phase {
	lt := t.In(loc)
	offset := time.Duration(lt.Hour())*time.Hour + time.Duration(lt.Minute())*time.Minute + time.Duration(lt.Second())*time.Second
	for _, w := range sessionWindows {
		if offset >= w.start && offset < w.end {
			return w.phase
		}
	}
	return PostMarket
}
