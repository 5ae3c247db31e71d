package danger

import "time"

// Reason tags why an alert fired or was suppressed.
type Reason string

const (
	ReasonExtremeLevel    Reason = "EXTREME_LEVEL"
	ReasonCriticalFirst   Reason = "CRITICAL_FIRST"
	ReasonEscalation      Reason = "ESCALATION"
	ReasonSustainedDanger Reason = "SUSTAINED_DANGER"
	ReasonCooldown        Reason = "COOLDOWN"
	ReasonFirstAlert      Reason = "FIRST_ALERT"
	ReasonSafe            Reason = "SAFE"
)

type lastAlert struct {
	level Level
	at    time.Time
}

// escalator is the per-symbol alert state machine. It is not safe for concurrent use;
// Monitor serialises access under its lock.
type escalator struct {
	alertCooldown      time.Duration
	escalationCooldown time.Duration
	last               map[string]lastAlert
}

func newEscalator(alertCooldown, escalationCooldown time.Duration) *escalator {
	return &escalator{
		alertCooldown:      alertCooldown,
		escalationCooldown: escalationCooldown,
		last:               make(map[string]lastAlert),
	}
}

// decide applies the escalation rules in order; the first matching rule wins.
// A CRITICAL reading fires unless the previous alert was itself CRITICAL; it is tagged
// ESCALATION when it outranks an earlier alert and CRITICAL_FIRST otherwise.
func (e *escalator) decide(symbol string, level Level, now time.Time) (bool, Reason) {
	if level == Safe {
		return false, ReasonSafe
	}
	if level >= Emergency {
		return true, ReasonExtremeLevel
	}

	prev, seen := e.last[symbol]
	if level == Critical && (!seen || prev.level != Critical) {
		if seen && prev.level < Critical {
			return true, ReasonEscalation
		}
		return true, ReasonCriticalFirst
	}
	if !seen {
		return true, ReasonFirstAlert
	}

	elapsed := now.Sub(prev.at)
	if level > prev.level && elapsed >= e.escalationCooldown {
		return true, ReasonEscalation
	}
	if level == prev.level && elapsed >= e.alertCooldown && level >= Critical {
		return true, ReasonSustainedDanger
	}
	if elapsed < e.alertCooldown {
		return false, ReasonCooldown
	}
	return true, ReasonFirstAlert
}

// record notes that an alert of level fired at now.
func (e *escalator) record(symbol string, level Level, now time.Time) {
	e.last[symbol] = lastAlert{level: level, at: now}
}

func (e *escalator) reset() {
	e.last = make(map[string]lastAlert)
}
