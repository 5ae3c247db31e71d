package danger

import (
	"context"
	"errors"
	"time"

	"index_risk_sentinel/calendar"
	"index_risk_sentinel/logs"
)

// NewsImpact grades the current news flow.
type NewsImpact string

const (
	NewsNone   NewsImpact = ""
	NewsLow    NewsImpact = "LOW"
	NewsMedium NewsImpact = "MEDIUM"
	NewsHigh   NewsImpact = "HIGH"
)

// DefaultVIX is assumed when no volatility index reading is supplied.
const DefaultVIX = 20.0

// MarketContext is the externally supplied market backdrop used to tighten or relax thresholds.
type MarketContext struct {
	VIX         float64    `json:"vix"`
	VolumeSurge bool       `json:"volume_surge"`
	NewsImpact  NewsImpact `json:"news_impact"`
}

// DefaultMarketContext is a neutral backdrop.
func DefaultMarketContext() MarketContext {
	return MarketContext{VIX: DefaultVIX}
}

// Multiplier folds VIX, volume and news into one threshold factor.
func (c MarketContext) Multiplier() float64 {
	m := 1.0
	switch {
	case c.VIX > 30:
		m *= 0.8
	case c.VIX > 0 && c.VIX < 15:
		m *= 1.2
	}
	if c.VolumeSurge {
		m *= 0.9
	}
	switch c.NewsImpact {
	case NewsHigh:
		m *= 0.7
	case NewsMedium:
		m *= 0.85
	}
	return m
}

// Thresholds are the absolute percent moves at which each level starts.
type Thresholds struct {
	Warning   float64 `json:"WARNING"`
	Risk      float64 `json:"RISK"`
	Critical  float64 `json:"CRITICAL"`
	Emergency float64 `json:"EMERGENCY"`
	Extreme   float64 `json:"EXTREME"`
}

// Scale multiplies every threshold by m.
func (t Thresholds) Scale(m float64) Thresholds {
	return Thresholds{
		Warning:   t.Warning * m,
		Risk:      t.Risk * m,
		Critical:  t.Critical * m,
		Emergency: t.Emergency * m,
		Extreme:   t.Extreme * m,
	}
}

// For returns the threshold of level l, or 0 for SAFE.
func (t Thresholds) For(l Level) float64 {
	switch l {
	case Warning:
		return t.Warning
	case Risk:
		return t.Risk
	case Critical:
		return t.Critical
	case Emergency:
		return t.Emergency
	case Extreme:
		return t.Extreme
	}
	return 0
}

// Classify maps an absolute percent move to the highest level whose threshold it meets or exceeds.
func (t Thresholds) Classify(absPct float64) Level {
	for l := Extreme; l > Safe; l-- {
		if absPct >= t.For(l) {
			return l
		}
	}
	return Safe
}

// Multipliers records each adaptive factor applied to the base thresholds.
type Multipliers struct {
	Session    float64 `json:"session"`
	Volatility float64 `json:"volatility"`
	Calendar   float64 `json:"calendar"`
	Context    float64 `json:"context"`
	Total      float64 `json:"total"`
}

// ThresholdCalculator derives effective thresholds from base values and adaptive multipliers.
type ThresholdCalculator struct {
	base    Thresholds
	session map[Phase]float64
}

func NewThresholdCalculator(base Thresholds, session map[Phase]float64) ThresholdCalculator {
	copied := make(map[Phase]float64, len(session))
	for k, v := range session {
		copied[k] = v
	}
	return ThresholdCalculator{base: base, session: copied}
}

func (c ThresholdCalculator) Base() Thresholds { return c.base }

// Compute returns base × session × volatility × calendar × context.
func (c ThresholdCalculator) Compute(phase Phase, vol *VolatilityProfile, calendarMult float64, mctx MarketContext) (Thresholds, Multipliers) {
	sessionMult, ok := c.session[phase]
	if !ok {
		sessionMult = 1.0
	}
	if calendarMult <= 0 {
		calendarMult = 1.0
	}
	m := Multipliers{
		Session:    sessionMult,
		Volatility: VolatilityMultiplier(vol),
		Calendar:   calendarMult,
		Context:    mctx.Multiplier(),
	}
	m.Total = m.Session * m.Volatility * m.Calendar * m.Context
	return c.base.Scale(m.Total), m
}

// VolatilityMultiplier tightens thresholds in abnormal volatility and relaxes them in very quiet markets.
func VolatilityMultiplier(p *VolatilityProfile) float64 {
	if p == nil {
		return 1.0
	}
	if p.IsAbnormal {
		return 0.8
	}
	if p.CurrentVolatility < 0.1 {
		return 1.3
	}
	return 1.0
}

// CalendarMultiplier is 0.7 when a HIGH or CRITICAL event affects symbol on date, 0.8 on its
// expiry day and 1.0 otherwise. Calendar failures are logged and treated as no restriction.
func CalendarMultiplier(ctx context.Context, cal calendar.Calendar, symbol string, date time.Time) float64 {
	if cal == nil {
		return 1.0
	}
	events, err := cal.EventsForDate(ctx, date)
	if err != nil {
		logs.Warnf("[Danger] Calendar events unavailable for %s: %v", symbol, err)
		return 1.0
	}
	expiryEvent := false
	for _, ev := range events {
		if !ev.Affects(symbol) {
			continue
		}
		if ev.Impact >= calendar.ImpactHigh {
			return 0.7
		}
		if ev.Type == calendar.EventExpiryDay {
			expiryEvent = true
		}
	}
	if expiryEvent {
		return 0.8
	}
	info, err := cal.ExpiryInfo(ctx, symbol, date)
	if err != nil {
		if !errors.Is(err, calendar.ErrNoExpirySchedule) {
			logs.Warnf("[Danger] Expiry info unavailable for %s: %v", symbol, err)
		}
		return 1.0
	}
	if info.IsToday {
		return 0.8
	}
	return 1.0
}
