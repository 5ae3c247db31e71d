package danger

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"index_risk_sentinel/calendar"
	"index_risk_sentinel/config"
	"index_risk_sentinel/logs"
	"index_risk_sentinel/metrics"
	"index_risk_sentinel/utils"

	"github.com/google/uuid"
)

// Settings is the static configuration of a Monitor.
type Settings struct {
	Symbols            []string
	Location           *time.Location
	BaseThresholds     Thresholds
	SessionMultipliers map[Phase]float64
	AlertCooldown      time.Duration
	EscalationCooldown time.Duration
	HistoryCapacity    int
	AlertHistoryCap    int
	AlertHistoryTrimTo int
	VolatilityWindow   time.Duration
}

// SettingsFromConfig maps the YAML configuration onto monitor settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	d := cfg.Danger
	session := make(map[Phase]float64, len(d.SessionMultipliers))
	for k, v := range d.SessionMultipliers {
		session[Phase(strings.ToUpper(k))] = v
	}
	return Settings{
		Symbols:  cfg.Symbols,
		Location: cfg.Location(),
		BaseThresholds: Thresholds{
			Warning:   d.BaseThresholds.Warning,
			Risk:      d.BaseThresholds.Risk,
			Critical:  d.BaseThresholds.Critical,
			Emergency: d.BaseThresholds.Emergency,
			Extreme:   d.BaseThresholds.Extreme,
		},
		SessionMultipliers: session,
		AlertCooldown:      time.Duration(d.AlertCooldownSeconds) * time.Second,
		EscalationCooldown: time.Duration(d.EscalationCooldownSeconds) * time.Second,
		HistoryCapacity:    d.HistoryCapacity,
		AlertHistoryCap:    d.AlertHistoryCap,
		AlertHistoryTrimTo: d.AlertHistoryTrimTo,
		VolatilityWindow:   time.Duration(d.VolatilityWindowMinutes) * time.Minute,
	}
}

// DefaultSettings returns the settings implied by config.NewConfig.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.NewConfig())
}

// Tick is one price observation handed to RecordTick.
type Tick struct {
	Symbol string
	Price  float64
	Volume int64
	// SessionStart overrides the session reference price when positive.
	SessionStart float64
	// Context replaces the current market context when non-nil.
	Context *MarketContext
}

type symbolState struct {
	history     *priceHistory
	metrics     DailyMetrics
	profile     *VolatilityProfile
	level       Level
	changePct   float64
	thresholds  Thresholds
	multipliers Multipliers
	lastUpdate  time.Time
}

// Monitor is the danger-zone engine. All per-symbol state sits behind one lock; calendar
// lookups happen before the lock is taken.
type Monitor struct {
	mu       sync.Locker
	settings Settings
	calc     ThresholdCalculator
	cal      calendar.Calendar
	clock    utils.Clock

	tracked map[string]bool
	day     string
	symbols map[string]*symbolState
	esc     *escalator
	alerts  []DangerZoneAlert
	market  MarketContext
}

// Option customises a Monitor at construction.
type Option func(*Monitor)

// WithLocker makes the monitor share a lock with the caller, so a wider engine can guard
// danger state and its own state with a single mutex.
func WithLocker(l sync.Locker) Option {
	return func(m *Monitor) { m.mu = l }
}

func NewMonitor(s Settings, cal calendar.Calendar, clock utils.Clock, opts ...Option) *Monitor {
	if s.Location == nil {
		s.Location = time.FixedZone("IST", 5*3600+30*60)
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if s.HistoryCapacity <= 0 {
		s.HistoryCapacity = 1000
	}
	if s.AlertHistoryTrimTo <= 0 || s.AlertHistoryTrimTo > s.AlertHistoryCap {
		s.AlertHistoryTrimTo = s.AlertHistoryCap
	}
	m := &Monitor{
		mu:       &sync.Mutex{},
		settings: s,
		calc:     NewThresholdCalculator(s.BaseThresholds, s.SessionMultipliers),
		cal:      cal,
		clock:    clock,
		tracked:  make(map[string]bool, len(s.Symbols)),
		symbols:  make(map[string]*symbolState),
		esc:      newEscalator(s.AlertCooldown, s.EscalationCooldown),
		market:   DefaultMarketContext(),
	}
	for _, sym := range s.Symbols {
		m.tracked[strings.ToUpper(sym)] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Symbols returns the tracked symbols in configuration order.
func (m *Monitor) Symbols() []string {
	out := make([]string, len(m.settings.Symbols))
	copy(out, m.settings.Symbols)
	return out
}

// Location is the market time zone used for sessions and trading days.
func (m *Monitor) Location() *time.Location { return m.settings.Location }

// SetMarketContext replaces the market backdrop used for subsequent ticks.
func (m *Monitor) SetMarketContext(c MarketContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.market = c
}

// RecordTick ingests one price and returns the alert it produced, if any. Untracked symbols
// and non-positive prices are ignored.
func (m *Monitor) RecordTick(ctx context.Context, t Tick) *DangerZoneAlert {
	symbol := strings.ToUpper(t.Symbol)
	if !m.tracked[symbol] || t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return nil
	}

	now := m.clock.Now()
	calMult := CalendarMultiplier(ctx, m.cal, symbol, now)

	m.mu.Lock()
	alert, level, changePct := m.recordLocked(symbol, t, now, calMult)
	m.mu.Unlock()

	metrics.SetDangerLevel(symbol, int(level), changePct)
	if alert != nil {
		metrics.RecordDangerAlert(symbol, alert.Level.String(), string(alert.Reason))
		logs.WithFields(logs.Fields{
			"symbol": symbol,
			"level":  alert.Level.String(),
			"reason": string(alert.Reason),
			"phase":  string(alert.Phase),
		}).Warnf("[Danger] %s", alert.Message)
	}
	return alert
}

func (m *Monitor) recordLocked(symbol string, t Tick, now time.Time, calMult float64) (*DangerZoneAlert, Level, float64) {
	m.rollDayLocked(now)
	if t.Context != nil {
		m.market = *t.Context
	}

	st := m.stateLocked(symbol)
	if t.SessionStart > 0 {
		st.metrics.SessionStartPrice = t.SessionStart
	} else if st.metrics.SessionStartPrice <= 0 {
		st.metrics.SessionStartPrice = t.Price
	}
	start := st.metrics.SessionStartPrice
	changePct := utils.PercentChange(start, t.Price)
	phase := PhaseAt(now, m.settings.Location)

	st.metrics.update(t.Price, t.Volume, changePct, m.settings.BaseThresholds.Warning, now)
	st.history.push(PricePoint{
		Timestamp: now,
		Price:     t.Price,
		Volume:    t.Volume,
		ChangePct: changePct,
		Phase:     phase,
	})
	if p, ok := profileVolatility(symbol, st.history, m.settings.VolatilityWindow, now, st.profile); ok {
		st.profile = &p
	}

	thresholds, mult := m.calc.Compute(phase, st.profile, calMult, m.market)
	level := thresholds.Classify(math.Abs(changePct))
	st.level = level
	st.changePct = changePct
	st.thresholds = thresholds
	st.multipliers = mult
	st.lastUpdate = now

	fire, reason := m.esc.decide(symbol, level, now)
	if !fire {
		if reason == ReasonCooldown {
			logs.Debugf("[Danger] %s %s suppressed by cooldown", symbol, level)
		}
		return nil, level, changePct
	}

	alert := DangerZoneAlert{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Symbol:         symbol,
		Price:          t.Price,
		Change:         t.Price - start,
		ChangePct:      changePct,
		Level:          level,
		Phase:          phase,
		Message:        alertMessage(symbol, changePct, level, phase, reason),
		RequiredAction: level.RequiredAction(),
		Urgency:        level.Urgency(),
		Reason:         reason,
		Thresholds:     thresholds,
		Multipliers:    mult,
		Market:         m.market,
		Technical:      technicalSnapshot(st.history),
	}
	if st.profile != nil {
		p := *st.profile
		alert.Volatility = &p
	}
	m.esc.record(symbol, level, now)
	m.appendAlertLocked(alert)
	return &alert, level, changePct
}

func (m *Monitor) stateLocked(symbol string) *symbolState {
	st, ok := m.symbols[symbol]
	if !ok {
		st = &symbolState{history: newPriceHistory(m.settings.HistoryCapacity)}
		m.symbols[symbol] = st
	}
	return st
}

func (m *Monitor) appendAlertLocked(a DangerZoneAlert) {
	m.alerts = append(m.alerts, a)
	if m.settings.AlertHistoryCap > 0 && len(m.alerts) > m.settings.AlertHistoryCap {
		keep := m.settings.AlertHistoryTrimTo
		trimmed := make([]DangerZoneAlert, keep)
		copy(trimmed, m.alerts[len(m.alerts)-keep:])
		m.alerts = trimmed
	}
}

// rollDayLocked clears daily state the first time a new trading day is observed.
func (m *Monitor) rollDayLocked(now time.Time) {
	day := utils.TradingDay(now, m.settings.Location)
	if m.day == day {
		return
	}
	if m.day != "" {
		logs.Infof("[Danger] New trading day %s, resetting daily tracking (previous %s)", day, m.day)
	}
	m.resetLocked()
	m.day = day
}

func (m *Monitor) resetLocked() {
	m.symbols = make(map[string]*symbolState)
	m.esc.reset()
	m.alerts = nil
}

// ResetDaily clears histories, daily metrics, volatility profiles, cooldown state and alert history.
func (m *Monitor) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.day = utils.TradingDay(m.clock.Now(), m.settings.Location)
	logs.Info("[Danger] Daily tracking reset")
}

// CurrentLevel returns the level computed at the symbol's most recent tick.
func (m *Monitor) CurrentLevel(symbol string) (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.symbols[strings.ToUpper(symbol)]
	if !ok || st.history.len() == 0 {
		return Safe, false
	}
	return st.level, true
}

// SymbolStatus is a point-in-time view of one symbol.
type SymbolStatus struct {
	Symbol       string             `json:"symbol"`
	CurrentPrice float64            `json:"current_price"`
	ChangePct    float64            `json:"change_pct"`
	Level        Level              `json:"level"`
	Thresholds   Thresholds         `json:"thresholds"`
	Multipliers  Multipliers        `json:"multipliers"`
	Volatility   *VolatilityProfile `json:"volatility,omitempty"`
	Daily        DailyMetrics       `json:"daily_metrics"`
	DataPoints   int                `json:"data_points"`
	LastUpdate   time.Time          `json:"last_update"`
	Staleness    time.Duration      `json:"staleness"`
}

// Status is a point-in-time view of the whole engine.
type Status struct {
	Timestamp   time.Time               `json:"timestamp"`
	Phase       Phase                   `json:"phase"`
	Market      MarketContext           `json:"market_context"`
	Symbols     map[string]SymbolStatus `json:"symbols"`
	TotalAlerts int                     `json:"total_alerts"`
}

// Status snapshots every tracked symbol that has data.
func (m *Monitor) Status() Status {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Status{
		Timestamp:   now,
		Phase:       PhaseAt(now, m.settings.Location),
		Market:      m.market,
		Symbols:     make(map[string]SymbolStatus, len(m.symbols)),
		TotalAlerts: len(m.alerts),
	}
	for sym, st := range m.symbols {
		latest, ok := st.history.latest()
		if !ok {
			continue
		}
		s := SymbolStatus{
			Symbol:       sym,
			CurrentPrice: latest.Price,
			ChangePct:    st.changePct,
			Level:        st.level,
			Thresholds:   st.thresholds,
			Multipliers:  st.multipliers,
			Daily:        st.metrics,
			DataPoints:   st.history.len(),
			LastUpdate:   st.lastUpdate,
			Staleness:    now.Sub(st.lastUpdate),
		}
		if st.profile != nil {
			p := *st.profile
			s.Volatility = &p
		}
		out.Symbols[sym] = s
	}
	return out
}

// IsSafeToEnter reports whether new positions on symbol are advisable given the danger state.
func (m *Monitor) IsSafeToEnter(symbol string) (bool, string) {
	symbol = strings.ToUpper(symbol)
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.symbols[symbol]
	if !ok || st.history.len() == 0 {
		return true, "No recent data available"
	}
	if st.level >= Critical {
		return false, "Danger level " + st.level.String()
	}
	if st.profile != nil && st.profile.IsAbnormal {
		return false, "Abnormal volatility detected"
	}
	from := len(m.alerts) - 10
	if from < 0 {
		from = 0
	}
	for _, a := range m.alerts[from:] {
		if a.Symbol == symbol && a.Level >= Critical {
			return false, "Recent " + a.Level.String() + " alert"
		}
	}
	if phase := PhaseAt(now, m.settings.Location); phase == Opening || phase == Closing {
		return false, "Volatile session phase: " + string(phase)
	}
	return true, "Safe to enter"
}

// ShouldExitPositions recommends exiting symbol's positions at EMERGENCY or above, or at
// CRITICAL with abnormal volatility.
func (m *Monitor) ShouldExitPositions(symbol string) (bool, string) {
	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.symbols[symbol]
	if !ok || st.history.len() == 0 {
		return false, "No data available"
	}
	if st.level >= Emergency {
		return true, "EMERGENCY_LEVEL"
	}
	if st.level == Critical && st.profile != nil && st.profile.IsAbnormal {
		return true, "CRITICAL_WITH_VOLATILITY"
	}
	return false, "Risk level manageable"
}

// Alerts returns up to limit of the most recent alerts, oldest first. limit <= 0 returns all.
func (m *Monitor) Alerts(limit int) []DangerZoneAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := 0
	if limit > 0 && len(m.alerts) > limit {
		from = len(m.alerts) - limit
	}
	out := make([]DangerZoneAlert, len(m.alerts)-from)
	copy(out, m.alerts[from:])
	return out
}

// AlertSummary aggregates alerts raised within the trailing window.
type AlertSummary struct {
	Window     time.Duration    `json:"window"`
	Total      int              `json:"total"`
	BySymbol   map[string]int   `json:"by_symbol"`
	ByLevel    map[string]int   `json:"by_level"`
	Highest    Level            `json:"highest"`
	MostRecent *DangerZoneAlert `json:"most_recent,omitempty"`
}

func (m *Monitor) AlertSummary(window time.Duration) AlertSummary {
	cutoff := m.clock.Now().Add(-window)
	m.mu.Lock()
	defer m.mu.Unlock()

	s := AlertSummary{
		Window:   window,
		BySymbol: make(map[string]int),
		ByLevel:  make(map[string]int),
	}
	for i := range m.alerts {
		a := m.alerts[i]
		if a.Timestamp.Before(cutoff) {
			continue
		}
		s.Total++
		s.BySymbol[a.Symbol]++
		s.ByLevel[a.Level.String()]++
		if a.Level > s.Highest {
			s.Highest = a.Level
		}
		recent := a
		s.MostRecent = &recent
	}
	return s
}
