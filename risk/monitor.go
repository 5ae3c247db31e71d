package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"index_risk_sentinel/audit"
	"index_risk_sentinel/calendar"
	"index_risk_sentinel/config"
	"index_risk_sentinel/danger"
	"index_risk_sentinel/exchange"
	"index_risk_sentinel/investment"
	"index_risk_sentinel/logs"
	"index_risk_sentinel/metrics"
	"index_risk_sentinel/notify"
	"index_risk_sentinel/profit"
	"index_risk_sentinel/state"
	"index_risk_sentinel/strategy"
	"index_risk_sentinel/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrCheckInProgress is returned when a check is started while the same check is still running.
var ErrCheckInProgress = errors.New("check already in progress")

// Check names used for overlap guards and metrics.
const (
	CheckDanger        = "danger"
	CheckPosition      = "position"
	CheckPortfolio     = "portfolio"
	CheckComprehensive = "comprehensive"
)

// allSymbols is the entry-block key that applies to every symbol.
const allSymbols = ""

// Dependencies are the collaborators a RiskMonitor drives.
type Dependencies struct {
	Client   exchange.Client
	Calendar calendar.Calendar
	State    state.StateManagerInterface
	Notifier *notify.Dispatcher
	Audit    audit.Sink
	Clock    utils.Clock
}

// RiskMonitor evaluates danger zones, positions and the portfolio and dispatches the
// resulting actions. It shares one lock with its danger.Monitor; collaborator I/O always
// happens with the lock released.
type RiskMonitor struct {
	mu sync.Mutex

	loc         *time.Location
	limits      PortfolioLimits
	marketOpen  time.Duration
	marketClose time.Duration
	strategies  *strategy.Table
	danger      *danger.Monitor
	client      exchange.Client
	cal         calendar.Calendar
	state       state.StateManagerInterface
	ledger      *profit.Accountant
	capacity    *investment.Manager
	notifier    *notify.Dispatcher
	sink        audit.Sink
	clock       utils.Clock

	day            string
	positionRisks  map[string]PositionRisk
	pendingExits   map[string]*ExitAction
	exiting        map[string]bool
	entryBlocks    map[string]string
	calendarBlocks map[string]string
	lastVolume     map[string]int64
	positionAlert  map[string]RiskLevel
	lastChecks     map[string]time.Time
	alerts         alertBook

	running map[string]*atomic.Bool
}

var _ RiskManager = (*RiskMonitor)(nil)

// NewRiskMonitor wires the engine. Client and State are required.
func NewRiskMonitor(cfg *config.Config, deps Dependencies) (*RiskMonitor, error) {
	if deps.Client == nil {
		return nil, errors.New("risk monitor: exchange client is required")
	}
	if deps.State == nil {
		return nil, errors.New("risk monitor: state manager is required")
	}
	limits, err := LimitsFromConfig(cfg.Risk)
	if err != nil {
		return nil, err
	}
	open, err := config.ParseClock(cfg.Risk.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("market_open: %w", err)
	}
	closeAt, err := config.ParseClock(cfg.Risk.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("market_close: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = utils.SystemClock{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopSink{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewDispatcher(notify.LogNotifier{}, time.Duration(cfg.Normal.NotifyRetryDelaySeconds)*time.Second)
	}

	m := &RiskMonitor{
		loc:            cfg.Location(),
		limits:         limits,
		marketOpen:     open,
		marketClose:    closeAt,
		strategies:     strategy.NewTable(cfg.Risk),
		client:         deps.Client,
		cal:            deps.Calendar,
		state:          deps.State,
		ledger:         profit.NewAccountant(""),
		capacity:       investment.NewManager(cfg.Risk.MaxOpenPositions),
		notifier:       deps.Notifier,
		sink:           deps.Audit,
		clock:          deps.Clock,
		positionRisks:  make(map[string]PositionRisk),
		pendingExits:   make(map[string]*ExitAction),
		exiting:        make(map[string]bool),
		entryBlocks:    make(map[string]string),
		calendarBlocks: make(map[string]string),
		lastVolume:     make(map[string]int64),
		positionAlert:  make(map[string]RiskLevel),
		lastChecks:     make(map[string]time.Time),
		alerts:         alertBook{retention: time.Duration(cfg.Risk.AlertRetentionMinutes) * time.Minute},
		running:        make(map[string]*atomic.Bool),
	}
	m.danger = danger.NewMonitor(danger.SettingsFromConfig(cfg), deps.Calendar, deps.Clock, danger.WithLocker(&m.mu))
	for _, name := range []string{CheckDanger, CheckPosition, CheckPortfolio, CheckComprehensive} {
		m.running[name] = &atomic.Bool{}
	}
	m.rollDay(m.clock.Now())
	return m, nil
}

// Danger exposes the danger-zone engine.
func (m *RiskMonitor) Danger() *danger.Monitor { return m.danger }

// Strategies exposes the per-strategy limit table.
func (m *RiskMonitor) Strategies() *strategy.Table { return m.strategies }

// rollDay starts a new trading day when the clock has crossed midnight in market time.
func (m *RiskMonitor) rollDay(now time.Time) {
	day := utils.TradingDay(now, m.loc)
	m.mu.Lock()
	same := m.day == day
	m.mu.Unlock()
	if same {
		return
	}

	rolled, err := m.state.RollDay(day)
	if err != nil {
		logs.Errorf("[Risk] Failed to persist day roll to %s: %v", day, err)
	}

	m.mu.Lock()
	if m.day == day {
		m.mu.Unlock()
		return
	}
	m.day = day
	m.positionRisks = make(map[string]PositionRisk)
	m.pendingExits = make(map[string]*ExitAction)
	m.entryBlocks = make(map[string]string)
	m.calendarBlocks = make(map[string]string)
	m.lastVolume = make(map[string]int64)
	m.positionAlert = make(map[string]RiskLevel)
	m.alerts.reset()
	m.mu.Unlock()

	if rolled {
		m.ledger.Reset(day)
		logs.Infof("[Risk] Trading day %s started.", day)
		return
	}
	st := m.state.GetDayState()
	m.ledger.Restore(day, st.RealizedPNL)
	logs.Infof("[Risk] Restored state for %s. Realized P&L: %.2f, breaker tripped: %t", day, st.RealizedPNL, st.CircuitBreakerTripped)
}

// dayState returns the persisted state, or an empty one if it belongs to another day.
func (m *RiskMonitor) dayState() state.DayState {
	st := m.state.GetDayState()
	m.mu.Lock()
	day := m.day
	m.mu.Unlock()
	if st.TradingDay != day {
		return state.DayState{TradingDay: day}
	}
	return st
}

func (m *RiskMonitor) begin(check string) bool {
	if !m.running[check].CompareAndSwap(false, true) {
		metrics.RecordSkippedCheck(check)
		logs.Warnf("[Risk] %s check still running, skipping this run.", check)
		return false
	}
	return true
}

func (m *RiskMonitor) end(check string, started time.Time) {
	metrics.ObserveCheck(check, started)
	m.mu.Lock()
	m.lastChecks[check] = m.clock.Now()
	m.mu.Unlock()
	m.running[check].Store(false)
}

// RunDangerCheck pulls a quote for every tracked symbol and feeds it to the danger engine.
func (m *RiskMonitor) RunDangerCheck(ctx context.Context) error {
	if !m.begin(CheckDanger) {
		return ErrCheckInProgress
	}
	defer m.end(CheckDanger, time.Now())
	return m.dangerCheck(ctx)
}

// RunPositionCheck evaluates every open position against its strategy limits.
func (m *RiskMonitor) RunPositionCheck(ctx context.Context) error {
	if !m.begin(CheckPosition) {
		return ErrCheckInProgress
	}
	defer m.end(CheckPosition, time.Now())
	return m.positionCheck(ctx)
}

// RunPortfolioCheck applies the account-wide rules and calendar restrictions.
func (m *RiskMonitor) RunPortfolioCheck(ctx context.Context) error {
	if !m.begin(CheckPortfolio) {
		return ErrCheckInProgress
	}
	defer m.end(CheckPortfolio, time.Now())
	return m.portfolioCheck(ctx)
}

// RunComprehensiveCheck runs the danger, position and portfolio checks in order.
// Overlapping calls are skipped, not queued.
func (m *RiskMonitor) RunComprehensiveCheck(ctx context.Context) error {
	if !m.begin(CheckComprehensive) {
		return ErrCheckInProgress
	}
	defer m.end(CheckComprehensive, time.Now())

	var errs []error
	if err := m.dangerCheck(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.positionCheck(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.portfolioCheck(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *RiskMonitor) dangerCheck(ctx context.Context) error {
	m.rollDay(m.clock.Now())
	m.refreshBackdrop(ctx)

	var (
		actions   []Action
		positions []exchange.Position
		listed    bool
	)
	for _, symbol := range m.danger.Symbols() {
		q, err := m.client.GetCurrentPrice(ctx, symbol)
		if err != nil {
			m.collaboratorError("pricing", err)
			continue
		}

		m.mu.Lock()
		volume := q.Volume - m.lastVolume[symbol]
		if volume < 0 {
			volume = q.Volume
		}
		m.lastVolume[symbol] = q.Volume
		m.mu.Unlock()

		alert := m.danger.RecordTick(ctx, danger.Tick{Symbol: symbol, Price: q.Price, Volume: volume})
		if alert == nil {
			continue
		}
		m.record(ctx, audit.Record{
			ID:        alert.ID,
			Timestamp: alert.Timestamp,
			Kind:      audit.KindDangerAlert,
			Symbol:    alert.Symbol,
			Level:     alert.Level.String(),
			Action:    alert.RequiredAction,
			Message:   alert.Message,
			Success:   true,
			Payload:   alert,
		})

		if !listed {
			listed = true
			if positions, err = m.client.ListOpenPositions(ctx); err != nil {
				m.collaboratorError("positions", err)
				positions = nil
			}
		}
		actions = append(actions, dangerActions(*alert, positions)...)
	}
	m.Dispatch(ctx, actions)
	return nil
}

// dangerActions maps a danger-zone alert onto risk actions for the alerted symbol.
func dangerActions(a danger.DangerZoneAlert, positions []exchange.Position) []Action {
	var (
		level RiskLevel
		exit  ActionType
	)
	switch {
	case a.Level >= danger.Emergency:
		level, exit = LevelEmergency, ActionEmergencyExit
	case a.Level == danger.Critical:
		level, exit = LevelCritical, ActionHardExit
	case a.Level >= danger.Warning:
		level = LevelWarning
	default:
		return nil
	}

	actions := []Action{&AlertAction{Kind: ActionAlert, Level: level, Symbol: a.Symbol, Message: a.Message}}
	if exit == "" {
		return actions
	}
	for _, p := range positions {
		if p.Symbol != a.Symbol {
			continue
		}
		actions = append(actions, &ExitAction{
			Kind:     exit,
			Level:    level,
			Position: p,
			Reason:   fmt.Sprintf("Danger zone %s: %s", a.Level, a.Message),
		})
	}
	return actions
}

// refreshBackdrop feeds the client's market backdrop to the danger engine when the client reports one.
func (m *RiskMonitor) refreshBackdrop(ctx context.Context) {
	src, ok := m.client.(exchange.BackdropSource)
	if !ok {
		return
	}
	b, err := src.GetMarketBackdrop(ctx)
	if err != nil {
		m.collaboratorError("market_context", err)
		return
	}
	m.danger.SetMarketContext(danger.MarketContext{
		VIX:         b.VIX,
		VolumeSurge: b.VolumeSurge,
		NewsImpact:  danger.NewsImpact(strings.ToUpper(b.NewsImpact)),
	})
}

func (m *RiskMonitor) positionCheck(ctx context.Context) error {
	now := m.clock.Now()
	m.rollDay(now)

	positions, err := m.client.ListOpenPositions(ctx)
	if err != nil {
		m.collaboratorError("positions", err)
		return fmt.Errorf("list open positions: %w", err)
	}
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[p.ID] = true
	}

	var actions []Action
	m.mu.Lock()
	previous := make(map[string]PositionRisk, len(m.positionRisks))
	for id, pr := range m.positionRisks {
		previous[id] = pr
	}
	for id, a := range m.pendingExits {
		if !open[id] {
			delete(m.pendingExits, id)
			continue
		}
		actions = append(actions, a)
	}
	m.mu.Unlock()

	risks := make(map[string]PositionRisk, len(positions))
	alerting := make(map[string]bool)
	for _, p := range positions {
		mtm, err := m.client.GetCurrentMTM(ctx, p.ID)
		if err != nil {
			m.collaboratorError("mtm", err)
			prev, ok := previous[p.ID]
			if !ok {
				continue
			}
			mtm = prev.MTM
		}
		limit, _ := m.strategies.Lookup(p.Strategy)
		pr, action := EvaluatePosition(p, mtm, limit, m.daysToExpiry(ctx, p, now), now)
		risks[p.ID] = pr
		if alert, ok := action.(*AlertAction); ok {
			alerting[p.ID] = true
			if !m.latchPositionAlert(alert) {
				continue
			}
		}
		if action != nil {
			actions = append(actions, action)
		}
	}

	m.mu.Lock()
	m.positionRisks = risks
	for id := range m.positionAlert {
		if _, evaluated := risks[id]; !open[id] || (evaluated && !alerting[id]) {
			delete(m.positionAlert, id)
		}
	}
	m.mu.Unlock()

	m.Dispatch(ctx, actions)
	return nil
}

// latchPositionAlert reports whether a per-position alert is new. A position that stays at the
// same alert level is reported once until it leaves that level or the day rolls.
func (m *RiskMonitor) latchPositionAlert(a *AlertAction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level, ok := m.positionAlert[a.PositionID]; ok && level == a.Level {
		return false
	}
	m.positionAlert[a.PositionID] = a.Level
	return true
}

func (m *RiskMonitor) daysToExpiry(ctx context.Context, p exchange.Position, now time.Time) int {
	if !p.Expiry.IsZero() {
		return daysUntil(p.Expiry, now, m.loc)
	}
	if m.cal == nil {
		return -1
	}
	info, err := m.cal.ExpiryInfo(ctx, p.Symbol, now)
	if err != nil {
		if !errors.Is(err, calendar.ErrNoExpirySchedule) {
			m.collaboratorError("calendar", err)
		}
		return -1
	}
	return info.DaysToExpiry
}

func (m *RiskMonitor) portfolioCheck(ctx context.Context) error {
	now := m.clock.Now()
	m.rollDay(now)

	positions, err := m.client.ListOpenPositions(ctx)
	if err != nil {
		m.collaboratorError("positions", err)
		return fmt.Errorf("list open positions: %w", err)
	}

	m.mu.Lock()
	cached := make(map[string]float64, len(m.positionRisks))
	for id, pr := range m.positionRisks {
		cached[id] = pr.MTM
	}
	m.mu.Unlock()

	mtms := make([]float64, 0, len(positions))
	for _, p := range positions {
		mtm, err := m.client.GetCurrentMTM(ctx, p.ID)
		if err != nil {
			m.collaboratorError("mtm", err)
			mtm = cached[p.ID]
		}
		mtms = append(mtms, mtm)
	}
	dailyPnL := m.ledger.DailyPnL(mtms...)

	m.mu.Lock()
	atCapacity := m.capacity.Update(len(positions))
	m.mu.Unlock()

	st := m.dayState()
	decision := EvaluatePortfolio(PortfolioInput{
		Positions:      positions,
		DailyPnL:       dailyPnL,
		BreakerTripped: st.CircuitBreakerTripped,
		AtCapacity:     atCapacity,
		TimeOfDay:      utils.MinutesIntoDay(now, m.loc),
	}, m.limits)

	tripped := st.CircuitBreakerTripped
	if decision.TripBreaker {
		tripped = true
		m.tripBreaker(ctx, decision.BreakerNote, now, dailyPnL)
	}

	actions := append(decision.Actions, m.calendarActions(ctx, now, positions)...)
	m.liftStaleBlocks(actions)
	m.Dispatch(ctx, actions)

	metrics.SetPortfolio(dailyPnL, len(positions), tripped)
	return nil
}

func (m *RiskMonitor) tripBreaker(ctx context.Context, note string, now time.Time, dailyPnL float64) {
	if err := m.state.TripCircuitBreaker(note, now); err != nil {
		logs.Errorf("[Risk] Failed to persist circuit breaker: %v", err)
	}
	logs.WithFields(logs.Fields{"daily_pnl": dailyPnL, "limit": m.limits.DailyLossLimit}).
		Errorf("[Risk] CIRCUIT BREAKER TRIPPED: %s. Exiting all positions, entries blocked until next trading day.", note)

	m.mu.Lock()
	m.alerts.add(RiskAlert{
		ID:               uuid.NewString(),
		Timestamp:        now,
		Level:            LevelEmergency,
		Action:           ActionHardExit,
		Message:          note,
		MTM:              dailyPnL,
		Urgency:          LevelEmergency.Urgency(),
		AutoActionTaken:  true,
		NotificationSent: true,
	})
	m.mu.Unlock()

	m.notify("CIRCUIT BREAKER", note)
	m.record(ctx, audit.Record{Kind: audit.KindRiskAction, Action: "CIRCUIT_BREAKER", Level: string(LevelEmergency), Message: note, Success: true})
}

// calendarActions turns calendar state into restrictions, expiry blocks and once-a-day notices.
func (m *RiskMonitor) calendarActions(ctx context.Context, now time.Time, positions []exchange.Position) []Action {
	if m.cal == nil {
		return nil
	}
	var actions []Action
	for _, symbol := range m.danger.Symbols() {
		decision, err := calendar.ShouldAvoidTrading(ctx, m.cal, symbol, now)
		if err != nil {
			m.collaboratorError("calendar", err)
		} else if decision.Avoid {
			actions = append(actions, &CalendarRestrictionAction{Symbol: symbol, Reason: decision.Reason, ForceExit: decision.ForceExit})
			if decision.ForceExit {
				for _, p := range positions {
					if p.Symbol == symbol {
						actions = append(actions, &ExitAction{Kind: ActionHardExit, Level: LevelCritical, Position: p, Reason: "Calendar: " + decision.Reason})
					}
				}
			}
		}

		info, err := m.cal.ExpiryInfo(ctx, symbol, now)
		switch {
		case errors.Is(err, calendar.ErrNoExpirySchedule):
		case err != nil:
			m.collaboratorError("calendar", err)
		case info.IsToday:
			actions = append(actions, &BlockEntryAction{Symbol: symbol, Reason: "Expiry day"})
		case info.IsTomorrow:
			m.notifyOnce("expiry:"+symbol, "EXPIRY TOMORROW",
				fmt.Sprintf("%s expires tomorrow (%s). Review open positions.", symbol, info.Date.In(m.loc).Format("2006-01-02")))
		}
	}

	for offset, label := range []string{"today", "tomorrow"} {
		date := now.AddDate(0, 0, offset)
		events, err := m.cal.EventsForDate(ctx, date)
		if err != nil {
			m.collaboratorError("calendar", err)
			continue
		}
		for _, ev := range events {
			if ev.Impact < calendar.ImpactHigh || ev.Type == calendar.EventExpiryDay {
				continue
			}
			key := fmt.Sprintf("event:%s:%s", date.In(m.loc).Format("2006-01-02"), ev.Title)
			m.notifyOnce(key, "MARKET EVENT "+strings.ToUpper(label),
				fmt.Sprintf("%s %s (%s impact) affecting %s", label, ev.Title, ev.Impact, strings.Join(ev.Affected, ", ")))
		}
	}
	return actions
}

// liftStaleBlocks removes entry and calendar blocks that this cycle no longer asserts.
func (m *RiskMonitor) liftStaleBlocks(actions []Action) {
	entry := make(map[string]bool)
	cal := make(map[string]bool)
	for _, a := range actions {
		switch act := a.(type) {
		case *BlockEntryAction:
			entry[act.Symbol] = true
		case *CalendarRestrictionAction:
			cal[act.Symbol] = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, reason := range m.entryBlocks {
		if !entry[key] {
			delete(m.entryBlocks, key)
			logs.Infof("[Risk] Entry block lifted (%s): %s", blockScope(key), reason)
		}
	}
	for symbol := range m.calendarBlocks {
		if !cal[symbol] {
			delete(m.calendarBlocks, symbol)
			logs.Infof("[Risk] Calendar restriction lifted for %s", symbol)
		}
	}
}

func blockScope(key string) string {
	if key == allSymbols {
		return "all symbols"
	}
	return key
}

// Dispatch executes actions. Exits are deduplicated per position, the most urgent winning;
// each exit is attempted at most once per call and failed exits are retried on the next
// position check.
func (m *RiskMonitor) Dispatch(ctx context.Context, actions []Action) int {
	var (
		order []string
		exits = make(map[string]*ExitAction)
	)
	for _, a := range actions {
		switch act := a.(type) {
		case *ExitAction:
			prev, ok := exits[act.Position.ID]
			if !ok {
				order = append(order, act.Position.ID)
				exits[act.Position.ID] = act
			} else if act.Kind.priority() > prev.Kind.priority() {
				exits[act.Position.ID] = act
			}
		case *AlertAction:
			m.raiseAlert(ctx, act)
		case *BlockEntryAction:
			m.blockEntry(ctx, act)
		case *CalendarRestrictionAction:
			m.restrict(ctx, act)
		}
	}

	done := 0
	for _, id := range order {
		if m.exit(ctx, exits[id]) {
			done++
		}
	}
	return done
}

func (m *RiskMonitor) exit(ctx context.Context, a *ExitAction) bool {
	id := a.Position.ID
	m.mu.Lock()
	if m.exiting[id] {
		m.mu.Unlock()
		return false
	}
	m.exiting[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.exiting, id)
		m.mu.Unlock()
	}()

	res, err := m.client.ExitPosition(ctx, a.Position, a.Reason)
	now := m.clock.Now()
	if err != nil {
		if errors.Is(err, exchange.ErrUnknownPosition) {
			m.mu.Lock()
			delete(m.pendingExits, id)
			delete(m.positionRisks, id)
			m.mu.Unlock()
			logs.Warnf("[Risk] %s skipped, position %s is no longer open.", a.Kind, id)
			return false
		}
		m.collaboratorError("execution", err)
		metrics.RecordRiskAction(string(a.Kind), false)
		logs.WithFields(logs.Fields{"position": id, "action": string(a.Kind)}).
			Errorf("[Risk] Exit failed, will retry next cycle: %v", err)

		m.mu.Lock()
		m.pendingExits[id] = a
		m.alerts.add(m.exitAlert(a, now, false))
		m.mu.Unlock()
		m.record(ctx, audit.Record{Kind: audit.KindRiskAction, Symbol: a.Position.Symbol, Level: string(a.Level), Action: string(a.Kind), PositionID: id, Message: err.Error()})
		return false
	}

	if err := m.state.RecordAction(string(a.Kind)); err != nil {
		logs.Errorf("[Risk] Failed to persist %s counter: %v", a.Kind, err)
	}
	m.ledger.RecordExit(profit.Exit{
		PositionID: id,
		Symbol:     a.Position.Symbol,
		Strategy:   a.Position.Strategy,
		Action:     string(a.Kind),
		PnL:        decimal.NewFromFloat(res.RealizedPnL),
		Timestamp:  res.ExitedAt,
	})
	if err := m.state.AddRealizedPNL(res.RealizedPnL); err != nil {
		logs.Errorf("[Risk] Failed to persist realized P&L: %v", err)
	}

	m.mu.Lock()
	delete(m.pendingExits, id)
	delete(m.positionRisks, id)
	alert := m.exitAlert(a, now, true)
	alert.MTM = res.RealizedPnL
	m.alerts.add(alert)
	m.mu.Unlock()

	metrics.RecordRiskAction(string(a.Kind), true)
	logs.WithFields(logs.Fields{"position": id, "action": string(a.Kind), "pnl": res.RealizedPnL}).
		Warnf("[Risk] %s", a.Description())
	m.notify(string(a.Kind), fmt.Sprintf("%s\nRealized P&L: %.2f", a.Description(), res.RealizedPnL))
	m.record(ctx, audit.Record{Kind: audit.KindRiskAction, Symbol: a.Position.Symbol, Level: string(a.Level), Action: string(a.Kind), PositionID: id, Message: a.Reason, Success: true, Payload: res})
	return true
}

func (m *RiskMonitor) exitAlert(a *ExitAction, now time.Time, done bool) RiskAlert {
	return RiskAlert{
		ID:               uuid.NewString(),
		Timestamp:        now,
		Level:            a.Level,
		Action:           a.Kind,
		Symbol:           a.Position.Symbol,
		Strategy:         a.Position.Strategy,
		PositionID:       a.Position.ID,
		Message:          a.Reason,
		Lots:             a.Position.Lots,
		Urgency:          a.Level.Urgency(),
		AutoActionTaken:  done,
		NotificationSent: done,
	}
}

func (m *RiskMonitor) raiseAlert(ctx context.Context, a *AlertAction) RiskAlert {
	notifyOperator := a.Kind == ActionAlert
	alert := RiskAlert{
		ID:               uuid.NewString(),
		Timestamp:        m.clock.Now(),
		Level:            a.Level,
		Action:           a.Kind,
		Symbol:           a.Symbol,
		Strategy:         a.Strategy,
		PositionID:       a.PositionID,
		Message:          a.Message,
		MTM:              a.MTM,
		Lots:             a.Lots,
		Urgency:          a.Level.Urgency(),
		NotificationSent: notifyOperator,
	}
	m.mu.Lock()
	m.alerts.add(alert)
	m.mu.Unlock()

	if notifyOperator {
		logs.Warnf("[Risk] %s", a.Description())
		m.notify(fmt.Sprintf("%s %s", a.Level, a.Symbol), a.Message)
	} else {
		logs.Infof("[Risk] %s", a.Description())
	}
	metrics.RecordRiskAction(string(a.Kind), true)
	m.record(ctx, audit.Record{ID: alert.ID, Timestamp: alert.Timestamp, Kind: audit.KindRiskAlert, Symbol: a.Symbol, Level: string(a.Level), Action: string(a.Kind), PositionID: a.PositionID, Message: a.Message, Success: true})
	return alert
}

func (m *RiskMonitor) blockEntry(ctx context.Context, a *BlockEntryAction) {
	m.mu.Lock()
	_, had := m.entryBlocks[a.Symbol]
	m.entryBlocks[a.Symbol] = a.Reason
	m.mu.Unlock()
	if had {
		return
	}
	if err := m.state.RecordAction(string(ActionBlockEntry)); err != nil {
		logs.Errorf("[Risk] Failed to persist block counter: %v", err)
	}
	metrics.RecordRiskAction(string(ActionBlockEntry), true)
	logs.Warnf("[Risk] %s", a.Description())
	m.record(ctx, audit.Record{Kind: audit.KindRiskAction, Symbol: a.Symbol, Action: string(ActionBlockEntry), Message: a.Reason, Success: true})
}

func (m *RiskMonitor) restrict(ctx context.Context, a *CalendarRestrictionAction) {
	m.mu.Lock()
	_, had := m.calendarBlocks[a.Symbol]
	m.calendarBlocks[a.Symbol] = a.Reason
	m.mu.Unlock()
	if had {
		return
	}
	if err := m.state.RecordAction(string(ActionCalendarRestriction)); err != nil {
		logs.Errorf("[Risk] Failed to persist calendar counter: %v", err)
	}
	metrics.RecordRiskAction(string(ActionCalendarRestriction), true)
	logs.Warnf("[Risk] %s", a.Description())
	m.notify("CALENDAR RESTRICTION", a.Description())
	m.record(ctx, audit.Record{Kind: audit.KindRiskAction, Symbol: a.Symbol, Action: string(ActionCalendarRestriction), Message: a.Reason, Success: true})
}

// notify sends through the shared dispatcher and counts final failures against this engine's day state.
func (m *RiskMonitor) notify(title, message string) {
	m.notifier.NotifyThen(title, message, m.notificationDone)
}

func (m *RiskMonitor) notificationDone(_ string, err error) {
	if err == nil {
		return
	}
	metrics.RecordCollaboratorError("notification")
	if serr := m.state.RecordAction("NOTIFICATION_FAILED"); serr != nil {
		logs.Warnf("[Risk] Failed to persist notification failure: %v", serr)
	}
}

func (m *RiskMonitor) notifyOnce(key, title, message string) {
	fresh, err := m.state.MarkNotified(key)
	if err != nil {
		logs.Warnf("[Risk] Failed to persist notification marker %s: %v", key, err)
	}
	if fresh {
		m.notify(title, message)
	}
}

func (m *RiskMonitor) record(ctx context.Context, r audit.Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.clock.Now()
	}
	if err := m.sink.Record(ctx, r); err != nil {
		m.collaboratorError("audit", err)
	}
}

func (m *RiskMonitor) collaboratorError(name string, err error) {
	metrics.RecordCollaboratorError(name)
	logs.WithFields(logs.Fields{"collaborator": name}).Warnf("[Risk] Collaborator error: %v", err)
}

// IsSafeToEnter combines the portfolio gates with the danger engine's entry check.
func (m *RiskMonitor) IsSafeToEnter(symbol string) (bool, string) {
	symbol = strings.ToUpper(symbol)
	m.rollDay(m.clock.Now())

	if st := m.dayState(); st.CircuitBreakerTripped {
		return false, "Circuit breaker tripped: " + st.BreakerReason
	}
	m.mu.Lock()
	all, blockedAll := m.entryBlocks[allSymbols]
	sym, blockedSym := m.entryBlocks[symbol]
	cal, blockedCal := m.calendarBlocks[symbol]
	m.mu.Unlock()

	switch {
	case blockedAll:
		return false, all
	case blockedSym:
		return false, sym
	case blockedCal:
		return false, "Calendar restriction: " + cal
	}
	return m.danger.IsSafeToEnter(symbol)
}

// ShouldExitPositions reports whether positions on symbol should be closed now.
func (m *RiskMonitor) ShouldExitPositions(symbol string) (bool, string) {
	if st := m.dayState(); st.CircuitBreakerTripped {
		return true, "CIRCUIT_BREAKER"
	}
	return m.danger.ShouldExitPositions(symbol)
}

// IsMarketOpen reports whether the market is in session now. Calendar failures are treated as open.
func (m *RiskMonitor) IsMarketOpen(ctx context.Context) (bool, string) {
	now := m.clock.Now()
	local := now.In(m.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, "Weekend"
	}
	if m.cal != nil {
		holiday, err := m.cal.IsMarketHoliday(ctx, now)
		if err != nil {
			m.collaboratorError("calendar", err)
		} else if holiday {
			return false, "Market holiday"
		}
	}
	tod := utils.MinutesIntoDay(now, m.loc)
	if tod < m.marketOpen || tod >= m.marketClose {
		return false, "Outside market hours"
	}
	return true, "Market open"
}

// ForceExitAll closes every open position and returns how many exits succeeded.
func (m *RiskMonitor) ForceExitAll(ctx context.Context, reason string) (int, error) {
	positions, err := m.client.ListOpenPositions(ctx)
	if err != nil {
		m.collaboratorError("positions", err)
		return 0, fmt.Errorf("list open positions: %w", err)
	}
	logs.Warnf("[Risk] Force exit of %d positions requested: %s", len(positions), reason)
	actions := make([]Action, 0, len(positions))
	for _, p := range positions {
		actions = append(actions, &ExitAction{Kind: ActionHardExit, Level: LevelEmergency, Position: p, Reason: "Manual: " + reason})
	}
	done := m.Dispatch(ctx, actions)
	if done < len(positions) {
		return done, fmt.Errorf("%d of %d exits failed", len(positions)-done, len(positions))
	}
	return done, nil
}

// AddManualAlert records an operator alert and notifies it.
func (m *RiskMonitor) AddManualAlert(ctx context.Context, level RiskLevel, symbol, message string) RiskAlert {
	return m.raiseAlert(ctx, &AlertAction{Kind: ActionAlert, Level: level, Symbol: strings.ToUpper(symbol), Message: message})
}

// RiskAlerts returns the alerts still inside the retention window.
func (m *RiskMonitor) RiskAlerts() []RiskAlert {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts.purge(now)
	return m.alerts.snapshot()
}

// Summary is a point-in-time view of the risk engine.
type Summary struct {
	Timestamp             time.Time            `json:"timestamp"`
	TradingDay            string               `json:"trading_day"`
	OpenPositions         int                  `json:"open_positions"`
	DailyPnL              float64              `json:"daily_pnl"`
	RealizedPnL           float64              `json:"realized_pnl"`
	ActiveAlerts          int                  `json:"active_alerts"`
	DangerAlerts          int                  `json:"danger_alerts"`
	Counters              state.Counters       `json:"counters"`
	Positions             []PositionRisk       `json:"positions"`
	HighRiskPositions     []PositionRisk       `json:"high_risk_positions"`
	CalendarBlocked       map[string]string    `json:"calendar_blocked"`
	EntryBlocks           map[string]string    `json:"entry_blocks"`
	CircuitBreakerTripped bool                 `json:"circuit_breaker_tripped"`
	BreakerReason         string               `json:"breaker_reason,omitempty"`
	LastChecks            map[string]time.Time `json:"last_checks"`
	Capacity              Capacity             `json:"capacity"`
}

// Capacity is the open-position gate as of the last portfolio check. Limit 0 means no cap.
type Capacity struct {
	Open   int  `json:"open"`
	Limit  int  `json:"limit"`
	Halted bool `json:"halted"`
}

// Summary reports positions as of the last position check.
func (m *RiskMonitor) Summary() Summary {
	now := m.clock.Now()
	st := m.dayState()
	dangerAlerts := m.danger.Status().TotalAlerts

	m.mu.Lock()
	m.alerts.purge(now)
	s := Summary{
		Timestamp:             now,
		TradingDay:            m.day,
		ActiveAlerts:          len(m.alerts.alerts),
		DangerAlerts:          dangerAlerts,
		Counters:              st.Counters,
		CalendarBlocked:       copyMap(m.calendarBlocks),
		EntryBlocks:           make(map[string]string, len(m.entryBlocks)),
		CircuitBreakerTripped: st.CircuitBreakerTripped,
		BreakerReason:         st.BreakerReason,
		LastChecks:            make(map[string]time.Time, len(m.lastChecks)),
		Capacity: Capacity{
			Open:   m.capacity.OpenCount(),
			Limit:  m.capacity.Limit(),
			Halted: m.capacity.IsTradingHalted(),
		},
	}
	for key, reason := range m.entryBlocks {
		s.EntryBlocks[blockScope(key)] = reason
	}
	for k, v := range m.lastChecks {
		s.LastChecks[k] = v
	}
	mtms := make([]float64, 0, len(m.positionRisks))
	for _, pr := range m.positionRisks {
		s.Positions = append(s.Positions, pr)
		mtms = append(mtms, pr.MTM)
		if pr.RiskScore > highRiskScore {
			s.HighRiskPositions = append(s.HighRiskPositions, pr)
		}
	}
	m.mu.Unlock()

	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].PositionID < s.Positions[j].PositionID })
	s.OpenPositions = len(s.Positions)
	s.RealizedPnL = m.ledger.Realized().InexactFloat64()
	s.DailyPnL = m.ledger.DailyPnL(mtms...)
	return s
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
