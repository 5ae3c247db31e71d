package danger

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"index_risk_sentinel/calendar"
	"index_risk_sentinel/logs"
	"index_risk_sentinel/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logs.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestMonitor(start time.Time) (*Monitor, *utils.ManualClock) {
	clock := utils.NewManualClock(start)
	s := DefaultSettings()
	s.Location = ist
	return NewMonitor(s, nil, clock), clock
}

func TestRecordTickFirstAlertExample(t *testing.T) {
	m, _ := newTestMonitor(at(10, 30))

	alert := m.RecordTick(context.Background(), Tick{Symbol: "NIFTY", Price: 21780, SessionStart: 22000})
	require.NotNil(t, alert)
	assert.Equal(t, Warning, alert.Level)
	assert.Equal(t, ReasonFirstAlert, alert.Reason)
	assert.Equal(t, Morning, alert.Phase)
	assert.Equal(t, -1.0, alert.ChangePct)
	assert.Equal(t, -220.0, alert.Change)
	assert.InDelta(t, 1.0, alert.Thresholds.Warning, 1e-12)
	assert.Equal(t, 1.0, alert.Multipliers.Total)
	assert.Equal(t, "MONITOR_CLOSELY", alert.RequiredAction)
	assert.Equal(t, "MEDIUM", alert.Urgency)
	assert.Contains(t, alert.Message, "NIFTY")
	assert.Contains(t, alert.Message, "[MORNING]")
	assert.NotEmpty(t, alert.ID)
	assert.Nil(t, alert.Volatility, "a single tick cannot build a volatility profile")
}

func TestRecordTickEmergencyExample(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	first := m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21780, SessionStart: 22000})
	require.NotNil(t, first)

	clock.Advance(5 * time.Second)
	alert := m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21560})
	require.NotNil(t, alert, "emergency fires regardless of cooldown")
	assert.Equal(t, Emergency, alert.Level)
	assert.Equal(t, ReasonExtremeLevel, alert.Reason)
	assert.Equal(t, -2.0, alert.ChangePct)
	assert.Equal(t, "EMERGENCY_EXIT", alert.RequiredAction)
	assert.Contains(t, alert.Message, "EXTREME MOVE")

	exit, reason := m.ShouldExitPositions("NIFTY")
	assert.True(t, exit)
	assert.Equal(t, "EMERGENCY_LEVEL", reason)
}

func TestRecordTickCooldownAndEscalation(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	require.NotNil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21780, SessionStart: 22000}))

	clock.Advance(30 * time.Second)
	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21775}), "second WARNING inside cooldown")

	clock.Advance(10 * time.Second)
	alert := m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21650})
	require.NotNil(t, alert)
	assert.Equal(t, Critical, alert.Level)
	assert.Equal(t, ReasonEscalation, alert.Reason)
	assert.Contains(t, alert.Message, "ESCALATION")

	clock.Advance(10 * time.Second)
	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21780}), "no de-escalation alert")

	level, ok := m.CurrentLevel("NIFTY")
	require.True(t, ok)
	assert.Equal(t, Warning, level)
	assert.Len(t, m.Alerts(0), 2)
}

func TestRecordTickIgnoresInvalidInput(t *testing.T) {
	m, _ := newTestMonitor(at(10, 30))
	ctx := context.Background()

	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "FINNIFTY", Price: 20000, SessionStart: 21000}))
	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: -1}))
	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 0}))
	assert.Empty(t, m.Status().Symbols)

	_, ok := m.CurrentLevel("NIFTY")
	assert.False(t, ok)
}

func TestSessionStartIsFirstObservedPrice(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "nifty", Price: 22000, Volume: 100}))
	clock.Advance(time.Second)
	assert.Nil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 22100, Volume: 300}))

	st := m.Status().Symbols["NIFTY"]
	assert.Equal(t, 22000.0, st.Daily.SessionStartPrice)
	assert.InDelta(t, 22100.0/22000.0*100-100, st.ChangePct, 1e-9)
	assert.Equal(t, 22100.0, st.Daily.DailyHigh)
	assert.Equal(t, 22000.0, st.Daily.DailyLow)
	assert.Equal(t, int64(400), st.Daily.TotalVolume)
	assert.InDelta(t, 22075.0, st.Daily.VWAP, 1e-9)
	assert.Equal(t, 2, st.DataPoints)
	assert.Equal(t, Safe, st.Level)
}

func TestNewTradingDayResetsState(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	require.NotNil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21650, SessionStart: 22000}))
	clock.Set(at(10, 30).AddDate(0, 0, 1))

	alert := m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21650})
	assert.Nil(t, alert, "first tick of the new day becomes the session start")
	st := m.Status().Symbols["NIFTY"]
	assert.Equal(t, 21650.0, st.Daily.SessionStartPrice)
	assert.Zero(t, m.Status().TotalAlerts)

	m.ResetDaily()
	assert.Empty(t, m.Status().Symbols)
}

func TestAlertHistoryIsTrimmed(t *testing.T) {
	clock := utils.NewManualClock(at(10, 30))
	s := DefaultSettings()
	s.Location = ist
	s.AlertHistoryCap = 5
	s.AlertHistoryTrimTo = 3
	m := NewMonitor(s, nil, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NotNil(t, m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21500, SessionStart: 22000}))
		clock.Advance(time.Second)
	}
	assert.Len(t, m.Alerts(0), 5)

	last := m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 21500})
	require.NotNil(t, last)
	alerts := m.Alerts(0)
	require.Len(t, alerts, 3)
	assert.Equal(t, last.ID, alerts[2].ID)
	assert.Len(t, m.Alerts(2), 2)
}

func TestIsSafeToEnter(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	ok, reason := m.IsSafeToEnter("NIFTY")
	assert.True(t, ok)
	assert.Equal(t, "No recent data available", reason)

	m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 22050, SessionStart: 22000})
	ok, _ = m.IsSafeToEnter("NIFTY")
	assert.True(t, ok)

	m.RecordTick(ctx, Tick{Symbol: "BANKNIFTY", Price: 47200, SessionStart: 48000})
	ok, reason = m.IsSafeToEnter("BANKNIFTY")
	assert.False(t, ok)
	assert.Contains(t, reason, "CRITICAL")

	clock.Advance(time.Minute)
	m.RecordTick(ctx, Tick{Symbol: "BANKNIFTY", Price: 48000})
	ok, reason = m.IsSafeToEnter("BANKNIFTY")
	assert.False(t, ok, "recent critical alert still blocks entries")
	assert.Equal(t, "Recent CRITICAL alert", reason)

	exit, _ := m.ShouldExitPositions("BANKNIFTY")
	assert.False(t, exit)

	opening, clock2 := newTestMonitor(at(9, 20))
	opening.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 22010, SessionStart: 22000})
	ok, reason = opening.IsSafeToEnter("NIFTY")
	assert.False(t, ok)
	assert.Equal(t, "Volatile session phase: OPENING", reason)
	clock2.Set(at(12, 0))
	ok, _ = opening.IsSafeToEnter("NIFTY")
	assert.True(t, ok)
}

func TestCalendarEventTightensThresholds(t *testing.T) {
	cal := calendar.NewStaticCalendar(ist)
	cal.AddEvent(calendar.Event{Date: at(0, 0), Title: "Budget", Impact: calendar.ImpactCritical, Affected: []string{calendar.AllInstruments}})
	clock := utils.NewManualClock(at(10, 30))
	s := DefaultSettings()
	s.Location = ist
	m := NewMonitor(s, cal, clock)

	alert := m.RecordTick(context.Background(), Tick{Symbol: "NIFTY", Price: 21835, SessionStart: 22000})
	require.NotNil(t, alert, "a 0.75 pct move clears the 0.7 pct warning threshold")
	assert.Equal(t, Warning, alert.Level)
	assert.Equal(t, 0.7, alert.Multipliers.Calendar)
}

func TestMarketContextOnTick(t *testing.T) {
	m, _ := newTestMonitor(at(10, 30))
	mctx := MarketContext{VIX: 35, NewsImpact: NewsHigh}
	alert := m.RecordTick(context.Background(), Tick{Symbol: "NIFTY", Price: 21830, SessionStart: 22000, Context: &mctx})
	require.NotNil(t, alert)
	assert.InDelta(t, 0.56, alert.Multipliers.Context, 1e-12)
	assert.Equal(t, Risk, alert.Level)
	assert.Equal(t, mctx, m.Status().Market)
}

func TestAlertSummaryAndTechnicals(t *testing.T) {
	m, clock := newTestMonitor(at(10, 30))
	ctx := context.Background()

	m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 22000, SessionStart: 22000})
	for i := 1; i < 25; i++ {
		clock.Advance(10 * time.Second)
		m.RecordTick(ctx, Tick{Symbol: "NIFTY", Price: 22000 - float64(i)*20})
	}
	alerts := m.Alerts(0)
	require.NotEmpty(t, alerts)
	last := alerts[len(alerts)-1]
	require.NotNil(t, last.Technical)
	assert.Less(t, last.Technical.Momentum5, 0.0)
	assert.Less(t, last.Technical.PriceVsSMA20Pct, 0.0)
	require.NotNil(t, last.Volatility)

	summary := m.AlertSummary(time.Hour)
	assert.Equal(t, len(alerts), summary.Total)
	assert.Equal(t, len(alerts), summary.BySymbol["NIFTY"])
	assert.Equal(t, last.ID, summary.MostRecent.ID)
	assert.GreaterOrEqual(t, int(summary.Highest), int(Critical))

	clock.Advance(2 * time.Hour)
	assert.Zero(t, m.AlertSummary(time.Hour).Total)
}
