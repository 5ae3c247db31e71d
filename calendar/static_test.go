package calendar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 19800)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, ist)
}

func TestLoadStaticCalendar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	content := `
holidays: ["2026-03-03"]
weekly_expiry:
  NIFTY: tuesday
events:
  - date: "2026-03-12"
    type: rbi_policy
    title: "RBI policy"
    impact: HIGH
    affected: ["BANKNIFTY"]
  - date: "2026-03-12"
    type: budget
    title: "Budget"
    impact: CRITICAL
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cal, err := LoadStaticCalendar(path, ist)
	require.NoError(t, err)
	ctx := context.Background()

	holiday, err := cal.IsMarketHoliday(ctx, day(2026, 3, 3))
	require.NoError(t, err)
	assert.True(t, holiday)

	weekend, _ := cal.IsMarketHoliday(ctx, day(2026, 3, 7))
	assert.True(t, weekend, "saturday is never a trading day")

	events, err := cal.EventsForDate(ctx, day(2026, 3, 12))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventRBIPolicy, events[0].Type)
	assert.False(t, events[0].Affects("NIFTY"))
	assert.True(t, events[1].Affects("NIFTY"), "events without affected list apply to ALL")
}

func TestLoadStaticCalendarRejectsBadImpact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - date: \"2026-03-12\"\n    title: x\n    impact: SEVERE\n"), 0644))
	_, err := LoadStaticCalendar(path, ist)
	assert.Error(t, err)
}

func TestExpiryInfoRollsBackOverHoliday(t *testing.T) {
	cal := NewStaticCalendar(ist)
	cal.SetWeeklyExpiry("NIFTY", time.Tuesday)
	ctx := context.Background()

	// Monday 2026-03-09, expiry Tuesday 2026-03-10
	info, err := cal.ExpiryInfo(ctx, "nifty", day(2026, 3, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, info.DaysToExpiry)
	assert.True(t, info.IsTomorrow)
	assert.False(t, info.IsToday)

	info, err = cal.ExpiryInfo(ctx, "NIFTY", day(2026, 3, 10))
	require.NoError(t, err)
	assert.True(t, info.IsToday)

	// Tuesday 2026-03-03 is a holiday so the expiry moves to Monday 2026-03-02.
	cal.AddHoliday(day(2026, 3, 3), "Holi")
	info, err = cal.ExpiryInfo(ctx, "NIFTY", day(2026, 3, 2))
	require.NoError(t, err)
	assert.True(t, info.IsToday)

	events, err := cal.EventsForDate(ctx, day(2026, 3, 2))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventExpiryDay, events[0].Type)
	assert.Equal(t, ImpactMedium, events[0].Impact)

	_, err = cal.ExpiryInfo(ctx, "FINNIFTY", day(2026, 3, 2))
	assert.ErrorIs(t, err, ErrNoExpirySchedule)
}

func TestShouldAvoidTrading(t *testing.T) {
	cal := NewStaticCalendar(ist)
	ctx := context.Background()
	cal.AddEvent(Event{Date: day(2026, 3, 11), Title: "Fed decision", Impact: ImpactHigh, Affected: []string{AllInstruments}})
	cal.AddEvent(Event{Date: day(2026, 3, 12), Title: "Budget", Impact: ImpactCritical, Affected: []string{"NIFTY"}})
	cal.AddEvent(Event{Date: day(2026, 3, 13), Title: "PMI", Impact: ImpactLow, Affected: []string{AllInstruments}})
	cal.AddHoliday(day(2026, 3, 16), "Holiday")

	d, err := ShouldAvoidTrading(ctx, cal, "NIFTY", day(2026, 3, 11))
	require.NoError(t, err)
	assert.True(t, d.Avoid)
	assert.False(t, d.ForceExit)
	assert.Equal(t, "High impact events: Fed decision", d.Reason)

	d, _ = ShouldAvoidTrading(ctx, cal, "NIFTY", day(2026, 3, 12))
	assert.True(t, d.ForceExit)
	assert.Equal(t, "Critical events: Budget", d.Reason)

	d, _ = ShouldAvoidTrading(ctx, cal, "BANKNIFTY", day(2026, 3, 12))
	assert.False(t, d.Avoid)

	d, _ = ShouldAvoidTrading(ctx, cal, "NIFTY", day(2026, 3, 13))
	assert.False(t, d.Avoid)

	d, _ = ShouldAvoidTrading(ctx, cal, "NIFTY", day(2026, 3, 16))
	assert.True(t, d.Avoid)
	assert.True(t, d.ForceExit)
}
