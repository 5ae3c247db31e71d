package state

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"index_risk_sentinel/logs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logs.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.json")
	sm, err := NewStateManager(path)
	require.NoError(t, err)

	rolled, err := sm.RollDay("2026-03-10")
	require.NoError(t, err)
	assert.True(t, rolled)

	at := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	require.NoError(t, sm.TripCircuitBreaker("daily loss", at))
	require.NoError(t, sm.TripCircuitBreaker("second trip is ignored", at.Add(time.Minute)))
	require.NoError(t, sm.RecordAction("HARD_EXIT"))
	require.NoError(t, sm.RecordAction("HARD_EXIT"))
	require.NoError(t, sm.RecordAction("UNKNOWN"))
	require.NoError(t, sm.AddRealizedPNL(-6000))
	fresh, err := sm.MarkNotified("expiry:NIFTY")
	require.NoError(t, err)
	assert.True(t, fresh)

	reloaded, err := NewStateManager(path)
	require.NoError(t, err)
	st := reloaded.GetDayState()
	assert.Equal(t, "2026-03-10", st.TradingDay)
	assert.True(t, st.CircuitBreakerTripped)
	assert.Equal(t, "daily loss", st.BreakerReason)
	assert.True(t, at.Equal(st.BreakerTrippedAt))
	assert.Equal(t, 2, st.Counters.HardExits)
	assert.Equal(t, -6000.0, st.RealizedPNL)

	fresh, err = reloaded.MarkNotified("expiry:NIFTY")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestRollDayClearsState(t *testing.T) {
	sm, err := NewStateManager(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	_, err = sm.RollDay("2026-03-10")
	require.NoError(t, err)
	require.NoError(t, sm.TripCircuitBreaker("loss", time.Now()))

	rolled, err := sm.RollDay("2026-03-10")
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.True(t, sm.GetDayState().CircuitBreakerTripped)

	rolled, err = sm.RollDay("2026-03-11")
	require.NoError(t, err)
	assert.True(t, rolled)
	st := sm.GetDayState()
	assert.False(t, st.CircuitBreakerTripped)
	assert.Zero(t, st.Counters)
	assert.NotNil(t, st.Notified)
}
