package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000.0, cfg.Risk.DailyLossLimit())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
symbols: [" nifty ", "finnifty"]
use_simulation: false
risk:
  capital: 500000
  daily_loss_fraction: 0.02
  strategies:
    IRON_CONDOR:
      stop_loss_per_lot: 1800
      target_per_lot: 3600
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"NIFTY", "FINNIFTY"}, cfg.Symbols)
	assert.Equal(t, 10000.0, cfg.Risk.DailyLossLimit())
	assert.Equal(t, 1800.0, cfg.Risk.Strategies["IRON_CONDOR"].StopLossPerLot)
	assert.Equal(t, "11:00", cfg.Risk.EntryCutoff, "unset keys keep their defaults")
	assert.Equal(t, 1.5, cfg.Danger.BaseThresholds.Critical)
}

func TestLoadConfigRejectsInvalidFiles(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "Config file not found")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"thresholds out of order", "danger:\n  base_thresholds: {warning: 1, risk: 2, critical: 1.5, emergency: 3, extreme: 4}\n", "strictly increasing"},
		{"bad clock", "risk:\n  entry_cutoff: \"11am\"\n", "entry_cutoff"},
		{"market closes before open", "risk:\n  market_open: \"15:30\"\n  market_close: \"09:15\"\n", "market_open must be before"},
		{"loss fraction", "risk:\n  daily_loss_fraction: 1.5\n", "daily_loss_fraction"},
		{"simulation mode", "use_simulation: true\nsimulation:\n  mode: crash\n", "simulation.mode"},
		{"simulation news impact", "use_simulation: true\nsimulation:\n  news_impact: severe\n", "simulation.news_impact"},
		{"missing session multiplier", "danger:\n  session_multipliers: {OPENING: 0}\n", "OPENING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock(" 15:10 ")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Hour+10*time.Minute, d)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestLocationFallsBackToFixedOffset(t *testing.T) {
	cfg := NewConfig()
	cfg.Timezone = "Nowhere/Invalid"
	_, offset := time.Date(2026, 3, 10, 12, 0, 0, 0, cfg.Location()).Zone()
	assert.Equal(t, 19800, offset)
}

func TestNotificationsConfigured(t *testing.T) {
	t.Setenv("GUPSHUP_API_KEY", "key")
	t.Setenv("GUPSHUP_SOURCE_NUMBER", "919000000000")
	t.Setenv("ADMIN_PHONE_NUMBER", "")
	assert.False(t, LoadEnvConfig().NotificationsConfigured())

	t.Setenv("ADMIN_PHONE_NUMBER", "919111111111")
	assert.True(t, LoadEnvConfig().NotificationsConfigured())
}
