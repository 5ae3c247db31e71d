package danger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestEscalator() *escalator {
	return newEscalator(3*time.Minute, time.Minute)
}

func fireAndRecord(e *escalator, symbol string, level Level, now time.Time) (bool, Reason) {
	fire, reason := e.decide(symbol, level, now)
	if fire {
		e.record(symbol, level, now)
	}
	return fire, reason
}

func TestEscalatorSafeNeverAlerts(t *testing.T) {
	e := newTestEscalator()
	fire, reason := e.decide("NIFTY", Safe, at(10, 0))
	assert.False(t, fire)
	assert.Equal(t, ReasonSafe, reason)
}

func TestEscalatorCooldown(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)

	fire, reason := fireAndRecord(e, "NIFTY", Warning, t0)
	assert.True(t, fire)
	assert.Equal(t, ReasonFirstAlert, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Warning, t0.Add(2*time.Minute))
	assert.False(t, fire)
	assert.Equal(t, ReasonCooldown, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Warning, t0.Add(3*time.Minute))
	assert.True(t, fire)
	assert.Equal(t, ReasonFirstAlert, reason)

	// Cooldowns are per symbol.
	fire, _ = fireAndRecord(e, "BANKNIFTY", Warning, t0.Add(3*time.Minute+time.Second))
	assert.True(t, fire)
}

func TestEscalatorEscalationAndNoDeescalation(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)

	fireAndRecord(e, "NIFTY", Warning, t0)
	fire, reason := fireAndRecord(e, "NIFTY", Critical, t0.Add(20*time.Second))
	assert.True(t, fire)
	assert.Equal(t, ReasonEscalation, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Warning, t0.Add(40*time.Second))
	assert.False(t, fire)
	assert.Equal(t, ReasonCooldown, reason)

	e2 := newTestEscalator()
	fireAndRecord(e2, "NIFTY", Critical, t0)
	fire, _ = fireAndRecord(e2, "NIFTY", Warning, t0.Add(10*time.Second))
	assert.False(t, fire)
}

func TestEscalatorRiskEscalationHonoursEscalationCooldown(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)
	fireAndRecord(e, "NIFTY", Warning, t0)

	fire, reason := fireAndRecord(e, "NIFTY", Risk, t0.Add(30*time.Second))
	assert.False(t, fire)
	assert.Equal(t, ReasonCooldown, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Risk, t0.Add(time.Minute))
	assert.True(t, fire)
	assert.Equal(t, ReasonEscalation, reason)
}

func TestEscalatorCriticalFirstAndSustained(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)

	fire, reason := fireAndRecord(e, "NIFTY", Critical, t0)
	assert.True(t, fire)
	assert.Equal(t, ReasonCriticalFirst, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Critical, t0.Add(time.Minute))
	assert.False(t, fire)
	assert.Equal(t, ReasonCooldown, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Critical, t0.Add(3*time.Minute))
	assert.True(t, fire)
	assert.Equal(t, ReasonSustainedDanger, reason)
}

func TestEscalatorExtremeAlwaysFires(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)
	for i := 0; i < 3; i++ {
		fire, reason := fireAndRecord(e, "NIFTY", Emergency, t0.Add(time.Duration(i)*time.Second))
		assert.True(t, fire)
		assert.Equal(t, ReasonExtremeLevel, reason)
	}
	fire, reason := fireAndRecord(e, "NIFTY", Extreme, t0.Add(5*time.Second))
	assert.True(t, fire)
	assert.Equal(t, ReasonExtremeLevel, reason)

	// The first CRITICAL after an EMERGENCY run fires even inside the cooldown.
	fire, reason = fireAndRecord(e, "NIFTY", Critical, t0.Add(30*time.Second))
	assert.True(t, fire)
	assert.Equal(t, ReasonCriticalFirst, reason)

	fire, reason = fireAndRecord(e, "NIFTY", Critical, t0.Add(time.Minute))
	assert.False(t, fire)
	assert.Equal(t, ReasonCooldown, reason)
}

func TestEscalatorCriticalAfterEmergencyOutsideCooldown(t *testing.T) {
	e := newTestEscalator()
	t0 := at(10, 0)
	fireAndRecord(e, "BANKNIFTY", Emergency, t0)

	fire, reason := e.decide("BANKNIFTY", Critical, t0.Add(4*time.Minute))
	assert.True(t, fire)
	assert.Equal(t, ReasonCriticalFirst, reason)
}
