// Package metrics exposes the sentinel's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dangerLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_sentinel_danger_level",
			Help: "Current danger level rank per symbol (0=SAFE .. 5=EXTREME)",
		},
		[]string{"symbol"},
	)

	sessionChangePct = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_sentinel_session_change_pct",
			Help: "Percent move from session start per symbol",
		},
		[]string{"symbol"},
	)

	dangerAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_sentinel_danger_alerts_total",
			Help: "Danger-zone alerts emitted",
		},
		[]string{"symbol", "level", "reason"},
	)

	riskActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_sentinel_risk_actions_total",
			Help: "Risk actions dispatched by type and outcome",
		},
		[]string{"action", "outcome"},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_sentinel_daily_pnl",
			Help: "Daily P&L across open and exited positions",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_sentinel_open_positions",
			Help: "Number of open positions under surveillance",
		},
	)

	circuitBreaker = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_sentinel_circuit_breaker_tripped",
			Help: "1 when the daily loss circuit breaker is latched",
		},
	)

	collaboratorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_sentinel_collaborator_errors_total",
			Help: "Errors returned by pricing, execution, calendar, notification and audit collaborators",
		},
		[]string{"collaborator"},
	)

	checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "risk_sentinel_check_duration_seconds",
			Help:    "Duration of scheduled risk checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"check"},
	)

	checksSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_sentinel_checks_skipped_total",
			Help: "Checks skipped because another run was still active",
		},
		[]string{"check"},
	)
)

func init() {
	prometheus.MustRegister(dangerLevel)
	prometheus.MustRegister(sessionChangePct)
	prometheus.MustRegister(dangerAlertsTotal)
	prometheus.MustRegister(riskActionsTotal)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(circuitBreaker)
	prometheus.MustRegister(collaboratorErrorsTotal)
	prometheus.MustRegister(checkDuration)
	prometheus.MustRegister(checksSkippedTotal)
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SetDangerLevel(symbol string, rank int, changePct float64) {
	dangerLevel.WithLabelValues(symbol).Set(float64(rank))
	sessionChangePct.WithLabelValues(symbol).Set(changePct)
}

func RecordDangerAlert(symbol, level, reason string) {
	dangerAlertsTotal.WithLabelValues(symbol, level, reason).Inc()
}

func RecordRiskAction(action string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	riskActionsTotal.WithLabelValues(action, outcome).Inc()
}

func SetPortfolio(pnl float64, positions int, breakerTripped bool) {
	dailyPnL.Set(pnl)
	openPositions.Set(float64(positions))
	if breakerTripped {
		circuitBreaker.Set(1)
	} else {
		circuitBreaker.Set(0)
	}
}

func RecordCollaboratorError(collaborator string) {
	collaboratorErrorsTotal.WithLabelValues(collaborator).Inc()
}

func ObserveCheck(check string, started time.Time) {
	checkDuration.WithLabelValues(check).Observe(time.Since(started).Seconds())
}

func RecordSkippedCheck(check string) {
	checksSkippedTotal.WithLabelValues(check).Inc()
}
