package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"index_risk_sentinel/config"
	"index_risk_sentinel/danger"
	"index_risk_sentinel/logs"
	"index_risk_sentinel/risk"
)

// Intervals are the periods of the scheduled checks.
type Intervals struct {
	Danger    time.Duration
	Position  time.Duration
	Portfolio time.Duration
	Heartbeat time.Duration
}

// IntervalsFromConfig reads the check periods, substituting defaults for unset values.
func IntervalsFromConfig(cfg *config.NormalConfig) Intervals {
	return Intervals{
		Danger:    seconds(cfg.DangerCheckIntervalSeconds, 30),
		Position:  seconds(cfg.PositionCheckIntervalSeconds, 60),
		Portfolio: seconds(cfg.PortfolioCheckIntervalSeconds, 120),
		Heartbeat: time.Duration(orDefault(cfg.HeartbeatIntervalMinutes, 5)) * time.Minute,
	}
}

func seconds(v, def int) time.Duration {
	return time.Duration(orDefault(v, def)) * time.Second
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Scheduler drives the risk engine's periodic checks.
type Scheduler struct {
	rm              risk.RiskManager
	dangerStatus    func() danger.Status
	intervals       Intervals
	marketHoursOnly bool
	out             io.Writer

	marketOpen bool
	gateKnown  bool
}

// NewScheduler builds a scheduler. dangerStatus may be nil, in which case heartbeats only show the risk summary.
func NewScheduler(rm risk.RiskManager, dangerStatus func() danger.Status, intervals Intervals, marketHoursOnly bool) *Scheduler {
	return &Scheduler{
		rm:              rm,
		dangerStatus:    dangerStatus,
		intervals:       intervals,
		marketHoursOnly: marketHoursOnly,
		out:             os.Stdout,
	}
}

// SetOutput redirects heartbeat tables.
func (s *Scheduler) SetOutput(w io.Writer) {
	s.out = w
}

// Start runs the checks until stopChan is closed. A comprehensive check runs once at startup.
func (s *Scheduler) Start(stopChan <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopChan
		cancel()
	}()

	dangerTicker := time.NewTicker(s.intervals.Danger)
	defer dangerTicker.Stop()
	positionTicker := time.NewTicker(s.intervals.Position)
	defer positionTicker.Stop()
	portfolioTicker := time.NewTicker(s.intervals.Portfolio)
	defer portfolioTicker.Stop()
	heartbeatTicker := time.NewTicker(s.intervals.Heartbeat)
	defer heartbeatTicker.Stop()

	if s.gate(ctx) {
		s.run(risk.CheckComprehensive, s.rm.RunComprehensiveCheck(ctx))
	}

	for {
		select {
		case <-stopChan:
			logs.Info("Monitor received stop signal, exiting.")
			return
		case <-dangerTicker.C:
			if s.gate(ctx) {
				s.run(risk.CheckDanger, s.rm.RunDangerCheck(ctx))
			}
		case <-positionTicker.C:
			if s.gate(ctx) {
				s.run(risk.CheckPosition, s.rm.RunPositionCheck(ctx))
			}
		case <-portfolioTicker.C:
			if s.gate(ctx) {
				s.run(risk.CheckPortfolio, s.rm.RunPortfolioCheck(ctx))
			}
		case <-heartbeatTicker.C:
			s.Heartbeat()
		}
	}
}

// gate reports whether checks may run now, logging only when the answer changes.
func (s *Scheduler) gate(ctx context.Context) bool {
	if !s.marketHoursOnly {
		return true
	}
	open, reason := s.rm.IsMarketOpen(ctx)
	if !s.gateKnown || open != s.marketOpen {
		if open {
			logs.Infof("[Monitor] Market open, risk checks active.")
		} else {
			logs.Infof("[Monitor] Risk checks paused: %s", reason)
		}
	}
	s.gateKnown = true
	s.marketOpen = open
	return open
}

func (s *Scheduler) run(check string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, risk.ErrCheckInProgress):
		logs.Debugf("[Monitor] %s check skipped, previous run still in progress", check)
	default:
		logs.Errorf("[Monitor-Error] %s check failed: %v", check, err)
	}
}

// Heartbeat logs a one-line status and prints the summary table.
func (s *Scheduler) Heartbeat() {
	summary := s.rm.Summary()
	logs.Infof("[Heartbeat] %d open positions, daily P&L %.2f, %d active alerts, breaker tripped: %t",
		summary.OpenPositions, summary.DailyPnL, summary.ActiveAlerts, summary.CircuitBreakerTripped)

	var status *danger.Status
	if s.dangerStatus != nil {
		st := s.dangerStatus()
		status = &st
	}
	RenderSummary(s.out, summary, status)
}
