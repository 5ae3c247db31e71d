package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"index_risk_sentinel/audit"
	"index_risk_sentinel/calendar"
	"index_risk_sentinel/config"
	"index_risk_sentinel/exchange"
	"index_risk_sentinel/logs"
	"index_risk_sentinel/metrics"
	"index_risk_sentinel/monitor"
	"index_risk_sentinel/notify"
	"index_risk_sentinel/risk"
	"index_risk_sentinel/state"
)

type Orchestrator struct {
	client        *exchange.MockClient
	riskMonitor   *risk.RiskMonitor
	scheduler     *monitor.Scheduler
	stateManager  state.StateManagerInterface
	auditSink     *audit.SQLiteSink
	notifier      *notify.Dispatcher
	metricsServer *http.Server
	stopChan      chan struct{}
	wg            sync.WaitGroup
	cfg           *config.Config
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig) (*Orchestrator, error) {
	if !cfg.UseSimulation {
		return nil, errors.New("no live broker integration is available, set use_simulation: true")
	}
	client := exchange.NewMockClientFromConfig(cfg.Simulation)
	logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")

	var cal calendar.Calendar
	if calendarPath := cfg.Risk.CalendarFile; calendarPath != "" {
		static, err := calendar.LoadStaticCalendar(calendarPath, cfg.Location())
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load market calendar: %w", err)
			}
			logs.Warnf("[Orchestrator] Calendar file %s not found, running without calendar awareness.", calendarPath)
		} else {
			cal = static
			logs.Infof("[Orchestrator] Market calendar loaded from %s", calendarPath)
		}
	}

	stateFilePath := filepath.Join(cfg.Normal.StateDirectory, "risk_state.json")
	stateManager, err := state.NewStateManager(stateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	logs.Infof("State manager initialized successfully, state will be persisted to: %s", stateFilePath)

	sink, err := audit.NewSQLiteSink(cfg.Normal.AuditDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var sender notify.Notifier = notify.LogNotifier{}
	if envCfg.NotificationsConfigured() {
		sender = notify.NewGupshupNotifier(envCfg, time.Duration(cfg.Normal.HTTPTimeoutSeconds)*time.Second)
		logs.Infof("[Orchestrator] WhatsApp notifications enabled for %s", envCfg.AdminPhone)
	} else {
		logs.Warnf("[Orchestrator] Notification gateway not configured, alerts will only be logged.")
	}
	notifier := notify.NewDispatcher(sender, time.Duration(cfg.Normal.NotifyRetryDelaySeconds)*time.Second)

	riskMonitor, err := risk.NewRiskMonitor(cfg, risk.Dependencies{
		Client:   client,
		Calendar: cal,
		State:    stateManager,
		Notifier: notifier,
		Audit:    sink,
	})
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to create risk monitor: %w", err)
	}

	o := &Orchestrator{
		client:       client,
		riskMonitor:  riskMonitor,
		scheduler:    monitor.NewScheduler(riskMonitor, riskMonitor.Danger().Status, monitor.IntervalsFromConfig(cfg.Normal), cfg.Normal.MarketHoursOnly),
		stateManager: stateManager,
		auditSink:    sink,
		notifier:     notifier,
		stopChan:     make(chan struct{}),
		cfg:          cfg,
	}
	if cfg.Normal.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		o.metricsServer = &http.Server{Addr: cfg.Normal.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	o.reconcileStateOnStartup()
	return o, nil
}

// reconcileStateOnStartup reports what the persisted day state says about the positions found at startup.
func (o *Orchestrator) reconcileStateOnStartup() {
	logs.Info("[Orchestrator] Starting state reconciliation on startup...")
	positions, err := o.client.ListOpenPositions(context.Background())
	if err != nil {
		logs.Errorf("[Orchestrator] Failed to list open positions at startup: %v", err)
		return
	}
	st := o.stateManager.GetDayState()
	logs.Infof("[Orchestrator] %d open positions, trading day %s, realized P&L %.2f", len(positions), st.TradingDay, st.RealizedPNL)
	if st.CircuitBreakerTripped && len(positions) > 0 {
		logs.Warnf("[Orchestrator] Circuit breaker was tripped at %s (%s). %d open positions will be exited on the first portfolio check.",
			st.BreakerTrippedAt.Format(time.RFC3339), st.BreakerReason, len(positions))
	}
	logs.Info("[Orchestrator] State reconciliation complete.")
}

func (o *Orchestrator) Start() {
	o.client.Start()

	if o.metricsServer != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			logs.Infof("[Orchestrator] Serving metrics on %s/metrics", o.metricsServer.Addr)
			if err := o.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("[Orchestrator] Metrics server failed: %v", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.scheduler.Start(o.stopChan)
	}()
	logs.Infof("Risk monitoring for %v started, press Ctrl+C to exit.", o.cfg.Symbols)
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	close(o.stopChan)
	if o.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			logs.Errorf("Failed to stop metrics server: %v", err)
		}
		cancel()
	}
	o.wg.Wait()
	o.client.Stop()

	o.printFinalSummary()

	o.notifier.Wait()
	if err := o.auditSink.Close(); err != nil {
		logs.Errorf("Failed to close audit log: %v", err)
	}
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) printFinalSummary() {
	s := o.riskMonitor.Summary()
	logs.Info("\n--- Final Risk Summary ---")
	logs.Infof("Trading day: %s", s.TradingDay)
	logs.Infof("Realized P&L: %.2f, daily P&L: %.2f", s.RealizedPnL, s.DailyPnL)
	logs.Infof("Exits: %d soft, %d hard, %d emergency", s.Counters.SoftExits, s.Counters.HardExits, s.Counters.EmergencyExits)
	logs.Infof("Circuit breaker tripped: %t", s.CircuitBreakerTripped)
	logs.Info("--------------------")
	status := o.riskMonitor.Danger().Status()
	monitor.RenderSummary(os.Stdout, s, &status)
}
