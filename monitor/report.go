package monitor

import (
	"fmt"
	"io"
	"sort"

	"index_risk_sentinel/danger"
	"index_risk_sentinel/risk"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderSummary writes the risk summary, and the danger-zone status when given, as tables.
func RenderSummary(w io.Writer, s risk.Summary, status *danger.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK SUMMARY " + s.TradingDay)
	t.SetStyle(table.StyleRounded)

	breaker := "OK"
	if s.CircuitBreakerTripped {
		breaker = "TRIPPED: " + s.BreakerReason
	}
	capacity := fmt.Sprintf("%d", s.Capacity.Open)
	if s.Capacity.Limit > 0 {
		capacity = fmt.Sprintf("%d / %d", s.Capacity.Open, s.Capacity.Limit)
		if s.Capacity.Halted {
			capacity += " (entries halted)"
		}
	}
	t.AppendRows([]table.Row{
		{"Open Positions", s.OpenPositions},
		{"Broker Capacity", capacity},
		{"Daily P&L", fmt.Sprintf("%.2f", s.DailyPnL)},
		{"Realized P&L", fmt.Sprintf("%.2f", s.RealizedPnL)},
		{"Circuit Breaker", breaker},
		{"Active Alerts", s.ActiveAlerts},
		{"Danger Alerts", s.DangerAlerts},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Soft / Hard / Emergency Exits", fmt.Sprintf("%d / %d / %d", s.Counters.SoftExits, s.Counters.HardExits, s.Counters.EmergencyExits)},
		{"Blocked Entries", s.Counters.BlockedEntries},
		{"Calendar Blocks", s.Counters.CalendarBlocks},
		{"Failed Notifications", s.Counters.NotificationsFailed},
	})
	if len(s.EntryBlocks) > 0 || len(s.CalendarBlocked) > 0 {
		t.AppendSeparator()
		for _, k := range sortedKeys(s.EntryBlocks) {
			t.AppendRow(table.Row{"Entry Block (" + k + ")", s.EntryBlocks[k]})
		}
		for _, k := range sortedKeys(s.CalendarBlocked) {
			t.AppendRow(table.Row{"Calendar (" + k + ")", s.CalendarBlocked[k]})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()

	if len(s.Positions) > 0 {
		p := table.NewWriter()
		p.SetOutputMirror(w)
		p.SetTitle("POSITIONS")
		p.SetStyle(table.StyleRounded)
		p.AppendHeader(table.Row{"ID", "Symbol", "Strategy", "Lots", "MTM", "Max Loss", "Target", "Risk", "DTE"})
		for _, pr := range s.Positions {
			p.AppendRow(table.Row{
				pr.PositionID, pr.Symbol, pr.Strategy, pr.Lots,
				fmt.Sprintf("%.2f", pr.MTM),
				fmt.Sprintf("%.0f", pr.MaxLoss),
				fmt.Sprintf("%.0f", pr.Target),
				fmt.Sprintf("%.0f%%", pr.RiskScore),
				pr.DaysToExpiry,
			})
		}
		p.Render()
	}

	if status == nil || len(status.Symbols) == 0 {
		return
	}
	d := table.NewWriter()
	d.SetOutputMirror(w)
	d.SetTitle("DANGER ZONES (" + string(status.Phase) + ")")
	d.SetStyle(table.StyleRounded)
	d.AppendHeader(table.Row{"Symbol", "Price", "Change", "Level", "Critical At", "Abnormal Vol"})
	symbols := make([]string, 0, len(status.Symbols))
	for sym := range status.Symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		st := status.Symbols[sym]
		abnormal := "-"
		if st.Volatility != nil {
			abnormal = fmt.Sprintf("%t", st.Volatility.IsAbnormal)
		}
		d.AppendRow(table.Row{
			sym,
			fmt.Sprintf("%.2f", st.CurrentPrice),
			fmt.Sprintf("%+.2f%%", st.ChangePct),
			st.Level.String(),
			fmt.Sprintf("%.2f%%", st.Thresholds.Critical),
			abnormal,
		})
	}
	d.Render()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
