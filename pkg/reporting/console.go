package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/health"
	"github.com/ducminhle1904/tradeguard/internal/risk"
	"github.com/ducminhle1904/tradeguard/internal/sizing"
)

// DefaultConsoleReporter renders tables with go-pretty
type DefaultConsoleReporter struct {
	out io.Writer
}

// NewDefaultConsoleReporter creates a console reporter writing to out, or stdout when nil
func NewDefaultConsoleReporter(out io.Writer) *DefaultConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &DefaultConsoleReporter{out: out}
}

func (r *DefaultConsoleReporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// PrintRiskSummary prints daily counters, limits and positions
func (r *DefaultConsoleReporter) PrintRiskSummary(s risk.Summary) {
	t := r.newTable("RISK SUMMARY " + s.Date)

	t.AppendRows([]table.Row{
		{"🔄 Daily Trades", fmt.Sprintf("%d / %d", s.DailyTrades, s.MaxDailyTrades)},
		{"💰 Daily P&L", fmt.Sprintf("$%.2f (%.2f%%)", s.DailyPnL, s.DailyPnLPercent)},
		{"📉 Max Daily Loss", fmt.Sprintf("%.1f%%", s.MaxDailyLossPct)},
		{"🎯 Exposure", fmt.Sprintf("$%.2f (%.1f%%)", s.TotalExposure, s.ExposurePercent)},
		{"📊 Realized Losses", fmt.Sprintf("$%.2f", s.PortfolioRisk)},
	})

	if len(s.MarketExposure) > 0 {
		t.AppendSeparator()
		markets := make([]string, 0, len(s.MarketExposure))
		for m := range s.MarketExposure {
			markets = append(markets, m)
		}
		sort.Strings(markets)
		for _, m := range markets {
			name := m
			if name == "" {
				name = "unspecified"
			}
			t.AppendRow(table.Row{"🏪 " + name, fmt.Sprintf("$%.2f", s.MarketExposure[m])})
		}
	}

	if len(s.Positions) > 0 {
		t.AppendSeparator()
		symbols := make([]string, 0, len(s.Positions))
		for sym := range s.Positions {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			p := s.Positions[sym]
			t.AppendRow(table.Row{"📈 " + sym, fmt.Sprintf("%.6f @ $%.4f", p.Quantity, p.AvgPrice)})
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintBrokerHealth prints one row per broker plus the overall status
func (r *DefaultConsoleReporter) PrintBrokerHealth(s health.Summary) {
	t := r.newTable(fmt.Sprintf("BROKER HEALTH: %s", strings.ToUpper(s.OverallStatus)))
	t.AppendHeader(table.Row{"Broker", "Status", "Failures", "Response", "Last Check", "Executions", "Success"})

	names := make([]string, 0, len(s.Brokers))
	for name := range s.Brokers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := s.Brokers[name]
		lastCheck := "never"
		if !b.LastCheck.IsZero() {
			lastCheck = b.LastCheck.Format(time.TimeOnly)
		}
		stats := s.ExecutionStats[name]
		success := "-"
		if stats.Total > 0 {
			success = fmt.Sprintf("%.1f%%", stats.SuccessRate)
		}
		t.AppendRow(table.Row{
			name,
			statusIcon(b.Status) + " " + b.Status,
			b.ConsecutiveFailures,
			b.ResponseTime.Round(time.Millisecond).String(),
			lastCheck,
			stats.Total,
			success,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "Alerts", s.TotalAlerts, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

func statusIcon(s string) string {
	switch s {
	case health.StatusHealthy:
		return "✅"
	case health.StatusCircuitOpen:
		return "🚨"
	case health.StatusError:
		return "❌"
	default:
		return "❔"
	}
}

// PrintActiveBrackets prints the protective levels of every open bracket
func (r *DefaultConsoleReporter) PrintActiveBrackets(orders []bracket.Order) {
	t := r.newTable(fmt.Sprintf("ACTIVE BRACKETS (%d)", len(orders)))
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Qty", "Entry", "Stop", "Target", "Trailing"})

	for _, o := range orders {
		trailing := "-"
		if o.TrailingStopPct > 0 {
			trailing = fmt.Sprintf("%.2f%%", o.TrailingStopPct*100)
		}
		id := o.ID
		if len(id) > 8 {
			id = id[:8]
		}
		t.AppendRow(table.Row{
			id,
			o.Symbol,
			o.Side,
			fmt.Sprintf("%.6f", o.Quantity),
			fmt.Sprintf("%.4f", o.EntryPrice),
			fmt.Sprintf("%.4f", o.StopLoss()),
			fmt.Sprintf("%.4f", o.TakeProfit()),
			trailing,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintSizing prints one row per sizing result
func (r *DefaultConsoleReporter) PrintSizing(price float64, results []sizing.Result) {
	t := r.newTable(fmt.Sprintf("POSITION SIZE @ $%.4f", price))
	t.AppendHeader(table.Row{"Method", "Quantity", "Amount", "% Portfolio", "Risk", "Kelly"})

	for _, res := range results {
		riskCol, kellyCol := "-", "-"
		if res.RiskAmount > 0 {
			riskCol = fmt.Sprintf("$%.2f (%.4f/unit)", res.RiskAmount, res.RiskPerShare)
		}
		if res.Method == sizing.MethodKelly {
			kellyCol = fmt.Sprintf("%.2f%%", res.KellyPct*100)
		}
		t.AppendRow(table.Row{
			res.Method,
			fmt.Sprintf("%.6f", res.Quantity),
			fmt.Sprintf("$%.2f", res.DollarAmount),
			fmt.Sprintf("%.2f%%", res.PctOfPortfolio*100),
			riskCol,
			kellyCol,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(r.out)
}
