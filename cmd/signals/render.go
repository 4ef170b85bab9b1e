package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rxtech-lab/argo-signals/internal/alert"
	"github.com/rxtech-lab/argo-signals/internal/pipeline"
	"github.com/rxtech-lab/argo-signals/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})
}

func renderStats(stats types.BacktestStats) string {
	t := newTable("Metric", "Value").
		Row("Run", stats.ID).
		Row("Period", fmt.Sprintf("%s → %s", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))).
		Row("Trading days", fmt.Sprintf("%d", stats.TradingDays)).
		Row("Initial capital", fmt.Sprintf("%.0f", stats.InitialCapital)).
		Row("Final capital", fmt.Sprintf("%.0f", stats.FinalCapital)).
		Row("Realized PnL", fmt.Sprintf("%.0f", stats.TradePnl.RealizedPnL)).
		Row("Trades", fmt.Sprintf("%d", stats.TradeResult.NumberOfTrades)).
		Row("Win rate", fmt.Sprintf("%.2f%%", stats.TradeResult.WinRate*100)).
		Row("Max profit / loss", fmt.Sprintf("%.0f / %.0f", stats.TradePnl.MaximumProfit, stats.TradePnl.MaximumLoss)).
		Row("Holding days", fmt.Sprintf("min %d, max %d, avg %.1f", stats.TradeHoldingTime.Min, stats.TradeHoldingTime.Max, stats.TradeHoldingTime.Avg)).
		Row("Open positions", fmt.Sprintf("%d", stats.OpenPositions)).
		Row("Phases", formatCounts(stats.PhaseDays)).
		Row("Exit types", formatCounts(stats.ExitTypes))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Backtest summary"))
	b.WriteString("\n")
	b.WriteString(t.String())

	if stats.TradesFilePath != "" {
		b.WriteString("\n")
		b.WriteString(faintStyle.Render("trades: " + stats.TradesFilePath))
	}

	return b.String()
}

func renderReport(report pipeline.Report) string {
	var b strings.Builder

	source := "trades"
	if report.Fallback {
		source = "breakout screen"
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s alerts for %s", report.Mode, report.LastDate.Format("2006-01-02"))))
	b.WriteString("\n")
	b.WriteString(faintStyle.Render(fmt.Sprintf("source: %s, sent %d of %d", source, report.Sent, len(report.Alerts))))

	if len(report.Alerts) == 0 {
		return b.String()
	}

	t := newTable("Ticker", "Event", "Price", "When", "Reason")
	for _, a := range report.Alerts {
		t.Row(a.Ticker, string(a.EventType), alert.FormatPrice(a.Price), a.When, a.Explain)
	}

	b.WriteString("\n")
	b.WriteString(t.String())

	return b.String()
}

func formatCounts[K ~string](counts map[K]int) string {
	if len(counts) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[K(k)]))
	}

	return strings.Join(parts, ", ")
}
