package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/strategy/analytics"
	"tradecore/internal/strategy/optimization"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		MarginBottom(1)

	summaryStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Width(20)

	positiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	negativeStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444"))

	tableBorderStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))
)

// signed colors a money value by its sign.
func signed(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v > 0:
		return positiveStyle.Render(s)
	case v < 0:
		return negativeStyle.Render(s)
	default:
		return s
	}
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

// renderSummary renders the headline metrics of a run as a bordered panel.
func renderSummary(title string, m *analytics.PerformanceMetrics) string {
	rows := [][2]string{
		{"Trades", strconv.Itoa(m.TotalTrades)},
		{"Wins / Losses", fmt.Sprintf("%d / %d", m.Wins, m.Losses)},
		{"Win rate", pct(m.WinRate)},
		{"Net PnL", signed(m.NetPnl)},
		{"Gross profit", signed(m.GrossProfit)},
		{"Gross loss", signed(m.GrossLoss)},
		{"Fees", fmt.Sprintf("%.2f", m.TotalFees)},
		{"Ending equity", fmt.Sprintf("%.2f", m.EndingEquity)},
		{"Return", pct(m.ReturnOnInvestment)},
		{"Max drawdown", pct(m.MaxDrawdownPct)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Expectancy", signed(m.Expectancy)},
		{"Sharpe (per bar)", fmt.Sprintf("%.3f", m.SharpeRatio)},
		{"Streaks W / L", fmt.Sprintf("%d / %d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)},
		{"Avg holding time", m.AverageTradeDuration.Round(time.Minute).String()},
	}
	if len(m.ExitReasons) > 0 {
		rows = append(rows, [2]string{"Exit reasons", exitReasons(m.ExitReasons)})
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(labelStyle.Render(r[0]))
		b.WriteString(r[1])
	}
	return titleStyle.Render(title) + "\n" + summaryStyle.Render(b.String())
}

func exitReasons(reasons map[domain.FillReason]int) string {
	keys := make([]string, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, reasons[domain.FillReason(k)])
	}
	return strings.Join(parts, " ")
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...)
}

// renderTrades lists the first limit trades.
func renderTrades(trades []analytics.Trade, limit int) string {
	t := newTable("Position", "Side", "Opened", "Entry", "Exit", "Qty", "Net PnL", "Exit reason")
	for i, tr := range trades {
		if i == limit {
			break
		}
		t.Row(
			tr.PositionID,
			string(tr.Side),
			tr.OpenedAt.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			fmt.Sprintf("%.4f", tr.ExitPrice),
			fmt.Sprintf("%.4f", tr.Quantity),
			signed(tr.NetPnl),
			string(tr.ExitReason),
		)
	}
	out := t.String()
	if len(trades) > limit {
		out += fmt.Sprintf("\n... %d more trades", len(trades)-limit)
	}
	return out
}

// renderMonthly lists net PnL per calendar month.
func renderMonthly(months []analytics.MonthlyReturn) string {
	t := newTable("Month", "Net PnL")
	for _, m := range months {
		t.Row(m.Month.Format("2006-01"), signed(m.Return))
	}
	return t.String()
}

// renderRuns lists stored runs.
func renderRuns(runs []ports.RunSummary) string {
	t := newTable("Run", "Created", "Bot", "Strategy", "Symbol", "TF", "Trades", "Win rate", "Net PnL", "Max DD")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			r.BotID,
			r.StrategyID,
			r.Symbol,
			string(r.Timeframe),
			strconv.Itoa(r.Metrics.TotalTrades),
			pct(r.Metrics.WinRate),
			signed(r.Metrics.NetPnl),
			pct(r.Metrics.MaxDrawdownPct),
		)
	}
	return t.String()
}

// renderSweep lists the top results of a parameter sweep.
func renderSweep(results []optimization.OptimizationResult, top int) string {
	t := newTable("#", "Parameters", "Score", "Trades", "Win rate", "Net PnL", "Max DD", "Profit factor")
	for i, r := range results {
		if top > 0 && i == top {
			break
		}
		t.Row(
			strconv.Itoa(i+1),
			r.Key,
			fmt.Sprintf("%.4f", r.Score),
			strconv.Itoa(r.Metrics.TotalTrades),
			pct(r.Metrics.WinRate),
			signed(r.Metrics.NetPnl),
			pct(r.Metrics.MaxDrawdownPct),
			fmt.Sprintf("%.2f", r.Metrics.ProfitFactor),
		)
	}
	return titleStyle.Render(fmt.Sprintf("Sweep: %d combinations evaluated", len(results))) + "\n" + t.String()
}
