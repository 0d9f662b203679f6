package risk

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/portfolio"
	"github.com/quantrail/riskcore/internal/safety"
)

// Report is a read-only snapshot of the risk state for dashboards and APIs
type Report struct {
	Timestamp time.Time `json:"timestamp"`

	AccountEquity decimal.Decimal `json:"account_equity"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
	Leverage      float64         `json:"leverage"`

	CurrentDrawdown float64 `json:"current_drawdown"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	DailyDrawdown   float64 `json:"daily_drawdown"`
	WeeklyDrawdown  float64 `json:"weekly_drawdown"`

	DailyPnL  decimal.Decimal `json:"daily_pnl"`
	WeeklyPnL decimal.Decimal `json:"weekly_pnl"`

	Halted     bool   `json:"halted"`
	HaltReason string `json:"halt_reason,omitempty"`

	Portfolio portfolio.AggregateRisk `json:"portfolio"`

	// limit utilization as a fraction of each configured cap
	ExposureUtilization float64 `json:"exposure_utilization"`
	LeverageUtilization float64 `json:"leverage_utilization"`

	DailyTrades     map[string]int           `json:"daily_trades"`
	CircuitBreakers map[string]safety.Status `json:"circuit_breakers"`
}

// GetRiskReport builds a point-in-time risk snapshot
func (m *Manager) GetRiskReport() Report {
	equity := m.portfolio.AccountEquity()
	exposure := m.portfolio.TotalExposure()
	dd := m.portfolio.GetDrawdownMetrics()
	aggregate := m.portfolio.CalculatePortfolioRisk()

	m.mu.RLock()
	cfg := m.cfg
	halted := m.halted
	haltReason := m.haltReason
	dailyPnL := m.dailyPnL
	weeklyPnL := m.weeklyPnL
	dayStart := m.dayStartEquity
	weekStart := m.weekStartEquity
	dailyTrades := make(map[string]int, len(m.dailyTrades))
	for sym, n := range m.dailyTrades {
		dailyTrades[sym] = n
	}
	m.mu.RUnlock()

	report := Report{
		Timestamp:       time.Now(),
		AccountEquity:   equity,
		TotalExposure:   exposure,
		CurrentDrawdown: dd.CurrentDrawdown,
		MaxDrawdown:     dd.MaxDrawdown,
		DailyDrawdown:   periodDrawdown(dayStart, equity),
		WeeklyDrawdown:  periodDrawdown(weekStart, equity),
		DailyPnL:        dailyPnL,
		WeeklyPnL:       weeklyPnL,
		Halted:          halted,
		HaltReason:      haltReason,
		Portfolio:       aggregate,
		DailyTrades:     dailyTrades,
		CircuitBreakers: m.breakers.GetAllStatuses(),
	}

	if equity.IsPositive() {
		report.Leverage, _ = exposure.Div(equity).Float64()
	}
	if cfg.MaxPortfolioExposure.IsPositive() {
		report.ExposureUtilization, _ = exposure.Div(cfg.MaxPortfolioExposure).Float64()
	}
	if cfg.MaxLeverage > 0 {
		report.LeverageUtilization = report.Leverage / cfg.MaxLeverage
	}
	return report
}

// Render prints the report as a console table
func (r *Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK REPORT")
	t.SetStyle(table.StyleRounded)

	status := "🟢 ACTIVE"
	if r.Halted {
		status = fmt.Sprintf("🔴 HALTED (%s)", r.HaltReason)
	}

	t.AppendRows([]table.Row{
		{"🚦 Trading Status", status},
		{"💰 Account Equity", "$" + r.AccountEquity.StringFixed(2)},
		{"📊 Total Exposure", "$" + r.TotalExposure.StringFixed(2)},
		{"⚖️ Leverage", fmt.Sprintf("%.2fx", r.Leverage)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"📉 Current Drawdown", fmt.Sprintf("%.2f%%", r.CurrentDrawdown*100)},
		{"📉 Max Drawdown", fmt.Sprintf("%.2f%%", r.MaxDrawdown*100)},
		{"📅 Daily PnL", "$" + r.DailyPnL.StringFixed(2)},
		{"📅 Weekly PnL", "$" + r.WeeklyPnL.StringFixed(2)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"🎯 Exposure Used", fmt.Sprintf("%.1f%%", r.ExposureUtilization*100)},
		{"🎯 Leverage Used", fmt.Sprintf("%.1f%%", r.LeverageUtilization*100)},
		{"🔗 Avg Correlation", fmt.Sprintf("%.2f", r.Portfolio.AvgCorrelation)},
		{"🌪 Weighted Vol", fmt.Sprintf("%.2f", r.Portfolio.WeightedVolatility)},
	})

	for symbol, cb := range r.CircuitBreakers {
		if cb.State == safety.StateTriggered.String() {
			t.AppendRow(table.Row{"⚡ Breaker " + symbol, "TRIGGERED, " + cb.CooldownRemaining.Round(time.Second).String() + " left"})
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 28, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
}
