package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open position for a single symbol. Quantity is
// signed: positive is long, negative is short. Value is always recomputed
// from quantity and last price after any mutation; a position whose quantity
// reaches zero is removed rather than retained.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	LastPrice  decimal.Decimal `json:"last_price"`
	Value      decimal.Decimal `json:"value"`
	EntryTime  time.Time       `json:"entry_time"`
	LastUpdate time.Time       `json:"last_update"`
	Volatility float64         `json:"volatility"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPct     decimal.Decimal `json:"pnl_pct"`
}

// IsLong reports whether the position is long
func (p *Position) IsLong() bool {
	return p.Quantity.IsPositive()
}

// unrealizedPnL computes PnL at the given price using the long/short formulas
func (p *Position) unrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.IsLong() {
		return price.Sub(p.AvgPrice).Mul(p.Quantity)
	}
	return p.AvgPrice.Sub(price).Mul(p.Quantity.Abs())
}

// entryValue is the cost basis of the position
func (p *Position) entryValue() decimal.Decimal {
	return p.Quantity.Abs().Mul(p.AvgPrice)
}

// HistoryAction labels a position history entry
type HistoryAction string

const (
	HistoryActionOpen   HistoryAction = "open"
	HistoryActionUpdate HistoryAction = "update"
	HistoryActionClose  HistoryAction = "close"
)

// HistoryEntry is an append-only record of a position mutation
type HistoryEntry struct {
	Timestamp      time.Time        `json:"timestamp"`
	Action         HistoryAction    `json:"action"`
	QuantityChange decimal.Decimal  `json:"quantity_change"`
	NewQuantity    decimal.Decimal  `json:"new_quantity"`
	Price          decimal.Decimal  `json:"price"`
	ValueChange    decimal.Decimal  `json:"value_change"`
	NewValue       decimal.Decimal  `json:"new_value"`
	PnL            *decimal.Decimal `json:"pnl,omitempty"`
	PnLPct         *decimal.Decimal `json:"pnl_pct,omitempty"`
	DurationHours  *float64         `json:"duration_hours,omitempty"`
}

// ClosedPosition is the realized result of closing a position
type ClosedPosition struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPct        decimal.Decimal `json:"pnl_pct"`
	DurationHours float64         `json:"duration_hours"`
	ClosedAt      time.Time       `json:"closed_at"`
}

// EquityPoint is a single sample of account equity over time
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
}

// DrawdownMetrics reports the drawdown state after an equity update.
// MaxDrawdown only ratchets upward; it is never reset automatically.
type DrawdownMetrics struct {
	CurrentDrawdown float64 `json:"current_drawdown"`
	MaxDrawdown     float64 `json:"max_drawdown"`
}

// RiskMetrics describes the marginal risk of adding exposure to a symbol
type RiskMetrics struct {
	Symbol          string  `json:"symbol"`
	Concentration   float64 `json:"concentration"`
	CorrelationRisk float64 `json:"correlation_risk"`
}

// AggregateRisk is the portfolio-level risk report
type AggregateRisk struct {
	TotalValue         decimal.Decimal `json:"total_value"`
	WeightedVolatility float64         `json:"weighted_volatility"`
	DownsideVolatility float64         `json:"downside_volatility"`
	MaxConcentration   float64         `json:"max_concentration"`
	AvgCorrelation     float64         `json:"avg_correlation"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
	SortinoRatio       float64         `json:"sortino_ratio"`
	ValueAtRisk        decimal.Decimal `json:"value_at_risk"`
	ConditionalVaR     decimal.Decimal `json:"conditional_var"`
}

// PerformanceSnapshot summarizes account returns over standard horizons
type PerformanceSnapshot struct {
	DailyReturn    float64            `json:"daily_return"`
	WeeklyReturn   float64            `json:"weekly_return"`
	MonthlyReturn  float64            `json:"monthly_return"`
	MonthlyReturns map[string]float64 `json:"monthly_returns"` // keyed "YYYY-MM", last 12 months
}
