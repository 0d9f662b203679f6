package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// SizingParams tunes a position size calculation. Zero values mean "use the
// configured default" for RiskPercentage and "no stop loss" for StopLossPct.
// CurrentDrawdown overrides the portfolio's live drawdown when non-nil, which
// backtests and what-if tooling rely on.
type SizingParams struct {
	RiskPercentage   float64
	StopLossPct      float64
	VolatilityFactor bool
	CurrentDrawdown  *float64
}

// DefaultSizingParams enables volatility scaling with configured risk
func DefaultSizingParams() SizingParams {
	return SizingParams{VolatilityFactor: true}
}

// CalculatePositionSize computes a risk-adjusted position size in quote
// currency. The base size is equity times the per-trade risk fraction,
// converted to risk-parity sizing when a stop loss is supplied, then scaled
// down by volatility, drawdown tier and correlation, and finally capped at
// the maximum order size.
func (m *Manager) CalculatePositionSize(symbol string, accountEquity decimal.Decimal, params SizingParams) decimal.Decimal {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	riskPct := params.RiskPercentage
	if riskPct <= 0 {
		riskPct = cfg.RiskPerTrade
	}

	size := accountEquity.Mul(decimal.NewFromFloat(riskPct))
	if params.StopLossPct > 0 {
		size = size.Div(decimal.NewFromFloat(params.StopLossPct))
	}

	if cfg.VolatilityScalingEnabled && params.VolatilityFactor {
		if pos, ok := m.portfolio.GetPosition(symbol); ok {
			size = size.Mul(decimal.NewFromFloat(volatilityFactor(pos.Volatility, cfg.VolatilityBaseline, cfg.VolatilityMaxAdjustment)))
		}
	}

	if cfg.DrawdownControlEnabled {
		dd := m.portfolio.GetDrawdownMetrics().CurrentDrawdown
		if params.CurrentDrawdown != nil {
			dd = *params.CurrentDrawdown
		}
		size = size.Mul(decimal.NewFromFloat(drawdownFactor(dd, cfg.MaxDrawdownThreshold, cfg.CriticalDrawdownThreshold, cfg.DrawdownScalingFactor)))
	}

	if corr := m.portfolio.GetPositionRisk(symbol, size).CorrelationRisk; corr > 0.5 {
		size = size.Mul(decimal.NewFromFloat(1 - (corr - 0.5)))
	}

	if size.GreaterThan(cfg.MaxOrderSize) {
		size = cfg.MaxOrderSize
	}
	return size
}

// volatilityFactor reduces size when volatility exceeds the baseline. The
// reduction grows with the square root of the excess ratio, capped so the
// factor never drops below 0.25.
func volatilityFactor(vol, baseline, adjustmentCap float64) float64 {
	if baseline <= 0 || vol <= baseline {
		return 1.0
	}
	excess := (vol - baseline) / baseline
	factor := 1 - adjustmentCap*math.Sqrt(excess)
	if factor < 0.25 {
		return 0.25
	}
	return factor
}

// drawdownFactor applies the tiered drawdown policy. The tiers jump
// discontinuously at each threshold: linear scale-down between 5% and the
// max threshold, a fixed quarter size up to the critical threshold, and a
// fixed tenth beyond it.
func drawdownFactor(dd, maxThreshold, criticalThreshold, scalingFactor float64) float64 {
	switch {
	case dd < 0.05:
		return 1.0
	case dd < maxThreshold:
		factor := 1 - (dd-0.05)*scalingFactor
		if factor < 0.25 {
			return 0.25
		}
		return factor
	case dd < criticalThreshold:
		return 0.25
	default:
		return 0.10
	}
}
