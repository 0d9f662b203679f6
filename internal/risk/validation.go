package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/pkg/types"
)

// defaultRiskFraction estimates per-trade risk as 1% of notional when the
// order carries no stop loss.
const defaultRiskFraction = 0.01

// ValidateOrder runs the order through the risk check pipeline and returns
// whether it may proceed. Checks run in a fixed priority order and the first
// failure wins; the returned reason names the check that rejected.
func (m *Manager) ValidateOrder(order *types.Order) (bool, string) {
	m.mu.RLock()
	cfg := m.cfg
	halted := m.halted
	haltReason := m.haltReason
	dailyCount := m.dailyTrades[order.Symbol]
	m.mu.RUnlock()

	// 1. Global halt gate
	if halted {
		return false, fmt.Sprintf("Trading is currently halted: %s", haltReason)
	}

	// 2. Per-symbol circuit breaker
	if cfg.CircuitBreakerEnabled {
		if cb, ok := m.breakers.Get(order.Symbol); ok && cb.IsTriggered() {
			return false, fmt.Sprintf("Circuit breaker triggered for %s, cooldown remaining %s",
				order.Symbol, cb.CooldownRemaining().Round(0))
		}
	}

	notional := order.Notional()
	equity := m.portfolio.AccountEquity()

	// 3. Hard order size cap, strictly-greater rejects
	if notional.GreaterThan(cfg.MaxOrderSize) {
		return false, fmt.Sprintf("Order size %s exceeds maximum %s",
			notional.String(), cfg.MaxOrderSize.String())
	}

	// 4. Per-trade dollar risk against equity
	riskFraction := order.StopLossPct
	if riskFraction <= 0 {
		riskFraction = defaultRiskFraction
	}
	tradeRisk := notional.Mul(decimal.NewFromFloat(riskFraction))
	maxRisk := equity.Mul(decimal.NewFromFloat(cfg.RiskPerTrade))
	if tradeRisk.GreaterThan(maxRisk) {
		return false, fmt.Sprintf("Trade risk %s exceeds per-trade limit %s",
			tradeRisk.StringFixed(2), maxRisk.StringFixed(2))
	}

	isBuy := order.Side == types.SideBuy

	// 5. Per-symbol exposure, buy side only
	if isBuy {
		newExposure := m.portfolio.SymbolExposure(order.Symbol).Add(notional)
		if newExposure.GreaterThan(cfg.MaxSymbolExposure) {
			return false, fmt.Sprintf("Symbol exposure %s would exceed limit %s",
				newExposure.String(), cfg.MaxSymbolExposure.String())
		}
	}

	positionRisk := m.portfolio.GetPositionRisk(order.Symbol, notional)

	// 6. Per-symbol concentration
	if positionRisk.Concentration > cfg.MaxSymbolConcentration {
		// a first position in an empty portfolio is always 100% concentrated
		if m.portfolio.TotalExposure().IsPositive() {
			return false, fmt.Sprintf("Symbol concentration %.2f%% would exceed limit %.2f%%",
				positionRisk.Concentration*100, cfg.MaxSymbolConcentration*100)
		}
	}

	if isBuy {
		newTotal := m.portfolio.TotalExposure().Add(notional)

		// 7. Total portfolio exposure
		if newTotal.GreaterThan(cfg.MaxPortfolioExposure) {
			return false, fmt.Sprintf("Portfolio exposure %s would exceed limit %s",
				newTotal.String(), cfg.MaxPortfolioExposure.String())
		}

		// 8. Leverage
		if equity.IsPositive() {
			leverage, _ := newTotal.Div(equity).Float64()
			if leverage > cfg.MaxLeverage {
				return false, fmt.Sprintf("Leverage %.2fx would exceed limit %.2fx",
					leverage, cfg.MaxLeverage)
			}
		}
	}

	// 9. Correlation risk
	if positionRisk.CorrelationRisk > cfg.MaxCorrelation {
		return false, fmt.Sprintf("Correlation risk %.2f exceeds limit %.2f",
			positionRisk.CorrelationRisk, cfg.MaxCorrelation)
	}

	// 10. Daily trade budget
	if dailyCount >= cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("Daily trade limit reached for %s: %d/%d",
			order.Symbol, dailyCount, cfg.MaxTradesPerDay)
	}

	// 11. Critical drawdown safety net in case the halt transition has not
	// fired yet
	if dd := m.portfolio.GetDrawdownMetrics(); dd.CurrentDrawdown > cfg.CriticalDrawdownThreshold {
		return false, fmt.Sprintf("Current drawdown %.2f%% exceeds critical threshold %.2f%%",
			dd.CurrentDrawdown*100, cfg.CriticalDrawdownThreshold*100)
	}

	return true, ""
}
