package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/internal/logger"
)

const (
	maxHistoryEntries = 10000
	maxEquityPoints   = 10000
)

// Manager tracks open positions, realized trade history, account equity and
// the drawdown state derived from it. All methods are safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	positions     map[string]*Position
	history       map[string][]HistoryEntry
	closed        []ClosedPosition
	equityHistory []EquityPoint

	accountEquity   decimal.Decimal
	currentDrawdown float64
	maxDrawdown     float64

	volSource    exchange.VolatilitySource
	correlations *CorrelationMatrix
	logger       *logger.Logger

	now func() time.Time
}

// NewManager creates a portfolio manager with the given initial equity
func NewManager(initialEquity decimal.Decimal, volSource exchange.VolatilitySource, correlations *CorrelationMatrix, log *logger.Logger) *Manager {
	m := &Manager{
		positions:     make(map[string]*Position),
		history:       make(map[string][]HistoryEntry),
		accountEquity: initialEquity,
		volSource:     volSource,
		correlations:  correlations,
		logger:        log,
		now:           time.Now,
	}
	if initialEquity.IsPositive() {
		m.equityHistory = append(m.equityHistory, EquityPoint{Timestamp: m.now(), Equity: initialEquity})
	}
	return m
}

// AddPosition applies a signed quantity delta at the given price. A positive
// delta buys, a negative delta sells. Merging into an existing position with
// the same sign recomputes the weighted average price; flipping through zero
// resets the average to the trade price. A delta that nets the position to
// zero removes it and realizes its PnL into account equity. The returned
// decimal is that realized PnL, zero unless the delta closed the position.
func (m *Manager) AddPosition(ctx context.Context, symbol string, quantity, price decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsZero() {
		return decimal.Zero, fmt.Errorf("zero quantity for %s", symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price for %s", symbol)
	}

	vol := 0.0
	if m.volSource != nil {
		v, err := m.volSource.GetHistoricalVolatility(ctx, symbol)
		if err == nil {
			vol = v
		} else if m.logger != nil {
			m.logger.Warning("Volatility fetch failed for %s: %v", symbol, err)
		}
	}

	m.mu.Lock()

	now := m.now()
	pos, exists := m.positions[symbol]
	action := HistoryActionOpen

	switch {
	case !exists:
		pos = &Position{
			Symbol:    symbol,
			Quantity:  quantity,
			AvgPrice:  price,
			EntryTime: now,
		}
		m.positions[symbol] = pos

	default:
		action = HistoryActionUpdate
		newQty := pos.Quantity.Add(quantity)

		switch {
		case newQty.IsZero():
			realized := pos.unrealizedPnL(price)
			pct := decimal.Zero
			if entry := pos.entryValue(); entry.IsPositive() {
				pct = realized.Div(entry).Mul(decimal.NewFromInt(100))
			}
			duration := now.Sub(pos.EntryTime).Hours()

			m.closed = append(m.closed, ClosedPosition{
				Symbol:        symbol,
				Quantity:      pos.Quantity,
				AvgPrice:      pos.AvgPrice,
				ExitPrice:     price,
				PnL:           realized,
				PnLPct:        pct,
				DurationHours: duration,
				ClosedAt:      now,
			})
			delete(m.positions, symbol)
			m.appendHistoryLocked(symbol, HistoryEntry{
				Timestamp:      now,
				Action:         HistoryActionClose,
				QuantityChange: quantity,
				NewQuantity:    decimal.Zero,
				Price:          price,
				ValueChange:    pos.Value.Neg(),
				NewValue:       decimal.Zero,
				PnL:            &realized,
				PnLPct:         &pct,
				DurationHours:  &duration,
			})
			newEquity := m.accountEquity.Add(realized)
			m.mu.Unlock()

			m.UpdateAccountEquity(newEquity)

			if m.logger != nil {
				m.logger.Trade("Closed %s via fill: pnl=%s (%s%%) after %.1fh",
					symbol, realized.String(), pct.StringFixed(2), duration)
			}
			return realized, nil

		case pos.Quantity.Sign() == quantity.Sign():
			// weighted average entry over the combined size
			oldNotional := pos.AvgPrice.Mul(pos.Quantity.Abs())
			addNotional := price.Mul(quantity.Abs())
			pos.AvgPrice = oldNotional.Add(addNotional).Div(newQty.Abs())
			pos.Quantity = newQty

		default:
			// flip or partial offset across sides resets cost basis to the
			// incoming trade price
			pos.Quantity = newQty
			pos.AvgPrice = price
		}
	}

	prevValue := pos.Value
	pos.Volatility = vol
	pos.LastPrice = price
	pos.LastUpdate = now
	pos.Value = pos.Quantity.Abs().Mul(price)
	pos.PnL = pos.unrealizedPnL(price)
	pos.PnLPct = pnlPercent(pos)

	m.appendHistoryLocked(symbol, HistoryEntry{
		Timestamp:      now,
		Action:         action,
		QuantityChange: quantity,
		NewQuantity:    pos.Quantity,
		Price:          price,
		ValueChange:    pos.Value.Sub(prevValue),
		NewValue:       pos.Value,
	})

	symbols := make([]string, 0, len(m.positions))
	for s := range m.positions {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	if m.correlations != nil && len(symbols) >= 2 {
		m.correlations.Refresh(ctx, symbols)
	}

	if m.logger != nil {
		m.logger.Trade("Position %s %s: qty=%s price=%s", action, symbol, quantity.String(), price.String())
	}
	return decimal.Zero, nil
}

// UpdatePositionPrice marks an open position to the given price. Unknown
// symbols are ignored.
func (m *Manager) UpdatePositionPrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return
	}

	pos.LastPrice = price
	pos.LastUpdate = m.now()
	pos.Value = pos.Quantity.Abs().Mul(price)
	pos.PnL = pos.unrealizedPnL(price)
	pos.PnLPct = pnlPercent(pos)
}

// ClosePosition removes an open position at the given exit price and realizes
// its PnL into the account equity. Closing an unknown symbol is a no-op.
func (m *Manager) ClosePosition(symbol string, exitPrice decimal.Decimal) {
	m.mu.Lock()

	pos, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}

	now := m.now()
	realized := pos.unrealizedPnL(exitPrice)
	pct := decimal.Zero
	if entry := pos.entryValue(); entry.IsPositive() {
		pct = realized.Div(entry).Mul(decimal.NewFromInt(100))
	}
	duration := now.Sub(pos.EntryTime).Hours()

	m.closed = append(m.closed, ClosedPosition{
		Symbol:        symbol,
		Quantity:      pos.Quantity,
		AvgPrice:      pos.AvgPrice,
		ExitPrice:     exitPrice,
		PnL:           realized,
		PnLPct:        pct,
		DurationHours: duration,
		ClosedAt:      now,
	})
	delete(m.positions, symbol)

	m.appendHistoryLocked(symbol, HistoryEntry{
		Timestamp:      now,
		Action:         HistoryActionClose,
		QuantityChange: pos.Quantity.Neg(),
		NewQuantity:    decimal.Zero,
		Price:          exitPrice,
		ValueChange:    pos.Value.Neg(),
		NewValue:       decimal.Zero,
		PnL:            &realized,
		PnLPct:         &pct,
		DurationHours:  &duration,
	})

	newEquity := m.accountEquity.Add(realized)
	m.mu.Unlock()

	m.UpdateAccountEquity(newEquity)

	if m.logger != nil {
		m.logger.Trade("Closed %s: pnl=%s (%s%%) after %.1fh", symbol, realized.String(), pct.StringFixed(2), duration)
	}
}

// UpdateAccountEquity records a new equity observation and recomputes the
// peak-to-current drawdown over the retained history. Max drawdown only
// ratchets up.
func (m *Manager) UpdateAccountEquity(equity decimal.Decimal) {
	if equity.IsNegative() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.accountEquity = equity
	m.equityHistory = append(m.equityHistory, EquityPoint{Timestamp: m.now(), Equity: equity})
	if len(m.equityHistory) > maxEquityPoints {
		m.equityHistory = m.equityHistory[len(m.equityHistory)-maxEquityPoints:]
	}

	peak := decimal.Zero
	for _, pt := range m.equityHistory {
		if pt.Equity.GreaterThan(peak) {
			peak = pt.Equity
		}
	}
	if peak.IsPositive() {
		dd, _ := peak.Sub(equity).Div(peak).Float64()
		if dd < 0 {
			dd = 0
		}
		m.currentDrawdown = dd
		if dd > m.maxDrawdown {
			m.maxDrawdown = dd
		}
	}
}

// GetPosition returns a copy of the open position for the symbol
func (m *Manager) GetPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// GetAllPositions returns copies of all open positions
func (m *Manager) GetAllPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SymbolExposure returns the current market value held in the symbol
func (m *Manager) SymbolExposure(symbol string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if pos, ok := m.positions[symbol]; ok {
		return pos.Value
	}
	return decimal.Zero
}

// TotalExposure returns the summed market value of all open positions
func (m *Manager) TotalExposure() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalValueLocked()
}

// AccountEquity returns the latest recorded account equity
func (m *Manager) AccountEquity() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountEquity
}

// GetDrawdownMetrics returns the current and maximum observed drawdown
func (m *Manager) GetDrawdownMetrics() DrawdownMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DrawdownMetrics{
		CurrentDrawdown: m.currentDrawdown,
		MaxDrawdown:     m.maxDrawdown,
	}
}

// GetPositionRisk evaluates the marginal concentration and correlation risk
// of adding the given notional amount in a symbol. The first position in an
// empty portfolio has concentration 1 and no correlation risk.
func (m *Manager) GetPositionRisk(symbol string, amount decimal.Decimal) RiskMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.totalValueLocked()
	if total.IsZero() {
		return RiskMetrics{Symbol: symbol, Concentration: 1.0, CorrelationRisk: 0}
	}

	concentration, _ := amount.Div(total.Add(amount)).Float64()

	corrRisk := 0.0
	if m.correlations != nil {
		for other, pos := range m.positions {
			if other == symbol {
				continue
			}
			weight, _ := pos.Value.Div(total).Float64()
			corrRisk += weight * m.correlations.Correlation(symbol, other)
		}
	}

	return RiskMetrics{
		Symbol:          symbol,
		Concentration:   concentration,
		CorrelationRisk: corrRisk,
	}
}

// CalculatePortfolioRisk aggregates portfolio-level risk figures from the
// open positions and the equity history.
func (m *Manager) CalculatePortfolioRisk() AggregateRisk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.totalValueLocked()
	risk := AggregateRisk{TotalValue: total}
	if total.IsZero() {
		return risk
	}

	totalF, _ := total.Float64()
	maxConc := 0.0
	weightedVol := 0.0
	for _, pos := range m.positions {
		weight, _ := pos.Value.Div(total).Float64()
		if weight > maxConc {
			maxConc = weight
		}
		weightedVol += weight * pos.Volatility
	}
	risk.MaxConcentration = maxConc
	risk.WeightedVolatility = weightedVol
	if m.correlations != nil {
		risk.AvgCorrelation = m.correlations.AverageCorrelation()
	}

	dailyReturns := m.dailyReturnsLocked()
	risk.SharpeRatio = sharpe(dailyReturns)
	risk.SortinoRatio = sortino(dailyReturns)
	risk.DownsideVolatility = downsideDeviation(dailyReturns) * math.Sqrt(252)

	risk.ValueAtRisk = decimal.NewFromFloat(totalF * 0.02 * weightedVol)
	risk.ConditionalVaR = decimal.NewFromFloat(totalF * 0.03 * weightedVol)
	return risk
}

// GetPerformanceMetrics computes trailing returns from the equity history
func (m *Manager) GetPerformanceMetrics() PerformanceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := PerformanceSnapshot{MonthlyReturns: make(map[string]float64)}
	if len(m.equityHistory) == 0 {
		return snap
	}

	now := m.now()
	latest := m.equityHistory[len(m.equityHistory)-1].Equity

	snap.DailyReturn = m.trailingReturnLocked(now.AddDate(0, 0, -1), latest)
	snap.WeeklyReturn = m.trailingReturnLocked(now.AddDate(0, 0, -7), latest)
	snap.MonthlyReturn = m.trailingReturnLocked(now.AddDate(0, 0, -30), latest)

	// last-of-month equity per calendar month over the trailing year
	monthEnd := make(map[string]decimal.Decimal)
	monthKeys := []string{}
	for _, pt := range m.equityHistory {
		key := pt.Timestamp.Format("2006-01")
		if _, seen := monthEnd[key]; !seen {
			monthKeys = append(monthKeys, key)
		}
		monthEnd[key] = pt.Equity
	}
	if len(monthKeys) > 13 {
		monthKeys = monthKeys[len(monthKeys)-13:]
	}
	for i := 1; i < len(monthKeys); i++ {
		prev := monthEnd[monthKeys[i-1]]
		cur := monthEnd[monthKeys[i]]
		if prev.IsPositive() {
			r, _ := cur.Sub(prev).Div(prev).Float64()
			snap.MonthlyReturns[monthKeys[i]] = r
		}
	}
	return snap
}

// GetClosedPositions returns the realized trade record
func (m *Manager) GetClosedPositions() []ClosedPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClosedPosition, len(m.closed))
	copy(out, m.closed)
	return out
}

// GetHistory returns the recorded position history for a symbol
func (m *Manager) GetHistory(symbol string) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[symbol]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

func (m *Manager) appendHistoryLocked(symbol string, entry HistoryEntry) {
	entries := append(m.history[symbol], entry)
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	m.history[symbol] = entries
}

func (m *Manager) totalValueLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range m.positions {
		total = total.Add(pos.Value)
	}
	return total
}

// trailingReturnLocked finds the equity point nearest to but not after the
// cutoff and returns the fractional change to the latest equity.
func (m *Manager) trailingReturnLocked(cutoff time.Time, latest decimal.Decimal) float64 {
	var base decimal.Decimal
	found := false
	for _, pt := range m.equityHistory {
		if pt.Timestamp.After(cutoff) {
			break
		}
		base = pt.Equity
		found = true
	}
	if !found {
		base = m.equityHistory[0].Equity
	}
	if !base.IsPositive() {
		return 0
	}
	r, _ := latest.Sub(base).Div(base).Float64()
	return r
}

// dailyReturnsLocked collapses the equity history to one closing value per
// calendar day and returns day-over-day fractional changes.
func (m *Manager) dailyReturnsLocked() []float64 {
	if len(m.equityHistory) < 2 {
		return nil
	}

	dayClose := make(map[string]decimal.Decimal)
	days := []string{}
	for _, pt := range m.equityHistory {
		key := pt.Timestamp.Format("2006-01-02")
		if _, seen := dayClose[key]; !seen {
			days = append(days, key)
		}
		dayClose[key] = pt.Equity
	}

	returns := make([]float64, 0, len(days))
	for i := 1; i < len(days); i++ {
		prev := dayClose[days[i-1]]
		cur := dayClose[days[i]]
		if prev.IsPositive() {
			r, _ := cur.Sub(prev).Div(prev).Float64()
			returns = append(returns, r)
		}
	}
	return returns
}

func pnlPercent(pos *Position) decimal.Decimal {
	entry := pos.entryValue()
	if !entry.IsPositive() {
		return decimal.Zero
	}
	return pos.PnL.Div(entry).Mul(decimal.NewFromInt(100))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// downsideDeviation measures dispersion of negative returns only
func downsideDeviation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		if x < 0 {
			sum += x * x
		}
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func sharpe(returns []float64) float64 {
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(252)
}

func sortino(returns []float64) float64 {
	dd := downsideDeviation(returns)
	if dd == 0 {
		return 0
	}
	return mean(returns) / dd * math.Sqrt(252)
}
